// Package sqlstore serves tables of a SQL database as storage resources. A resource is
// a table name; its descriptor is derived from the column types.
package sqlstore

import (
	"context"
	"database/sql"
	"iter"
	"regexp"
	"strings"
	"time"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/schema"
)

// Driver names accepted by Open, mapped to database/sql driver names.
var drivers = map[string]string{
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"duckdb":     "duckdb",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Store reads resources from a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	logger zerolog.Logger
}

// Open connects to a database. driver is one of sqlite, duckdb, postgres or mysql.
func Open(driver, dsn string) (*Store, error) {
	name, ok := drivers[strings.ToLower(driver)]
	if !ok {
		return nil, tferrors.Newf(tferrors.CodeStorage, "unsupported SQL driver %q", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to open database").WithContext("driver", name)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return New(db, name), nil
}

// New wraps an open database. driver selects identifier quoting.
func New(db *sql.DB, driver string) *Store {
	return &Store{
		db:     db,
		driver: driver,
		logger: log.Logger.With().Str("storage", "sql").Str("driver", driver).Logger(),
	}
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) quote(resource string) (string, error) {
	if !identifier.MatchString(resource) {
		return "", tferrors.Newf(tferrors.CodeStorage, "invalid table name %q", resource)
	}
	q := `"`
	if s.driver == "mysql" {
		q = "`"
	}
	parts := strings.Split(resource, ".")
	for i, p := range parts {
		parts[i] = q + p + q
	}
	return strings.Join(parts, "."), nil
}

// Describe implements core.Storage.
func (s *Store) Describe(ctx context.Context, resource string) (*schema.Descriptor, error) {
	table, err := s.quote(resource)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+table+" WHERE 1=0")
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to describe table").WithContext("resource", resource)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read column types").WithContext("resource", resource)
	}

	d := &schema.Descriptor{Fields: make([]schema.FieldDescriptor, 0, len(cols))}
	for _, c := range cols {
		f := schema.FieldDescriptor{Name: c.Name(), Type: FieldType(c.DatabaseTypeName())}
		if nullable, ok := c.Nullable(); ok && !nullable {
			required := true
			f.Constraints = &schema.ConstraintsDescriptor{Required: &required}
		}
		d.Fields = append(d.Fields, f)
	}
	s.logger.Debug().Str("resource", resource).Int("fields", len(d.Fields)).Msg("table described")
	return d, nil
}

// Iter implements core.Storage. []byte cells become strings; integer cells of boolean
// columns become booleans.
func (s *Store) Iter(ctx context.Context, resource string) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		table, err := s.quote(resource)
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+table)
		if err != nil {
			yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to query table").WithContext("resource", resource))
			return
		}
		defer rows.Close()

		cols, err := rows.ColumnTypes()
		if err != nil {
			yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read column types").WithContext("resource", resource))
			return
		}
		kinds := make([]string, len(cols))
		for i, c := range cols {
			kinds[i] = FieldType(c.DatabaseTypeName())
		}

		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to scan row").WithContext("resource", resource))
				return
			}
			for i, v := range values {
				values[i] = normalize(kinds[i], v)
			}
			if !yield(values, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read rows").WithContext("resource", resource))
		}
	}
}

func normalize(kind string, v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		if kind == "boolean" {
			return x != 0
		}
	}
	return v
}

// FieldType maps a database column type name to a field type.
func FieldType(dbType string) string {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	switch {
	case t == "":
		return "string"
	case strings.HasPrefix(t, "BOOL") || t == "BIT":
		return "boolean"
	case t == "INTERVAL":
		return "string"
	case strings.Contains(t, "INT") || t == "SERIAL" || t == "BIGSERIAL" || t == "HUGEINT":
		return "integer"
	case strings.Contains(t, "REAL") || strings.Contains(t, "DOUBLE") || strings.Contains(t, "FLOAT") ||
		t == "NUMERIC" || t == "DECIMAL" || t == "NUMBER":
		return "number"
	case strings.HasPrefix(t, "TIMESTAMP") || t == "DATETIME":
		return "datetime"
	case t == "DATE":
		return "date"
	case strings.HasPrefix(t, "TIME"):
		return "time"
	case t == "JSON" || t == "JSONB":
		return "object"
	default:
		return "string"
	}
}

var _ core.Storage = (*Store)(nil)
