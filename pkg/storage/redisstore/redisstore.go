// Package redisstore serves resources stored in Redis. A resource is a descriptor JSON
// document at "<prefix><resource>:schema" and a list of JSON-array rows at
// "<prefix><resource>:rows".
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/schema"
)

// Config configures the Redis backend.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address  string
	Password string
	Database int

	// Prefix is prepended to all keys (e.g., "tabflow:")
	Prefix string

	// PageSize is the number of rows fetched per LRANGE
	PageSize int64

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(address string) Config {
	return Config{
		Address:  address,
		Prefix:   "tabflow:",
		PageSize: 500,
		Timeout:  5 * time.Second,
	}
}

// Store reads resources from Redis.
type Store struct {
	cfg    Config
	client redis.Cmdable
	logger zerolog.Logger
}

// Open connects to Redis and checks the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = withDefaults(cfg)
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to connect to Redis").WithContext("address", cfg.Address)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client redis.Cmdable, cfg Config) *Store {
	return &Store{
		cfg:    withDefaults(cfg),
		client: client,
		logger: log.Logger.With().Str("storage", "redis").Logger(),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg
}

// SchemaKey returns the key holding the descriptor of resource.
func (s *Store) SchemaKey(resource string) string {
	return s.cfg.Prefix + resource + ":schema"
}

// RowsKey returns the key of the row list of resource.
func (s *Store) RowsKey(resource string) string {
	return s.cfg.Prefix + resource + ":rows"
}

// Describe implements core.Storage.
func (s *Store) Describe(ctx context.Context, resource string) (*schema.Descriptor, error) {
	data, err := s.client.Get(ctx, s.SchemaKey(resource)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, tferrors.New(tferrors.CodeStorage, "resource not found").WithContext("resource", resource)
	}
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read descriptor").WithContext("resource", resource)
	}
	d, err := schema.Parse(data)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Iter implements core.Storage. Rows are read in pages.
func (s *Store) Iter(ctx context.Context, resource string) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		key := s.RowsKey(resource)
		for start := int64(0); ; start += s.cfg.PageSize {
			page, err := s.client.LRange(ctx, key, start, start+s.cfg.PageSize-1).Result()
			if err != nil {
				yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read rows").WithContext("resource", resource))
				return
			}
			for _, raw := range page {
				row, err := DecodeRow([]byte(raw))
				if err != nil {
					yield(nil, err.WithContext("resource", resource))
					return
				}
				if !yield(row, nil) {
					return
				}
			}
			if int64(len(page)) < s.cfg.PageSize {
				return
			}
		}
	}
}

// Put stores a resource, replacing any previous rows.
func (s *Store) Put(ctx context.Context, resource string, d schema.Descriptor, rows [][]any) error {
	desc, err := d.JSON()
	if err != nil {
		return err
	}
	encoded := make([]any, len(rows))
	for i, row := range rows {
		b, err := json.Marshal(row)
		if err != nil {
			return tferrors.Wrap(err, tferrors.CodeStorage, "failed to encode row").WithContext("row", i+1)
		}
		encoded[i] = string(b)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.SchemaKey(resource), desc, 0)
		pipe.Del(ctx, s.RowsKey(resource))
		if len(encoded) > 0 {
			pipe.RPush(ctx, s.RowsKey(resource), encoded...)
		}
		return nil
	})
	if err != nil {
		return tferrors.Wrap(err, tferrors.CodeStorage, "failed to store resource").WithContext("resource", resource)
	}
	s.logger.Debug().Str("resource", resource).Int("rows", len(rows)).Msg("resource stored")
	return nil
}

// DecodeRow parses one stored row. Top-level numbers are kept in their literal form so
// that the field type decides how they are cast.
func DecodeRow(data []byte) ([]any, *tferrors.Error) {
	var cells []json.RawMessage
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "invalid stored row")
	}
	row := make([]any, len(cells))
	for i, cell := range cells {
		cell = bytes.TrimSpace(cell)
		if len(cell) > 0 && (cell[0] == '-' || (cell[0] >= '0' && cell[0] <= '9')) {
			row[i] = string(cell)
			continue
		}
		if err := json.Unmarshal(cell, &row[i]); err != nil {
			return nil, tferrors.Wrap(err, tferrors.CodeStorage, "invalid stored row")
		}
	}
	return row, nil
}

var _ core.Storage = (*Store)(nil)
