// Package mongostore serves MongoDB collections as storage resources. A resource is a
// collection; its descriptor is read from the schemas collection when one was stored,
// otherwise it is derived from the first document.
package mongostore

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/core"
	"github.com/tabflow/tabflow/pkg/schema"
)

// SchemasCollection holds stored descriptors keyed by resource name.
const SchemasCollection = "_tabflow_schemas"

// Store reads resources from one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to connect to MongoDB")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to connect to MongoDB")
	}
	return &Store{
		client: client,
		db:     client.Database(database),
		logger: log.Logger.With().Str("storage", "mongo").Str("database", database).Logger(),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type schemaDoc struct {
	ID         string `bson:"_id"`
	Descriptor string `bson:"descriptor"`
}

// Describe implements core.Storage.
func (s *Store) Describe(ctx context.Context, resource string) (*schema.Descriptor, error) {
	var stored schemaDoc
	err := s.db.Collection(SchemasCollection).FindOne(ctx, bson.D{{Key: "_id", Value: resource}}).Decode(&stored)
	switch {
	case err == nil:
		d, err := schema.Parse([]byte(stored.Descriptor))
		if err != nil {
			return nil, err
		}
		return &d, nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read stored descriptor").WithContext("resource", resource)
	}

	var first bson.D
	err = s.db.Collection(resource).FindOne(ctx, bson.D{}).Decode(&first)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &schema.Descriptor{}, nil
	}
	if err != nil {
		return nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read collection").WithContext("resource", resource)
	}
	d := DescriptorOf(first)
	s.logger.Debug().Str("resource", resource).Int("fields", len(d.Fields)).Msg("collection described")
	return &d, nil
}

// Iter implements core.Storage. Documents are streamed in natural order and projected
// onto the described field names.
func (s *Store) Iter(ctx context.Context, resource string) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		d, err := s.Describe(ctx, resource)
		if err != nil {
			yield(nil, err)
			return
		}
		names := d.FieldNames()

		projection := bson.D{}
		for _, n := range names {
			projection = append(projection, bson.E{Key: n, Value: 1})
		}
		cur, err := s.db.Collection(resource).Find(ctx, bson.D{}, options.Find().SetProjection(projection))
		if err != nil {
			yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to query collection").WithContext("resource", resource))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			var doc bson.M
			if err := cur.Decode(&doc); err != nil {
				yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to decode document").WithContext("resource", resource))
				return
			}
			if !yield(Project(doc, names), nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, tferrors.Wrap(err, tferrors.CodeStorage, "failed to read collection").WithContext("resource", resource))
		}
	}
}

// Put stores a descriptor for resource and inserts rows as documents.
func (s *Store) Put(ctx context.Context, resource string, d schema.Descriptor, rows [][]any) error {
	desc, err := d.JSON()
	if err != nil {
		return err
	}
	_, err = s.db.Collection(SchemasCollection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: resource}},
		schemaDoc{ID: resource, Descriptor: string(desc)},
		options.Replace().SetUpsert(true))
	if err != nil {
		return tferrors.Wrap(err, tferrors.CodeStorage, "failed to store descriptor").WithContext("resource", resource)
	}
	if len(rows) == 0 {
		return nil
	}

	names := d.FieldNames()
	docs := make([]any, len(rows))
	for i, row := range rows {
		doc := make(bson.D, 0, len(names))
		for j, n := range names {
			if j < len(row) {
				doc = append(doc, bson.E{Key: n, Value: row[j]})
			}
		}
		docs[i] = doc
	}
	if _, err := s.db.Collection(resource).InsertMany(ctx, docs); err != nil {
		return tferrors.Wrap(err, tferrors.CodeStorage, "failed to insert documents").WithContext("resource", resource)
	}
	return nil
}

// DescriptorOf derives a descriptor from a document's key order and value types. The
// _id key is skipped.
func DescriptorOf(doc bson.D) schema.Descriptor {
	d := schema.Descriptor{Fields: make([]schema.FieldDescriptor, 0, len(doc))}
	for _, e := range doc {
		if e.Key == "_id" {
			continue
		}
		d.Fields = append(d.Fields, schema.FieldDescriptor{Name: e.Key, Type: FieldType(e.Value)})
	}
	return d
}

// FieldType maps a BSON value to a field type.
func FieldType(v any) string {
	switch v.(type) {
	case int32, int64:
		return "integer"
	case float64, bson.Decimal128:
		return "number"
	case bool:
		return "boolean"
	case bson.DateTime, time.Time:
		return "datetime"
	case bson.D, bson.M:
		return "object"
	case bson.A:
		return "array"
	default:
		return "string"
	}
}

// Project returns the values of doc under names. Absent keys are nil.
func Project(doc bson.M, names []string) []any {
	row := make([]any, len(names))
	for i, n := range names {
		row[i] = Value(doc[n])
	}
	return row
}

// Value converts a decoded BSON value to a cell value.
func Value(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case bson.DateTime:
		return x.Time().UTC()
	case bson.Decimal128:
		return x.String()
	case bson.ObjectID:
		return x.Hex()
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = Value(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = Value(e)
		}
		return m
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Value(e)
		}
		return out
	}
	return v
}

var _ core.Storage = (*Store)(nil)
