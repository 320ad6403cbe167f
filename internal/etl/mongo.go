package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/reviewseed/pkg/database"
	"github.com/BartekS5/reviewseed/pkg/logger"
	"github.com/BartekS5/reviewseed/pkg/models"
)

// MongoLoader upserts batches into a collection named after the table.
// The natural key is stored as _id.
type MongoLoader struct {
	Client   *mongo.Client
	Database string
	Table    models.Table
	Policy   models.Policy
	Timeout  time.Duration
}

func NewMongoLoader(client *mongo.Client, database string, table models.Table, policy models.Policy) *MongoLoader {
	return &MongoLoader{
		Client:   client,
		Database: database,
		Table:    table,
		Policy:   policy,
		Timeout:  30 * time.Second,
	}
}

func (m *MongoLoader) Bootstrap(ctx context.Context) error {
	return database.BootstrapMongo(ctx, m.Client.Database(m.Database))
}

func (m *MongoLoader) Load(ctx context.Context, batch []models.Record) error {
	if len(batch) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(batch))
	for _, rec := range batch {
		doc, err := m.document(rec)
		if err != nil {
			return err
		}
		writes = append(writes, m.writeModel(rec.NaturalKey(), doc))
	}

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	coll := m.Client.Database(m.Database).Collection(m.Table.Name)
	res, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		err = fmt.Errorf("bulk write into %s: %w", m.Table.Name, err)
		if applied := appliedWrites(err, len(writes)); applied > 0 {
			return &PartialWriteError{Applied: applied, Err: err}
		}
		return err
	}
	logger.Debug("mongo bulk write", "collection", m.Table.Name,
		"matched", res.MatchedCount, "modified", res.ModifiedCount, "upserted", res.UpsertedCount)
	return nil
}

// appliedWrites counts the writes of an unordered bulk write that went
// through despite err. Unknown outcomes count as not applied.
func appliedWrites(err error, total int) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0
	}
	return max(total-len(bwe.WriteErrors), 0)
}

// document maps a record's values onto its table columns, leaving out the key.
func (m *MongoLoader) document(rec models.Record) (bson.D, error) {
	vals := rec.Values()
	if len(vals) != len(m.Table.Columns) {
		return nil, fmt.Errorf("record %q has %d values, table %s has %d columns", rec.NaturalKey(), len(vals), m.Table.Name, len(m.Table.Columns))
	}
	doc := make(bson.D, 0, len(vals)-1)
	for i, col := range m.Table.Columns {
		if col == m.Table.Key {
			continue
		}
		doc = append(doc, bson.E{Key: col, Value: vals[i]})
	}
	return doc, nil
}

func (m *MongoLoader) writeModel(key string, doc bson.D) mongo.WriteModel {
	filter := bson.M{"_id": key}
	if m.Policy == models.PolicyIgnore {
		return mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true)
	}
	return mongo.NewReplaceOneModel().
		SetFilter(filter).
		SetReplacement(doc).
		SetUpsert(true)
}
