package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const countersCollection = "counters"

// MongoStore keeps one collection per table. Integer identifiers come from a
// counters collection so that documents look like the SQL rows.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (md *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return md.client.Disconnect(ctx)
}

// Bootstrap creates the unique indexes the SQL schema declares as constraints.
func (md *MongoStore) Bootstrap(ctx context.Context) error {
	for _, table := range Tables {
		cols := append([]string{PrimaryKeys[table]}, UniqueColumns[table]...)
		models := make([]mongo.IndexModel, len(cols))
		for i, c := range cols {
			models[i] = mongo.IndexModel{
				Keys:    bson.D{{Key: c, Value: 1}},
				Options: options.Index().SetUnique(true),
			}
		}
		if _, err := md.db.Collection(table).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", table, err)
		}
	}
	return nil
}

func (md *MongoStore) nextID(ctx context.Context, table string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := md.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": table},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", table, err)
	}
	return counter.Seq, nil
}

func (md *MongoStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	pk, err := primaryKey(table)
	if err != nil {
		return nil, err
	}
	stored := normalizeRow(row)
	if !stored.Has(pk) {
		id, err := md.nextID(ctx, table)
		if err != nil {
			return nil, err
		}
		stored[pk] = id
	}

	doc, err := mongoDoc(stored)
	if err != nil {
		return nil, err
	}
	if _, err := md.db.Collection(table).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, err
	}
	return stored, nil
}

func (md *MongoStore) Select(ctx context.Context, table string, q *Query) ([]Row, error) {
	if q == nil {
		q = NewQuery()
	}
	filter, err := mongoFilter(q.filters)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if len(q.columns) > 0 {
		projection := bson.M{"_id": 0}
		for _, c := range q.columns {
			projection[c] = 1
		}
		opts.SetProjection(projection)
	}
	if q.orderBy != "" {
		dir := 1
		if q.desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.orderBy, Value: dir}})
	}
	if q.limit > 0 {
		opts.SetLimit(int64(q.limit))
	}

	cursor, err := md.db.Collection(table).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(docs))
	for _, doc := range docs {
		row, err := fromMongoDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", table, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func (md *MongoStore) Update(ctx context.Context, table string, fields Row, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	filter, err := mongoFilter(q.filters)
	if err != nil {
		return 0, err
	}
	set, err := mongoDoc(normalizeRow(fields))
	if err != nil {
		return 0, err
	}
	res, err := md.db.Collection(table).UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return 0, err
	}
	return res.MatchedCount, nil
}

func (md *MongoStore) Delete(ctx context.Context, table string, q *Query) (int64, error) {
	if err := requireFilters(q); err != nil {
		return 0, err
	}
	filter, err := mongoFilter(q.filters)
	if err != nil {
		return 0, err
	}
	res, err := md.db.Collection(table).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func mongoFilter(filters []Filter) (bson.M, error) {
	if len(filters) == 0 {
		return bson.M{}, nil
	}
	conds := make(bson.A, 0, len(filters))
	for _, f := range filters {
		v, err := mongoValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter on %s: %w", f.Column, err)
		}
		switch f.Op {
		case OpEq:
			conds = append(conds, bson.M{f.Column: v})
		case OpGte:
			conds = append(conds, bson.M{f.Column: bson.M{"$gte": v}})
		default:
			return nil, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	if len(conds) == 1 {
		return conds[0].(bson.M), nil
	}
	return bson.M{"$and": conds}, nil
}

func mongoDoc(row Row) (bson.M, error) {
	doc := make(bson.M, len(row))
	for k, v := range row {
		mv, err := mongoValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		doc[k] = mv
	}
	return doc, nil
}

func mongoValue(v any) (any, error) {
	switch x := normalizeValue(v).(type) {
	case decimal.Decimal:
		return primitive.ParseDecimal128(x.String())
	case time.Time:
		return x.UTC(), nil
	default:
		return x, nil
	}
}

func fromMongoDoc(doc bson.M) (Row, error) {
	delete(doc, "_id")
	for k, v := range doc {
		switch x := v.(type) {
		case primitive.Decimal128:
			d, err := decimal.NewFromString(x.String())
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", k, err)
			}
			doc[k] = d
		case primitive.DateTime:
			doc[k] = x.Time().UTC()
		}
	}
	return normalizeRow(doc), nil
}
