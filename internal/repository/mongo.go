package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cachedAudioCollection = "cached_audio"

// MongoRepo keeps cache records as documents, one per content hash, with the
// known queries in an array field.
type MongoRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoRepo, error) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(uri).SetAppName("Papa_Klement"))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	r := &MongoRepo{
		client: client,
		coll:   client.Database(database).Collection(cachedAudioCollection),
	}
	if _, err := r.coll.Indexes().CreateOne(connCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "possibleQueries", Value: 1}},
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return r, nil
}

func (r *MongoRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *MongoRepo) FindCachedByID(ctx context.Context, id string) (*CacheRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepo) FindCachedByQuery(ctx context.Context, query string) (*CacheRecord, error) {
	return r.findOne(ctx, bson.M{"possibleQueries": query})
}

func (r *MongoRepo) findOne(ctx context.Context, filter bson.M) (*CacheRecord, error) {
	var rec CacheRecord
	if err := r.coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *MongoRepo) UpsertCached(ctx context.Context, rec *CacheRecord) error {
	cachedAt := rec.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}
	queries := rec.PossibleQueries
	if queries == nil {
		queries = []string{}
	}

	onInsert := bson.M{
		"sourceUrl": rec.SourceURL,
		"cachedAt":  cachedAt,
	}
	if rec.DurationSeconds > 0 {
		onInsert["durationSeconds"] = rec.DurationSeconds
	}
	update := bson.M{
		"$setOnInsert": onInsert,
		"$addToSet":    bson.M{"possibleQueries": bson.M{"$each": queries}},
	}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": rec.ID}, update, options.Update().SetUpsert(true)); err != nil {
		return err
	}

	if rec.Title == "" {
		return nil
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": rec.ID, "$or": bson.A{
			bson.M{"title": bson.M{"$exists": false}},
			bson.M{"title": ""},
		}},
		bson.M{"$set": bson.M{"title": rec.Title}},
	)
	return err
}

func (r *MongoRepo) AddCachedQuery(ctx context.Context, id, query string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$addToSet": bson.M{"possibleQueries": query}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepo) SuggestQueries(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 25
	}
	filter := bson.M{"possibleQueries": bson.M{
		"$regex":   "^" + regexp.QuoteMeta(prefix),
		"$options": "i",
	}}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	seen := make(map[string]struct{})
	var out []string
	lower := strings.ToLower(prefix)
	for cur.Next(ctx) {
		var rec CacheRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		for _, q := range rec.PossibleQueries {
			if _, dup := seen[q]; dup || !strings.HasPrefix(strings.ToLower(q), lower) {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, cur.Err()
}
