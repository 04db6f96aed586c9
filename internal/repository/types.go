package repository

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"
)

var ErrNotFound = errors.New("record not found")

// CacheRecord describes one downloaded media file. ID is the content hash of
// SourceURL.
type CacheRecord struct {
	ID              string    `bson:"_id"`
	PossibleQueries []string  `bson:"possibleQueries"`
	SourceURL       string    `bson:"sourceUrl"`
	Title           string    `bson:"title,omitempty"`
	DurationSeconds int       `bson:"durationSeconds,omitempty"`
	CachedAt        time.Time `bson:"cachedAt"`
}

func (r *CacheRecord) HasQuery(q string) bool {
	return slices.Contains(r.PossibleQueries, q)
}

// Store is the document collection of cached audio records. Implementations
// rely on single-statement atomic writes; there are no multi-record
// transactions.
type Store interface {
	FindCachedByID(ctx context.Context, id string) (*CacheRecord, error)
	FindCachedByQuery(ctx context.Context, query string) (*CacheRecord, error)
	// UpsertCached inserts rec, or appends rec.PossibleQueries to the existing
	// record with the same ID.
	UpsertCached(ctx context.Context, rec *CacheRecord) error
	AddCachedQuery(ctx context.Context, id, query string) error
	SuggestQueries(ctx context.Context, prefix string, limit int) ([]string, error)
	Close() error
}

type Repo struct {
	db *sql.DB
}

var (
	_ Store = (*Repo)(nil)
	_ Store = (*MongoRepo)(nil)
)
