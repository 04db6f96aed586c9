package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/papaklement/klement/internal/repository"
)

// Entry is a cache hit: the stored record plus the path of its media file.
type Entry struct {
	repository.CacheRecord
	Path string
}

func (e *Entry) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

type FileCache struct {
	dir   string
	store repository.Store
}

func NewFileCache(dir string, store repository.Store) *FileCache {
	return &FileCache{dir: dir, store: store}
}

// HashKey is the content hash used as record id and file name.
func HashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *FileCache) PathFor(hash string) string {
	return filepath.Join(c.dir, hash)
}

// Lookup resolves query by exact id match on its hash first, then by
// membership in a record's known queries. A record whose file is gone is a
// miss.
func (c *FileCache) Lookup(ctx context.Context, query string) (*Entry, error) {
	rec, err := c.store.FindCachedByID(ctx, HashKey(query))
	if errors.Is(err, repository.ErrNotFound) {
		rec, err = c.store.FindCachedByQuery(ctx, query)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	p := c.PathFor(rec.ID)
	if !fileExists(p) {
		slog.Warn("cache record without file", "id", rec.ID, "url", rec.SourceURL)
		return nil, nil
	}
	return &Entry{CacheRecord: *rec, Path: p}, nil
}

func (c *FileCache) IsCached(ctx context.Context, url string) (bool, error) {
	hash := HashKey(url)
	_, err := c.store.FindCachedByID(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fileExists(c.PathFor(hash)), nil
}

// Commit records a finished download of url. Committing a url that already
// has a record appends query to it.
func (c *FileCache) Commit(ctx context.Context, url, query, title string, duration time.Duration) error {
	rec := &repository.CacheRecord{
		ID:              HashKey(url),
		PossibleQueries: []string{query},
		SourceURL:       url,
		Title:           title,
		DurationSeconds: int(duration / time.Second),
		CachedAt:        time.Now(),
	}
	if err := c.store.UpsertCached(ctx, rec); err != nil {
		return fmt.Errorf("cache commit %s: %w", rec.ID, err)
	}
	return nil
}

func (c *FileCache) LinkQuery(ctx context.Context, url, query string) error {
	if err := c.store.AddCachedQuery(ctx, HashKey(url), query); err != nil {
		return fmt.Errorf("cache link query: %w", err)
	}
	return nil
}

// Suggest returns known queries starting with prefix.
func (c *FileCache) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	return c.store.SuggestQueries(ctx, prefix, limit)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
