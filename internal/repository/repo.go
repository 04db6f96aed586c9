package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) FindCachedByID(ctx context.Context, id string) (*CacheRecord, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, source_url, title, duration_seconds, cached_at
	FROM cached_audio WHERE id = ?`, id)

	var rec CacheRecord
	var cachedAt int64
	if err := row.Scan(&rec.ID, &rec.SourceURL, &rec.Title, &rec.DurationSeconds, &cachedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.CachedAt = time.Unix(cachedAt, 0)

	queries, err := r.queriesFor(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.PossibleQueries = queries
	return &rec, nil
}

func (r *Repo) FindCachedByQuery(ctx context.Context, query string) (*CacheRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT audio_id FROM cached_audio_queries WHERE query = ? LIMIT 1`, query)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.FindCachedByID(ctx, id)
}

func (r *Repo) UpsertCached(ctx context.Context, rec *CacheRecord) error {
	cachedAt := rec.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// title and duration are only filled in when previously unknown
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cached_audio(id, source_url, title, duration_seconds, cached_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
		  title = CASE WHEN cached_audio.title = '' THEN excluded.title ELSE cached_audio.title END,
		  duration_seconds = CASE WHEN cached_audio.duration_seconds = 0
		    THEN excluded.duration_seconds ELSE cached_audio.duration_seconds END`,
		rec.ID, rec.SourceURL, rec.Title, rec.DurationSeconds, cachedAt.Unix(),
	); err != nil {
		return err
	}
	for _, q := range rec.PossibleQueries {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO cached_audio_queries(audio_id, query) VALUES (?,?)`,
			rec.ID, q,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) AddCachedQuery(ctx context.Context, id, query string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO cached_audio_queries(audio_id, query)
		SELECT id, ? FROM cached_audio WHERE id = ?`, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// either already linked or no such record
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM cached_audio WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *Repo) SuggestQueries(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 25
	}
	pattern := escapeLike(prefix) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT query FROM cached_audio_queries
		WHERE query LIKE ? ESCAPE '\'
		ORDER BY query ASC LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *Repo) queriesFor(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT query FROM cached_audio_queries WHERE audio_id = ? ORDER BY rowid ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
