// Package repotest provides a throwaway sqlite store for tests.
package repotest

import (
	"testing"

	"github.com/papaklement/klement/internal/config"
	"github.com/papaklement/klement/internal/repository"
)

// NewRepo opens a migrated sqlite store in a temporary directory that is
// removed when the test ends.
func NewRepo(tb testing.TB) *repository.Repo {
	tb.Helper()
	db, err := repository.OpenDB(&config.Config{DataDir: tb.TempDir()})
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	return repository.NewRepo(db)
}
