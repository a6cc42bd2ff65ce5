package testsupport

import (
	"context"
	"testing"

	"dima/internal/config"
	"dima/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a run record for tests using the provided store.
func NewRun(t testing.TB, store *runstore.Store, id, pipeline string) *runstore.Run {
	t.Helper()

	run := &runstore.Run{ID: id, Pipeline: pipeline}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
