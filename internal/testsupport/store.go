package testsupport

import (
	"testing"

	"ripline/internal/config"
	"ripline/internal/queue"
)

// MustOpenStore opens the history store for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
