// Package testutil provides shared test helpers for databases and clocks.
package testutil

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/starford/noosphere/internal/store"
)

// Epoch is the first instant handed out by a Clock.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Clock is a deterministic time source that advances Step on every call.
type Clock struct {
	mu   sync.Mutex
	t    time.Time
	Step time.Duration
}

// NewClock returns a Clock starting at Epoch and stepping one minute.
func NewClock() *Clock {
	return &Clock{t: Epoch.Add(-time.Minute), Step: time.Minute}
}

// Now advances the clock and returns the new instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.Step)
	return c.t
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T, clock *Clock) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "noosphere-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	var opts []store.Option
	if clock != nil {
		opts = append(opts, store.WithClock(clock.Now))
	}
	db, err := store.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
