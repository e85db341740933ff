package classify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	if err := os.WriteFile(path, []byte("decision: ['\\bagreed\\b']\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	c := Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, c, logger) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("decision: ['\\bship it\\b']\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return c.Classify("ship it") == Decision
	}, "expected lexicon reload after write")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_BadLexiconKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	if err := os.WriteFile(path, []byte("active: ['\\bwip\\b']\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	c := Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, path, c, logger)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("active: ['[unterminated']\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)

	if got := c.Classify("we decided"); got != Decision {
		t.Errorf("classify after bad reload = %s, want decision", got)
	}
}

func TestWatch_MissingDirFails(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "lexicon.yaml"), Default(), logger)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
