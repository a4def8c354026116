package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"leaderboard-engine/internal/store"
)

type stubGateway struct {
	store.Gateway
	keys    []string
	scanErr error
}

func (s *stubGateway) ScanKeys(ctx context.Context, pattern string) (<-chan string, <-chan error) {
	keys := make(chan string, len(s.keys))
	errs := make(chan error, 1)
	for _, k := range s.keys {
		keys <- k
	}
	close(keys)
	errs <- s.scanErr
	close(errs)
	return keys, errs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNeedsReplayTrueOnEmptyStore(t *testing.T) {
	gw := &stubGateway{}
	if !NeedsReplay(context.Background(), gw, testLogger()) {
		t.Fatalf("expected true on empty store")
	}
}

func TestNeedsReplayFalseWhenPlayerExists(t *testing.T) {
	gw := &stubGateway{keys: []string{"player:p1"}}
	if NeedsReplay(context.Background(), gw, testLogger()) {
		t.Fatalf("expected false when a player key exists")
	}
}

func TestNeedsReplayFailsOpenOnError(t *testing.T) {
	gw := &stubGateway{scanErr: errors.New("connection refused")}
	if !NeedsReplay(context.Background(), gw, testLogger()) {
		t.Fatalf("expected fail-open to true on scan error")
	}
}

func TestIdleWatcherRequestsAfterTimeout(t *testing.T) {
	w := NewIdleWatcher(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	select {
	case <-w.RequestCh():
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected an idle request within 500ms")
	}
}

func TestIdleWatcherTouchResetsClock(t *testing.T) {
	w := NewIdleWatcher(100 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(ctx)

	stop := time.Now().Add(80 * time.Millisecond)
	for time.Now().Before(stop) {
		w.Touch(time.Now())
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-w.RequestCh():
		t.Fatalf("watcher fired despite continued activity")
	default:
	}
}
