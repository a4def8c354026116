package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"leaderboard-engine/internal/config"
	"leaderboard-engine/internal/recovery"
)

func testEngine(t *testing.T, emptyBatchThreshold int) *LeaderboardEngine {
	t.Helper()
	return &LeaderboardEngine{
		cfg:         config.Config{EmptyBatchThreshold: emptyBatchThreshold},
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		watcher:     recovery.NewIdleWatcher(time.Second),
		state:       StateReplaying,
		isReplaying: true,
	}
}

func TestUpdateReplayBookkeepingExitsAfterThreshold(t *testing.T) {
	e := testEngine(t, 3)

	e.updateReplayBookkeeping(0)
	e.updateReplayBookkeeping(0)
	if !e.isReplaying {
		t.Fatalf("should still be replaying after 2 empty batches")
	}

	e.updateReplayBookkeeping(0)
	if e.isReplaying {
		t.Fatalf("should have exited replay after 3 empty batches")
	}
	if e.state != StateTailing {
		t.Fatalf("state = %q, want tailing", e.state)
	}
}

func TestUpdateReplayBookkeepingResetsOnNonEmptyBatch(t *testing.T) {
	e := testEngine(t, 3)

	e.updateReplayBookkeeping(0)
	e.updateReplayBookkeeping(0)
	e.updateReplayBookkeeping(5)
	if e.emptyBatchCount != 0 {
		t.Fatalf("empty batch count should reset, got %d", e.emptyBatchCount)
	}
	if !e.isReplaying {
		t.Fatalf("should still be replaying")
	}
}

func TestExitReplayIfNeededIsIdempotent(t *testing.T) {
	e := testEngine(t, 3)
	e.exitReplayIfNeeded("test")
	e.exitReplayIfNeeded("test")
	if e.isReplaying {
		t.Fatalf("expected isReplaying=false")
	}
	if e.state != StateTailing {
		t.Fatalf("state = %q, want tailing", e.state)
	}
}

func TestUpdateReplayBookkeepingNoOpWhenTailing(t *testing.T) {
	e := testEngine(t, 3)
	e.isReplaying = false
	e.state = StateTailing

	e.updateReplayBookkeeping(0)
	if e.emptyBatchCount != 0 {
		t.Fatalf("bookkeeping should not run while tailing")
	}
}
