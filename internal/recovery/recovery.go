// Package recovery is the Recovery Detector (C4): the startup check that
// decides whether the engine must replay the entire event log before it
// is safe to emit notifications, and the runtime heuristics that decide
// when a replay has caught up to the live stream.
package recovery

import (
	"context"
	"log/slog"
	"strings"

	"leaderboard-engine/internal/store"
)

// NeedsReplay scans the store for player records: it returns false as
// soon as one player:{id} key is found and true when none exists.
// player:{id}:last_submission keys are skipped, and global leaderboards
// are not inspected, so a store holding leaderboard members but no
// player hashes is reported as needing a replay. An empty store means
// there is state to rebuild, so the log must be replayed from the
// beginning; any existing player key means the store already reflects
// prior processing, so tailing from now is safe.
//
// On a store error, this fails open to true (spec.md §9 Open Question 3):
// a spurious replay is judged less harmful than silently tailing on top
// of an indeterminate state. NeedsReplay itself logs the distinct
// needs_replay_check_error event at warn level before returning true.
func NeedsReplay(ctx context.Context, gateway store.Gateway, log *slog.Logger) bool {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys, errs := gateway.ScanKeys(scanCtx, "player:*")
	for key := range keys {
		if strings.HasSuffix(key, ":last_submission") {
			continue
		}
		return false
	}
	if err := <-errs; err != nil {
		log.Warn("needs_replay_check_error", slog.Any("err", err))
		return true
	}
	return true
}
