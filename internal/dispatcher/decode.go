// Package dispatcher is the Batch Dispatcher (C6): the per-batch
// orchestrator that parses messages, snapshots ranks, partitions events
// into hot groups and singletons, applies them through the Leaderboard
// Applier, and emits rank-change notifications while tailing.
package dispatcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"leaderboard-engine/internal/apperrors"
	"leaderboard-engine/internal/domain"
)

// rawScoreEvent mirrors domain.ScoreEvent but keeps the score field
// undecoded so missing, null, and non-numeric values can be told apart
// from a valid zero or negative score.
type rawScoreEvent struct {
	PlayerID            string          `json:"playerId"`
	Username            string          `json:"username"`
	GameMode            int             `json:"gameMode"`
	Score               json.RawMessage `json:"score"`
	GameDurationSeconds int             `json:"gameDurationSeconds"`
	Timestamp           time.Time       `json:"timestamp"`
}

// decodeEvent parses one message value into a ScoreEvent, returning
// apperrors.ErrMalformedEvent for JSON decode failures or a missing
// playerId/score.
func decodeEvent(value []byte) (domain.ScoreEvent, error) {
	var raw rawScoreEvent
	if err := json.Unmarshal(value, &raw); err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("decode event: %w: %w", apperrors.ErrMalformedEvent, err)
	}
	if raw.PlayerID == "" {
		return domain.ScoreEvent{}, fmt.Errorf("missing playerId: %w", apperrors.ErrMalformedEvent)
	}

	score, err := decodeScore(raw.Score)
	if err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedEvent, err)
	}

	return domain.ScoreEvent{
		PlayerID:            raw.PlayerID,
		Username:            raw.Username,
		GameMode:            raw.GameMode,
		Score:               score,
		GameDurationSeconds: raw.GameDurationSeconds,
		Timestamp:           raw.Timestamp,
	}, nil
}

func decodeScore(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, fmt.Errorf("score missing or null")
	}
	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return 0, fmt.Errorf("score not numeric")
	}
	return int64(asNumber), nil
}
