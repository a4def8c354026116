// Package store is the Store Gateway: a small typed surface over the
// fast key-value store, adapted from the donor's direct go-redis client
// usage (grounded on the redis sorted-set leaderboard repository and the
// sorted-sets/hashes examples) with the retry budget spec.md §4.1 names.
package store

import "fmt"

const gameModesKey = "game_modes"

func playerKey(playerID string) string {
	return fmt.Sprintf("player:%s", playerID)
}

func lastSubmissionKey(playerID string) string {
	return fmt.Sprintf("player:%s:last_submission", playerID)
}

func globalLeaderboardKey(gameMode int) string {
	return fmt.Sprintf("leaderboard:%d:global", gameMode)
}

func dailyLeaderboardKey(gameMode int, date string) string {
	return fmt.Sprintf("leaderboard:%d:daily:%s", gameMode, date)
}

func weeklyLeaderboardKey(gameMode int, weekID string) string {
	return fmt.Sprintf("leaderboard:%d:weekly:%s", gameMode, weekID)
}
