package store

import "testing"

func TestKeyLayout(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"player", playerKey("p1"), "player:p1"},
		{"lastSubmission", lastSubmissionKey("p1"), "player:p1:last_submission"},
		{"global", globalLeaderboardKey(1), "leaderboard:1:global"},
		{"daily", dailyLeaderboardKey(1, "2024-06-01"), "leaderboard:1:daily:2024-06-01"},
		{"weekly", weeklyLeaderboardKey(1, "2024-W22"), "leaderboard:1:weekly:2024-W22"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestRedisGatewayExposesKeyHelpers(t *testing.T) {
	g := &RedisGateway{}
	if got := g.GlobalKey(3); got != "leaderboard:3:global" {
		t.Fatalf("GlobalKey: got %q", got)
	}
	if got := g.DailyKey(3, "2024-06-01"); got != "leaderboard:3:daily:2024-06-01" {
		t.Fatalf("DailyKey: got %q", got)
	}
	if got := g.WeeklyKey(3, "2024-W22"); got != "leaderboard:3:weekly:2024-W22" {
		t.Fatalf("WeeklyKey: got %q", got)
	}
	if got := g.PlayerKey("p1"); got != "player:p1" {
		t.Fatalf("PlayerKey: got %q", got)
	}
	if got := g.LastSubmissionKey("p1"); got != "player:p1:last_submission" {
		t.Fatalf("LastSubmissionKey: got %q", got)
	}
}
