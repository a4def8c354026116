package dispatcher

import (
	"testing"

	"leaderboard-engine/internal/domain"
)

func TestGroupByKey(t *testing.T) {
	events := []domain.ScoreEvent{
		{PlayerID: "p1", GameMode: 1, Score: 5},
		{PlayerID: "p1", GameMode: 1, Score: 5},
		{PlayerID: "p2", GameMode: 1, Score: 10},
	}
	grouped := groupByKey(events)
	if len(grouped) != 2 {
		t.Fatalf("expected 2 distinct keys, got %d", len(grouped))
	}
	if len(grouped[domain.EventKey{PlayerID: "p1", GameMode: 1}]) != 2 {
		t.Fatalf("expected p1 to have 2 events")
	}
}

func TestPartitionHotGroupsVsSingletons(t *testing.T) {
	events := []domain.ScoreEvent{
		{PlayerID: "p1", GameMode: 1, Score: 5},
		{PlayerID: "p1", GameMode: 1, Score: 5},
		{PlayerID: "p1", GameMode: 1, Score: 5},
		{PlayerID: "p2", GameMode: 1, Score: 10},
	}
	grouped := groupByKey(events)
	hot, singles := partition(grouped)

	if len(hot) != 1 {
		t.Fatalf("expected 1 hot group, got %d", len(hot))
	}
	if got := len(hot[domain.EventKey{PlayerID: "p1", GameMode: 1}]); got != 3 {
		t.Fatalf("expected hot group of 3 events, got %d", got)
	}
	if len(singles) != 1 {
		t.Fatalf("expected 1 singleton, got %d", len(singles))
	}
	if got := len(singles[domain.EventKey{PlayerID: "p2", GameMode: 1}]); got != 1 {
		t.Fatalf("expected singleton of 1 event, got %d", got)
	}
}
