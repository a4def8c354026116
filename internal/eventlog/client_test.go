package eventlog

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestBatchEmpty(t *testing.T) {
	cases := []struct {
		name  string
		batch Batch
		want  bool
	}{
		{"no messages", Batch{}, true},
		{"one message", Batch{Messages: []kafka.Message{{Offset: 1}}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.batch.Empty(); got != tc.want {
				t.Fatalf("Empty() = %v, want %v", got, tc.want)
			}
		})
	}
}
