package dispatcher

import "testing"

func TestDecodeEventValid(t *testing.T) {
	raw := []byte(`{"playerId":"p1","username":"alice","gameMode":1,"score":100,"timestamp":"2024-06-01T00:00:00Z"}`)
	event, err := decodeEvent(raw)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if event.PlayerID != "p1" || event.Score != 100 || event.GameMode != 1 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestDecodeEventMissingPlayerID(t *testing.T) {
	raw := []byte(`{"username":"alice","gameMode":1,"score":100,"timestamp":"2024-06-01T00:00:00Z"}`)
	if _, err := decodeEvent(raw); err == nil {
		t.Fatalf("expected error for missing playerId")
	}
}

func TestDecodeEventNullScore(t *testing.T) {
	raw := []byte(`{"playerId":"p1","gameMode":1,"score":null,"timestamp":"2024-06-01T00:00:00Z"}`)
	if _, err := decodeEvent(raw); err == nil {
		t.Fatalf("expected error for null score")
	}
}

func TestDecodeEventNonNumericScore(t *testing.T) {
	raw := []byte(`{"playerId":"p1","gameMode":1,"score":"not-a-number","timestamp":"2024-06-01T00:00:00Z"}`)
	if _, err := decodeEvent(raw); err == nil {
		t.Fatalf("expected error for non-numeric score")
	}
}

func TestDecodeEventMalformedJSON(t *testing.T) {
	raw := []byte(`{not json`)
	if _, err := decodeEvent(raw); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestDecodeEventNegativeScoreIsValid(t *testing.T) {
	raw := []byte(`{"playerId":"p1","gameMode":1,"score":-5,"timestamp":"2024-06-01T00:00:00Z"}`)
	event, err := decodeEvent(raw)
	if err != nil {
		t.Fatalf("decodeEvent: %v", err)
	}
	if event.Score != -5 {
		t.Fatalf("expected score -5, got %d", event.Score)
	}
}
