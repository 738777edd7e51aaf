package ingestion

import (
	"testing"

	"github.com/google/uuid"

	"BetLedger/internal/ledger"
)

func TestParseSubmit(t *testing.T) {
	userID := uuid.New()
	wagerID := uuid.New()

	data := []byte(`{
		"wager_id": "` + wagerID.String() + `",
		"user_id": "` + userID.String() + `",
		"match_key": "ind-vs-aus-2026-03-14",
		"side": "india",
		"kind": "back",
		"stake": "250.50",
		"odd": "1.86"
	}`)

	w, err := ParseSubmit(data)
	if err != nil {
		t.Fatalf("ParseSubmit: %v", err)
	}
	if w.ID != wagerID || w.UserID != userID {
		t.Errorf("ids = %s/%s, want %s/%s", w.ID, w.UserID, wagerID, userID)
	}
	if w.MatchKey != "ind-vs-aus-2026-03-14" || w.Side != "india" {
		t.Errorf("match/side = %q/%q", w.MatchKey, w.Side)
	}
	if w.Kind != ledger.BetKindBack {
		t.Errorf("kind = %s, want back", w.Kind)
	}
	if w.Stake.String() != "250.5" || w.Odd.String() != "1.86" {
		t.Errorf("stake/odd = %s/%s", w.Stake, w.Odd)
	}
	if w.Status != ledger.WagerStatusPending {
		t.Errorf("status = %s, want pending", w.Status)
	}
}

func TestParseSubmitSessionWager(t *testing.T) {
	data := []byte(`{
		"user_id": "` + uuid.NewString() + `",
		"match_key": "ind-vs-aus-2026-03-14",
		"session_name": "10 over runs",
		"kind": "yes",
		"stake": "100",
		"odd": "45"
	}`)

	w, err := ParseSubmit(data)
	if err != nil {
		t.Fatalf("ParseSubmit: %v", err)
	}
	if w.SessionName != "10 over runs" || w.Kind != ledger.BetKindYes {
		t.Errorf("session/kind = %q/%s", w.SessionName, w.Kind)
	}
	if w.ID != uuid.Nil {
		t.Errorf("wager id = %s, want nil (assigned at submit)", w.ID)
	}
}

func TestParseSubmitErrors(t *testing.T) {
	valid := `{"user_id": "` + uuid.NewString() + `", "match_key": "m1", "kind": "back", "stake": "100", "odd": "1.9"}`

	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `{`},
		{name: "bad user id", data: `{"user_id": "nope", "match_key": "m1", "kind": "back", "stake": "100", "odd": "1.9"}`},
		{name: "missing match key", data: `{"user_id": "` + uuid.NewString() + `", "kind": "back", "stake": "100", "odd": "1.9"}`},
		{name: "unknown kind", data: `{"user_id": "` + uuid.NewString() + `", "match_key": "m1", "kind": "hedge", "stake": "100", "odd": "1.9"}`},
		{name: "bad stake", data: `{"user_id": "` + uuid.NewString() + `", "match_key": "m1", "kind": "back", "stake": "lots", "odd": "1.9"}`},
		{name: "bad odd", data: `{"user_id": "` + uuid.NewString() + `", "match_key": "m1", "kind": "back", "stake": "100", "odd": ""}`},
	}

	if _, err := ParseSubmit([]byte(valid)); err != nil {
		t.Fatalf("control payload should parse: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSubmit([]byte(tt.data)); err == nil {
				t.Error("want error, got nil")
			}
		})
	}
}
