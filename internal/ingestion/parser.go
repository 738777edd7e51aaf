package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BetLedger/internal/ledger"
)

// submitJSON is the inbound wire format for a wager submission.
// Field names use snake_case to match upstream producers.
type submitJSON struct {
	WagerID     string `json:"wager_id,omitempty"`
	UserID      string `json:"user_id"`
	MatchKey    string `json:"match_key"`
	SessionName string `json:"session_name,omitempty"`
	Side        string `json:"side,omitempty"`
	Kind        string `json:"kind"` // back, lay, yes, no
	Stake       string `json:"stake"`
	Odd         string `json:"odd"`
}

// ParseSubmit converts a raw submission payload into a wager. Structural
// problems (bad UUIDs, unknown kind, unparseable amounts) are reported here;
// business validation belongs to the admission pipeline.
func ParseSubmit(data []byte) (*ledger.Wager, error) {
	var j submitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse submit: %w", err)
	}

	var id uuid.UUID
	if j.WagerID != "" {
		var err error
		if id, err = uuid.Parse(j.WagerID); err != nil {
			return nil, fmt.Errorf("parse wager_id: %w", err)
		}
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	if j.MatchKey == "" {
		return nil, fmt.Errorf("parse submit: match_key is required")
	}
	kind, err := ledger.ParseBetKind(j.Kind)
	if err != nil {
		return nil, err
	}
	stake, err := decimal.NewFromString(j.Stake)
	if err != nil {
		return nil, fmt.Errorf("parse stake: %w", err)
	}
	odd, err := decimal.NewFromString(j.Odd)
	if err != nil {
		return nil, fmt.Errorf("parse odd: %w", err)
	}

	return &ledger.Wager{
		ID:          id,
		UserID:      userID,
		MatchKey:    j.MatchKey,
		SessionName: j.SessionName,
		Side:        j.Side,
		Kind:        kind,
		Stake:       stake,
		Odd:         odd,
		Status:      ledger.WagerStatusPending,
	}, nil
}
