// Package query is the read-only surface over the ledger store: balances,
// wager history, transaction statements and match settlement progress. It
// never mutates state and takes no user locks, so responses may trail an
// in-flight confirmation or settlement by one write.
package query

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"BetLedger/internal/ledger"
	"BetLedger/internal/store"
)

// ErrUnknownUser is returned for balance or history lookups of users the
// ledger has never seen.
var ErrUnknownUser = errors.New("query: unknown user")

// Service answers read queries from the ledger store.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Balance returns the user's funds and headroom.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*BalanceResponse, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		UserID:   u.ID,
		Balance:  u.Balance,
		Exposure: u.Exposure,
		Headroom: u.Headroom(),
	}, nil
}

// Transactions returns the user's ledger statement, oldest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID) ([]TransactionResponse, error) {
	if _, err := s.Balance(ctx, userID); err != nil {
		return nil, err
	}
	txns, err := s.store.UserTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, TransactionResponse{
			ID:           t.ID,
			Type:         t.Type.String(),
			Amount:       t.Amount,
			Remark:       t.Remark,
			Status:       t.Status.String(),
			BalanceAfter: t.BalanceAfter,
			CreatedAt:    t.CreatedAt,
		})
	}
	return out, nil
}

// UserWagers returns the user's wagers on one match in the given status.
func (s *Service) UserWagers(ctx context.Context, userID uuid.UUID, matchKey string, status ledger.WagerStatus) ([]WagerResponse, error) {
	wagers, err := s.store.UserWagersByStatus(ctx, userID, matchKey, status)
	if err != nil {
		return nil, err
	}
	out := make([]WagerResponse, 0, len(wagers))
	for _, w := range wagers {
		out = append(out, WagerResponse{
			ID:          w.ID,
			MatchKey:    w.MatchKey,
			SessionName: w.SessionName,
			Side:        w.Side,
			Kind:        w.Kind.String(),
			Stake:       w.Stake,
			Odd:         w.Odd,
			Status:      w.Status.String(),
			PlacedAt:    w.PlacedAt,
		})
	}
	return out, nil
}

// Match returns the settlement progress of one match, or nil when the
// ledger has never recorded a wager for it.
func (s *Service) Match(ctx context.Context, key string) (*MatchResponse, error) {
	m, err := s.store.GetMatch(ctx, key)
	if err != nil || m == nil {
		return nil, err
	}
	return &MatchResponse{
		Key:              m.Key,
		LastKnownState:   m.LastKnownState,
		DistributionDone: m.DistributionDone,
		Finished:         m.Finished,
		DeletionAttempts: m.DeletionAttempts,
	}, nil
}
