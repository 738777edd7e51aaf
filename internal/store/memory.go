package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"BetLedger/internal/ledger"
)

// MemoryStore is the in-memory Store used by unit tests and local runs
// without Postgres. Atomic units hold the store mutex for their whole
// duration, mirroring a single DB transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*ledger.User
	matches  map[string]*ledger.Match
	wagers   map[uuid.UUID]*ledger.Wager
	rows     map[uuid.UUID]*ledger.ExposureRow
	txns     map[uuid.UUID]*ledger.Transaction
	txOrder  []uuid.UUID
	wgOrder  []uuid.UUID
	rowOrder []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uuid.UUID]*ledger.User),
		matches: make(map[string]*ledger.Match),
		wagers:  make(map[uuid.UUID]*ledger.Wager),
		rows:    make(map[uuid.UUID]*ledger.ExposureRow),
		txns:    make(map[uuid.UUID]*ledger.Transaction),
	}
}

func copyUser(u *ledger.User) *ledger.User {
	c := *u
	return &c
}

func copyMatch(m *ledger.Match) *ledger.Match {
	c := *m
	return &c
}

func copyWager(w *ledger.Wager) *ledger.Wager {
	c := *w
	return &c
}

func copyRow(r *ledger.ExposureRow) *ledger.ExposureRow {
	c := *r
	return &c
}

func copyTxn(t *ledger.Transaction) *ledger.Transaction {
	c := *t
	return &c
}

func (s *MemoryStore) CreateUser(_ context.Context, u *ledger.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetMatch(_ context.Context, key string) (*ledger.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[key]
	if !ok {
		return nil, nil
	}
	return copyMatch(m), nil
}

func (s *MemoryStore) UpsertMatch(_ context.Context, m *ledger.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.Key] = copyMatch(m)
	return nil
}

func (s *MemoryStore) UnsettledMatches(_ context.Context) ([]*ledger.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Match
	for _, m := range s.matches {
		if !m.DistributionDone && !m.Finished {
			out = append(out, copyMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) CreateWager(_ context.Context, w *ledger.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wagers[w.ID]; ok {
		return fmt.Errorf("wager %s already exists", w.ID)
	}
	s.wagers[w.ID] = copyWager(w)
	s.wgOrder = append(s.wgOrder, w.ID)
	return nil
}

func (s *MemoryStore) GetWager(_ context.Context, id uuid.UUID) (*ledger.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wagers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWager(w), nil
}

func (s *MemoryStore) setWagerStatus(id uuid.UUID, status ledger.WagerStatus) error {
	w, ok := s.wagers[id]
	if !ok {
		return ErrNotFound
	}
	if !w.Status.CanTransitionTo(status) {
		return fmt.Errorf("wager %s: illegal transition %s -> %s", id, w.Status, status)
	}
	w.Status = status
	return nil
}

func (s *MemoryStore) UpdateWagerStatus(_ context.Context, id uuid.UUID, status ledger.WagerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setWagerStatus(id, status)
}

func (s *MemoryStore) WagersByStatus(_ context.Context, matchKey string, status ledger.WagerStatus) ([]*ledger.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Wager
	for _, id := range s.wgOrder {
		w := s.wagers[id]
		if w.MatchKey == matchKey && w.Status == status {
			out = append(out, copyWager(w))
		}
	}
	return out, nil
}

func (s *MemoryStore) UserWagersByStatus(_ context.Context, userID uuid.UUID, matchKey string, status ledger.WagerStatus) ([]*ledger.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Wager
	for _, id := range s.wgOrder {
		w := s.wagers[id]
		if w.UserID == userID && w.MatchKey == matchKey && w.Status == status {
			out = append(out, copyWager(w))
		}
	}
	return out, nil
}

func (s *MemoryStore) PendingWagers(_ context.Context) ([]*ledger.Wager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Wager
	for _, id := range s.wgOrder {
		if w := s.wagers[id]; w.Status == ledger.WagerStatusPending {
			out = append(out, copyWager(w))
		}
	}
	return out, nil
}

func (s *MemoryStore) ActiveExposure(_ context.Context, userID uuid.UUID, matchKey, session string) (*ledger.ExposureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rows {
		if r.Active && r.UserID == userID && r.MatchKey == matchKey && r.SessionName == session {
			return copyRow(r), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) InactiveExposure(_ context.Context, userID uuid.UUID, matchKey, session string) (*ledger.ExposureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.rowOrder) - 1; i >= 0; i-- {
		r := s.rows[s.rowOrder[i]]
		if !r.Active && r.UserID == userID && r.MatchKey == matchKey && r.SessionName == session {
			return copyRow(r), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ExposureRows(_ context.Context, ids []uuid.UUID) ([]*ledger.ExposureRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ledger.ExposureRow, 0, len(ids))
	for _, id := range ids {
		r, ok := s.rows[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (s *MemoryStore) SettlementTransactions(_ context.Context, matchKey string) ([]*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := ledger.RemarkPrefix(matchKey)
	var out []*ledger.Transaction
	for _, id := range s.txOrder {
		t := s.txns[id]
		if t.Status == ledger.TxStatusDone && len(t.Remark) >= len(prefix) && t.Remark[:len(prefix)] == prefix {
			out = append(out, copyTxn(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) UserTransactions(_ context.Context, userID uuid.UUID) ([]*ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ledger.Transaction
	for _, id := range s.txOrder {
		if t := s.txns[id]; t.UserID == userID {
			out = append(out, copyTxn(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) ApplyConfirmation(_ context.Context, c *Confirmation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[c.Wager.UserID]
	if !ok {
		return ErrNotFound
	}
	w, ok := s.wagers[c.Wager.ID]
	if !ok {
		return ErrNotFound
	}
	if !w.Status.CanTransitionTo(ledger.WagerStatusConfirmed) {
		return fmt.Errorf("wager %s: illegal transition %s -> confirmed", w.ID, w.Status)
	}

	w.Status = ledger.WagerStatusConfirmed
	w.Odd = c.Wager.Odd // price improvement applied at confirmation
	if c.ReplaceRowID != nil {
		if prior, ok := s.rows[*c.ReplaceRowID]; ok {
			prior.Active = false
		}
	}
	s.rows[c.Exposure.ID] = copyRow(c.Exposure)
	s.rowOrder = append(s.rowOrder, c.Exposure.ID)
	u.Exposure = c.UserExposure
	return nil
}

func (s *MemoryStore) ApplySettlement(_ context.Context, us *UserSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[us.UserID]
	if !ok {
		return ErrNotFound
	}
	for id, status := range us.WagerStatus {
		if w, ok := s.wagers[id]; !ok || !w.Status.CanTransitionTo(status) {
			return fmt.Errorf("wager %s: illegal settlement transition", id)
		}
	}

	for _, t := range us.Transactions {
		s.txns[t.ID] = copyTxn(t)
		s.txOrder = append(s.txOrder, t.ID)
	}
	for id, status := range us.WagerStatus {
		s.wagers[id].Status = status
	}
	for _, id := range us.DeactivateRows {
		if r, ok := s.rows[id]; ok {
			r.Active = false
		}
	}
	u.Balance = us.Balance
	u.Exposure = us.Exposure
	return nil
}

func (s *MemoryStore) ApplyCorrection(_ context.Context, uc *UserCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uc.UserID]
	if !ok {
		return ErrNotFound
	}

	for _, id := range uc.ReverseTxIDs {
		t, ok := s.txns[id]
		if !ok {
			return ErrNotFound
		}
		t.Status = ledger.TxStatusReversed
	}
	for id, status := range uc.WagerStatus {
		if err := s.setWagerStatus(id, status); err != nil {
			return err
		}
	}
	for _, id := range uc.ReactivateRows {
		r, ok := s.rows[id]
		if !ok {
			return ErrNotFound
		}
		r.Active = true
	}
	u.Balance = uc.Balance
	u.Exposure = uc.Exposure
	return nil
}

var _ Store = (*MemoryStore)(nil)
