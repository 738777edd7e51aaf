package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// UserLocks serializes every read-modify-write on a single user's
// balance/exposure. Admission confirmations, settlements and corrections for
// the same user contend on one mutex; different users never contend. The
// lock set grows with the user population and is never shrunk.
type UserLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the exclusive scope for userID and returns the unlock func.
func (ul *UserLocks) Lock(userID uuid.UUID) func() {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		ul.locks[userID] = m
	}
	ul.mu.Unlock()

	m.Lock()
	return m.Unlock
}
