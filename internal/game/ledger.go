package game

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session ties one connection to a declared address and its virtual balance.
type Session struct {
	ID          SessionID
	Address     string
	Balance     decimal.Decimal
	ConnectedAt time.Time
}

// Debit removes amount from the balance, refusing to go negative.
func (s *Session) Debit(amount decimal.Decimal) error {
	if amount.GreaterThan(s.Balance) {
		return ErrInsufficientBalance
	}
	s.Balance = s.Balance.Sub(amount)
	return nil
}

func (s *Session) Credit(amount decimal.Decimal) {
	s.Balance = s.Balance.Add(amount)
}

// Registry is the session table and ledger. It is not safe for concurrent
// use; the engine loop is its only owner.
type Registry struct {
	sessions        map[SessionID]*Session
	startingBalance decimal.Decimal
}

func NewRegistry(startingBalance decimal.Decimal) *Registry {
	return &Registry{
		sessions:        make(map[SessionID]*Session),
		startingBalance: startingBalance,
	}
}

// Register creates the session for id, or returns the existing one untouched.
// A declared positive balance seeds a new session; otherwise the starting
// balance applies.
func (r *Registry) Register(id SessionID, address string, declared *decimal.Decimal, now time.Time) (*Session, bool) {
	if s, ok := r.sessions[id]; ok {
		return s, false
	}

	balance := r.startingBalance
	if declared != nil && declared.IsPositive() {
		balance = *declared
	}

	s := &Session{
		ID:          id,
		Address:     address,
		Balance:     balance,
		ConnectedAt: now,
	}
	r.sessions[id] = s
	return s, true
}

func (r *Registry) Get(id SessionID) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotRegistered
	}
	return s, nil
}

func (r *Registry) Release(id SessionID) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	return len(r.sessions)
}
