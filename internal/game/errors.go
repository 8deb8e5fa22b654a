package game

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ErrorKind string

const (
	KindNotRegistered       ErrorKind = "not_registered"
	KindInvalidStake        ErrorKind = "invalid_stake"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindPoolFull            ErrorKind = "pool_full"
	KindPoolNotAccepting    ErrorKind = "pool_not_accepting"
	KindAlreadyInPool       ErrorKind = "already_in_pool"
	KindInvalidBet          ErrorKind = "invalid_bet"
	KindBadRequest          ErrorKind = "bad_request"
)

// Error is a rejected client request. It is delivered to the requester as an
// error frame and never changes engine state.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Kind so callers can test against the sentinels below even
// when the message carries request-specific detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotRegistered       = &Error{Kind: KindNotRegistered, Message: "Please connect wallet first"}
	ErrInvalidStake        = &Error{Kind: KindInvalidStake, Message: "Invalid stake"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "Insufficient balance"}
	ErrPoolFull            = &Error{Kind: KindPoolFull, Message: "Pool is full"}
	ErrPoolNotAccepting    = &Error{Kind: KindPoolNotAccepting, Message: "Pool is not accepting players"}
	ErrAlreadyInPool       = &Error{Kind: KindAlreadyInPool, Message: "Already in pool"}
	ErrInvalidBet          = &Error{Kind: KindInvalidBet, Message: "Bet amount must be positive and multiplier at least 1"}
	ErrBadRequest          = &Error{Kind: KindBadRequest, Message: "Invalid request"}

	ErrEngineStopped = errors.New("engine stopped")
)

func invalidStake(min, max decimal.Decimal) *Error {
	return &Error{
		Kind:    KindInvalidStake,
		Message: fmt.Sprintf("Stake must be between %s-%s SOL", min.String(), max.String()),
	}
}

func badRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// clientMessage extracts the text sent to the client for err.
func clientMessage(err error) string {
	var gameErr *Error
	if errors.As(err, &gameErr) {
		return gameErr.Message
	}
	return "Internal error"
}
