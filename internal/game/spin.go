package game

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// WinChance returns the win probability in percent for multiplier m.
func WinChance(multiplier decimal.Decimal) float64 {
	return hundred.Div(multiplier).InexactFloat64()
}

// EvaluateSpin settles one quick spin against balance. The bet is debited,
// and on a win bet*multiplier is credited. A uniform draw in [0, 100) wins
// when it falls below 100/multiplier. No upper bound is placed on the
// multiplier.
func EvaluateSpin(r *rand.Rand, balance, bet, multiplier decimal.Decimal) (SpinResult, error) {
	if !bet.IsPositive() || multiplier.LessThan(decimal.NewFromInt(1)) {
		return SpinResult{}, ErrInvalidBet
	}
	if bet.GreaterThan(balance) {
		return SpinResult{}, ErrInsufficientBalance
	}

	won := r.Float64()*100 < WinChance(multiplier)

	result := SpinResult{Won: won, Balance: balance.Sub(bet)}
	if won {
		payout := bet.Mul(multiplier)
		result.Amount = payout
		result.Balance = result.Balance.Add(payout)
	} else {
		result.Amount = bet.Neg()
	}
	return result, nil
}
