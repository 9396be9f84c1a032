// Package prize defines the tambola prize catalog and evaluates prize
// claims against the sequence of drawn numbers.
//
// The catalog is closed: exactly five prize kinds exist, and their payout
// fractions sum to 1.00 of the prize pool (early_five 0.20, each line 0.15,
// full_house 0.35).
package prize

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/model"
)

// Supported prize types.
const (
	EarlyFive  = "early_five"
	TopLine    = "top_line"
	MiddleLine = "middle_line"
	BottomLine = "bottom_line"
	FullHouse  = "full_house"
)

// ErrInvalidType is returned for a prize tag outside the catalog.
var ErrInvalidType = errors.New("prize: unknown prize type")

var payoutFractions = map[string]decimal.Decimal{
	EarlyFive:  decimal.NewFromFloat(0.20),
	TopLine:    decimal.NewFromFloat(0.15),
	MiddleLine: decimal.NewFromFloat(0.15),
	BottomLine: decimal.NewFromFloat(0.15),
	FullHouse:  decimal.NewFromFloat(0.35),
}

// Types returns the catalog in payout-schedule order.
func Types() []string {
	return []string{EarlyFive, TopLine, MiddleLine, BottomLine, FullHouse}
}

// Validate checks that a prize tag belongs to the catalog.
func Validate(prizeType string) error {
	if _, ok := payoutFractions[prizeType]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, prizeType)
	}
	return nil
}

// PayoutFraction returns the fraction of the prize pool paid for a prize.
func PayoutFraction(prizeType string) (decimal.Decimal, error) {
	f, ok := payoutFractions[prizeType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidType, prizeType)
	}
	return f, nil
}

// Payout computes floor(pool × fraction) for a prize. The pool is the value
// at the instant of settlement, not at game close: a prize claimed before
// the game sells out pays less than the same prize claimed later.
func Payout(pool decimal.Decimal, prizeType string) (decimal.Decimal, error) {
	f, err := PayoutFraction(prizeType)
	if err != nil {
		return decimal.Zero, err
	}
	return pool.Mul(f).Floor(), nil
}

// Evaluate reports whether a ticket satisfies a prize condition given the
// numbers drawn so far.
//
// Line prizes require the designated row to be fully drawn — five matches
// anywhere on the ticket are not enough, since all 15 ticket numbers are
// distinct.
func Evaluate(numbers model.TicketNumbers, drawn []int, prizeType string) (bool, error) {
	if err := Validate(prizeType); err != nil {
		return false, err
	}

	drawnSet := make(map[int]struct{}, len(drawn))
	for _, n := range drawn {
		drawnSet[n] = struct{}{}
	}

	switch prizeType {
	case EarlyFive:
		matched := 0
		for _, n := range numbers.All() {
			if _, ok := drawnSet[n]; ok {
				matched++
			}
		}
		return matched >= 5, nil
	case TopLine:
		return rowComplete(numbers.Row(0), drawnSet), nil
	case MiddleLine:
		return rowComplete(numbers.Row(1), drawnSet), nil
	case BottomLine:
		return rowComplete(numbers.Row(2), drawnSet), nil
	case FullHouse:
		for _, n := range numbers.All() {
			if _, ok := drawnSet[n]; !ok {
				return false, nil
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("%w: %q", ErrInvalidType, prizeType)
}

func rowComplete(row []int, drawn map[int]struct{}) bool {
	for _, n := range row {
		if _, ok := drawn[n]; !ok {
			return false
		}
	}
	return true
}
