// Package commission prices affiliate commission per traded lot.
//
// Every function here is pure: no I/O, no shared state. Callers that receive
// tiers or account classes from outside should validate them with ParseTier
// and ParseAccountClass and decide their own fallback on error.
package commission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTier         = errors.New("commission: invalid tier")
	ErrInvalidAccountClass = errors.New("commission: invalid account class")
)

// Tier is an affiliate level derived from the number of referrals.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// AccountClass is the pricing classification of the referred account.
type AccountClass string

const (
	ClassDirect        AccountClass = "Direct"
	ClassInstitutional AccountClass = "Institutional"
)

const (
	tier2Referrals = 100
	tier3Referrals = 200
)

// USD per lot for Direct accounts.
var directPerLot = map[Tier]decimal.Decimal{
	Tier1: decimal.RequireFromString("3.00"),
	Tier2: decimal.RequireFromString("3.50"),
	Tier3: decimal.RequireFromString("4.00"),
}

var half = decimal.RequireFromString("0.5")

// Trade is the subset of a closed trade needed for pricing. Lots wins over
// Volume when both are set.
type Trade struct {
	Symbol string
	Lots   float64
	Volume float64
}

func (t Trade) lots() decimal.Decimal {
	switch {
	case t.Lots != 0:
		return decimal.NewFromFloat(t.Lots)
	case t.Volume != 0:
		return decimal.NewFromFloat(t.Volume)
	default:
		return decimal.Zero
	}
}

// TierForReferralCount maps a referral count to its tier.
func TierForReferralCount(count int) Tier {
	switch {
	case count >= tier3Referrals:
		return Tier3
	case count >= tier2Referrals:
		return Tier2
	default:
		return Tier1
	}
}

// ParseTier validates an externally supplied tier number.
func ParseTier(n int) (Tier, error) {
	t := Tier(n)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTier, n)
	}
	return t, nil
}

func (t Tier) Valid() bool {
	_, ok := directPerLot[t]
	return ok
}

// ParseAccountClass accepts the class name in any letter case.
func ParseAccountClass(s string) (AccountClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct":
		return ClassDirect, nil
	case "institutional":
		return ClassInstitutional, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountClass, s)
	}
}

func (c AccountClass) Valid() bool {
	return c == ClassDirect || c == ClassInstitutional
}

// PerLot returns the fixed USD commission per lot. Institutional accounts get
// half of the Direct rate for the same tier.
func PerLot(tier Tier, class AccountClass) (decimal.Decimal, error) {
	base, ok := directPerLot[tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidTier, int(tier))
	}
	switch class {
	case ClassDirect:
		return base, nil
	case ClassInstitutional:
		return base.Mul(half), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAccountClass, string(class))
	}
}

// TradeCommission prices one trade. Ineligible instruments and non-positive
// lot counts earn zero; the result is never negative.
func TradeCommission(trade Trade, tier Tier, class AccountClass) (decimal.Decimal, error) {
	perLot, err := PerLot(tier, class)
	if err != nil {
		return decimal.Zero, err
	}
	if !IsEligibleInstrument(trade.Symbol, class) {
		return decimal.Zero, nil
	}
	amount := trade.lots().Mul(perLot)
	if amount.IsNegative() {
		return decimal.Zero, nil
	}
	return amount, nil
}
