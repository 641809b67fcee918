package services

import (
	"github.com/0xRichardL/vibe-copy-trading/libs/go/numbers"
	"github.com/shopspring/decimal"
)

// ScaleVolume sizes a follower order proportionally to the follower/master
// balance ratio, adjusted by the relationship risk ratio, rounded half away
// from zero to 2 decimal places. A non-positive master balance or any
// non-finite input yields 0.
func ScaleVolume(masterVolume, masterBalance, followerBalance, riskRatio float64) float64 {
	for _, f := range []float64{masterVolume, masterBalance, followerBalance, riskRatio} {
		if !numbers.IsFinite(f) {
			return 0
		}
	}
	if masterBalance <= 0 {
		return 0
	}
	v := decimal.NewFromFloat(masterVolume).
		Mul(decimal.NewFromFloat(followerBalance)).
		Div(decimal.NewFromFloat(masterBalance)).
		Mul(decimal.NewFromFloat(riskRatio)).
		Round(2)
	return v.InexactFloat64()
}
