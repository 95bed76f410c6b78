// Package money converts between a monthly e9s price and the hourly/daily
// amounts the contract engine bills, using banker's rounding throughout so
// repeated derivations never drift (§9 design note 3: "treat hourly/daily
// e9s amounts as derived").
package money

import "math/big"

const (
	hoursPerMonth = 730 // 365 days * 24 h / 12, the convention offerings price against
	nsPerSecond   = 1_000_000_000
)

// HourlyFromMonthly derives an hourly e9s price from a monthly e9s price
// using round-half-to-even.
func HourlyFromMonthly(monthlyE9s int64) int64 {
	return roundHalfEven(big.NewRat(monthlyE9s, hoursPerMonth))
}

// ForDuration derives the total e9s price for a contract of durationHours
// from its offering's monthly e9s price.
func ForDuration(monthlyE9s int64, durationHours int64) int64 {
	rat := new(big.Rat).SetFrac64(monthlyE9s*durationHours, hoursPerMonth)
	return roundHalfEven(rat)
}

// EndTimestampNs computes start + durationHours in nanoseconds, matching the
// Contract invariant end_timestamp_ns = start_timestamp_ns + duration_hours*3600e9.
func EndTimestampNs(startNs int64, durationHours int64) int64 {
	return startNs + durationHours*3600*nsPerSecond
}

// Proportion computes round_half_even(amountE9s * numerator / denominator),
// the generalized form of ForDuration's monthly-to-duration scaling: any
// derived e9s amount that must be scaled by an exact ratio (e.g. the
// unconsumed remainder of a cancelled contract) goes through here instead
// of float64 division.
func Proportion(amountE9s, numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	product := new(big.Int).Mul(big.NewInt(amountE9s), big.NewInt(numerator))
	rat := new(big.Rat).SetFrac(product, big.NewInt(denominator))
	return roundHalfEven(rat)
}

// Fraction computes round_half_even(amountE9s * fraction), where fraction
// is a config-driven ratio such as a cancellation refund percentage. The
// fraction is converted to an exact big.Rat once so no float64 arithmetic
// ever touches the e9s amount itself.
func Fraction(amountE9s int64, fraction float64) int64 {
	f := new(big.Rat).SetFloat64(fraction)
	if f == nil {
		return 0
	}
	rat := new(big.Rat).Mul(new(big.Rat).SetInt64(amountE9s), f)
	return roundHalfEven(rat)
}

// roundHalfEven rounds a big.Rat to the nearest integer, breaking ties to
// the even neighbor.
func roundHalfEven(r *big.Rat) int64 {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()

	quot, rem := new(big.Int), new(big.Int)
	quot.QuoRem(num, den, rem)

	remDoubled := new(big.Int).Mul(rem, big.NewInt(2))
	remDoubled.Abs(remDoubled)
	cmp := remDoubled.Cmp(den)

	if cmp < 0 {
		return quot.Int64()
	}
	if cmp > 0 {
		return bumpAwayFromZero(quot, r.Sign()).Int64()
	}
	// Exactly half: round to even.
	if quot.Bit(0) == 0 {
		return quot.Int64()
	}
	return bumpAwayFromZero(quot, r.Sign()).Int64()
}

func bumpAwayFromZero(quot *big.Int, sign int) *big.Int {
	if sign < 0 {
		return new(big.Int).Sub(quot, big.NewInt(1))
	}
	return new(big.Int).Add(quot, big.NewInt(1))
}
