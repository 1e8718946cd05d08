package staking

import "math/big"

// Accrued computes the reward owed to a record for the interval between its
// last settlement and now, in the token's smallest unit.
//
// The numerator is assembled in full before the single truncating division:
//
//	floor(weeklyBase * multiplierBps * elapsed / (100 * secondsPerWeek))
//
// so truncation is the only place precision is lost. Repeated short-interval
// settlements therefore never pay more in aggregate than one long-interval
// settlement over the same span, and each call loses at most one smallest
// unit to rounding.
//
// Accrued is pure: it never mutates the record and may be called any number
// of times.
func Accrued(params RewardParams, record *StakeRecord, now int64) *big.Int {
	if record == nil || params.WeeklyBaseReward == nil || params.SecondsPerWeek == 0 {
		return big.NewInt(0)
	}
	if now <= record.LastSettledAt {
		return big.NewInt(0)
	}
	elapsed := now - record.LastSettledAt

	amount := new(big.Int).Set(params.WeeklyBaseReward)
	amount.Mul(amount, new(big.Int).SetUint64(uint64(record.MultiplierBps)))
	amount.Mul(amount, new(big.Int).SetInt64(elapsed))

	denom := new(big.Int).SetUint64(params.SecondsPerWeek)
	denom.Mul(denom, big.NewInt(MultiplierBpsDenominator))
	return amount.Quo(amount, denom)
}
