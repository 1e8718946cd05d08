package staking

import (
	"errors"
	"fmt"
	"math/big"
)

// MultiplierBpsDenominator defines the fixed denominator for rarity
// multipliers: 100bp = 1.0x.
const MultiplierBpsDenominator = 100

// DefaultSecondsPerWeek is the emission period the weekly base reward is
// spread over.
const DefaultSecondsPerWeek uint64 = 604800

// RewardParams controls reward emission. WeeklyBaseReward is expressed in the
// reward token's smallest unit so all accrual math stays in fixed point.
type RewardParams struct {
	WeeklyBaseReward *big.Int
	SecondsPerWeek   uint64
	Multipliers      map[RarityTier]uint32
}

// DefaultRewardParams mirrors the production emission schedule: 100 reward
// units per week at 1e8 smallest-unit scale, with 1x/1.5x/2x/3x rarity tiers.
func DefaultRewardParams() RewardParams {
	return RewardParams{
		WeeklyBaseReward: new(big.Int).Mul(big.NewInt(100), big.NewInt(100_000_000)),
		SecondsPerWeek:   DefaultSecondsPerWeek,
		Multipliers: map[RarityTier]uint32{
			RarityCommon:    100,
			RarityRare:      150,
			RarityEpic:      200,
			RarityLegendary: 300,
		},
	}
}

// Validate ensures the parameters fall within acceptable bounds.
func (p RewardParams) Validate() error {
	if p.WeeklyBaseReward == nil || p.WeeklyBaseReward.Sign() < 0 {
		return errors.New("weekly base reward must be zero or positive")
	}
	if p.SecondsPerWeek == 0 {
		return errors.New("seconds per week must be positive")
	}
	if len(p.Multipliers) == 0 {
		return errors.New("at least one rarity multiplier must be configured")
	}
	for tier, bps := range p.Multipliers {
		if bps == 0 {
			return fmt.Errorf("multiplier for %q must be positive", tier)
		}
	}
	return nil
}

// MultiplierBps resolves the basis-point multiplier for a rarity tier.
func (p RewardParams) MultiplierBps(tier RarityTier) (uint32, error) {
	bps, ok := p.Multipliers[tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRarity, tier)
	}
	return bps, nil
}

// Clone deep-copies the parameters so callers cannot mutate engine state.
func (p RewardParams) Clone() RewardParams {
	clone := RewardParams{
		WeeklyBaseReward: copyBigInt(p.WeeklyBaseReward),
		SecondsPerWeek:   p.SecondsPerWeek,
		Multipliers:      make(map[RarityTier]uint32, len(p.Multipliers)),
	}
	for tier, bps := range p.Multipliers {
		clone.Multipliers[tier] = bps
	}
	return clone
}
