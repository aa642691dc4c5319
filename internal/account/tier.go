package account

import (
	"fmt"
	"math"
)

// Tier is the ordered membership rank derived from accumulated points.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
	TierDiamond  Tier = "Diamond"
)

var tierOrder = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum, TierDiamond}

// Band describes the inclusive points floor and the exclusive ceiling of a tier.
type Band struct {
	Floor   int64
	Ceiling int64
}

var tierBands = map[Tier]Band{
	TierBronze:   {Floor: 0, Ceiling: 1000},
	TierSilver:   {Floor: 1000, Ceiling: 5000},
	TierGold:     {Floor: 5000, Ceiling: 20000},
	TierPlatinum: {Floor: 20000, Ceiling: 50000},
	TierDiamond:  {Floor: 50000, Ceiling: 100000},
}

// Valid reports whether the tier is one of the known ranks.
func (t Tier) Valid() bool {
	_, ok := tierBands[t]
	return ok
}

// Next returns the rank above this one; ok is false for the top tier.
func (t Tier) Next() (Tier, bool) {
	for index, rank := range tierOrder {
		if rank == t && index+1 < len(tierOrder) {
			return tierOrder[index+1], true
		}
	}
	return "", false
}

// ParseTier validates a raw tier value.
func ParseTier(rawInput string) (Tier, error) {
	candidate := Tier(rawInput)
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, rawInput)
	}
	return candidate, nil
}

// ProgressPercent computes how far the points value has advanced through the
// tier's band, rounded to the nearest whole percent and clamped to [0, 100].
func ProgressPercent(tier Tier, points int64) int {
	band, ok := tierBands[tier]
	if !ok {
		return 0
	}
	span := band.Ceiling - band.Floor
	if span <= 0 {
		return 0
	}
	ratio := float64(points-band.Floor) / float64(span)
	percent := int(math.Round(ratio * 100))
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
