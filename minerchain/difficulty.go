package minerchain

import (
	"math/big"

	"github.com/modality-network/modalnode/shared/hashutil"
	"github.com/modality-network/modalnode/shared/params"
)

// ActualizedDifficulty returns the block's own difficulty value, defaulting
// to zero if unset (spec.md's fork-choice rule compares this field between
// competing blocks at the same index).
func (b *Block) ActualizedDifficulty() *big.Int {
	if b.Difficulty == nil {
		return big.NewInt(0)
	}
	return b.Difficulty
}

// TargetFor returns the hex-encoded PoW target for a difficulty value,
// using the network's fixed formula constants.
func TargetFor(difficulty uint64) string {
	return hashutil.DifficultyToTargetHash(difficulty, params.DifficultyCoefficient, params.DifficultyExponent, params.DifficultyBase)
}

// IsHashAcceptable reports whether hash satisfies difficulty under the fixed
// target formula (spec.md §4.1, §8 property 1).
func IsHashAcceptable(hash string, difficulty uint64) (bool, error) {
	return hashutil.IsHashAcceptable(hash, difficulty, params.DifficultyCoefficient, params.DifficultyExponent, params.DifficultyBase)
}

// RetargetDifficulty computes the next epoch's difficulty from the previous
// epoch's observed wall-clock span, per spec.md §4.1:
//
//	ratio = actualSecs / (targetBlockTimeSecs * blocksPerEpoch)
//	<0.5 -> x2; <0.75 -> x1.5; <0.9 -> x1.1
//	>2.0 -> /2; >1.5 -> x2/3; >1.1 -> x0.9
//	else unchanged
//
// clamped to [minDifficulty, maxDifficulty].
func RetargetDifficulty(currentDifficulty uint64, actualSecs int64, targetBlockTimeSecs int64, blocksPerEpoch uint64, minDifficulty, maxDifficulty uint64) uint64 {
	expected := targetBlockTimeSecs * int64(blocksPerEpoch)
	if expected <= 0 {
		return clampDifficulty(currentDifficulty, minDifficulty, maxDifficulty)
	}
	ratio := float64(actualSecs) / float64(expected)

	next := currentDifficulty
	switch {
	case ratio < 0.5:
		next = scaleDifficulty(currentDifficulty, 2, 1)
	case ratio < 0.75:
		next = scaleDifficulty(currentDifficulty, 3, 2)
	case ratio < 0.9:
		next = scaleDifficulty(currentDifficulty, 11, 10)
	case ratio > 2.0:
		next = scaleDifficulty(currentDifficulty, 1, 2)
	case ratio > 1.5:
		next = scaleDifficulty(currentDifficulty, 2, 3)
	case ratio > 1.1:
		next = scaleDifficulty(currentDifficulty, 9, 10)
	default:
		next = currentDifficulty
	}
	return clampDifficulty(next, minDifficulty, maxDifficulty)
}

func scaleDifficulty(d uint64, numer, denom int64) uint64 {
	v := new(big.Int).Mul(new(big.Int).SetUint64(d), big.NewInt(numer))
	v.Div(v, big.NewInt(denom))
	if v.Sign() <= 0 {
		return 1
	}
	return v.Uint64()
}

func clampDifficulty(d, min, max uint64) uint64 {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
