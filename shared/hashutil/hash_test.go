package hashutil

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsHashAcceptableUint256FastPath(t *testing.T) {
	const coefficient, exponent, base = 0xffff, 0x1d, 8
	const difficulty = 1000

	targetHex := DifficultyToTargetHash(difficulty, coefficient, exponent, base)
	require.LessOrEqual(t, len(targetHex), maxUint256HexLen)

	target, ok := new(big.Int).SetString(targetHex, 16)
	require.True(t, ok)

	below := new(big.Int).Sub(target, big.NewInt(1))
	ok1, err := IsHashAcceptable(below.Text(16), difficulty, coefficient, exponent, base)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := IsHashAcceptable(target.Text(16), difficulty, coefficient, exponent, base)
	require.NoError(t, err)
	require.False(t, ok2)

	above := new(big.Int).Add(target, big.NewInt(1))
	ok3, err := IsHashAcceptable(above.Text(16), difficulty, coefficient, exponent, base)
	require.NoError(t, err)
	require.False(t, ok3)
}

// A sha512 digest (128 hex chars) is wider than uint256.Int can hold, so
// this exercises the math/big fallback branch instead.
func TestIsHashAcceptableMathBigFallbackForWideDigests(t *testing.T) {
	const coefficient, exponent, base = 0xffff, 0x3d, 8 // wide enough to exceed 256 bits
	const difficulty = 1

	targetHex := DifficultyToTargetHash(difficulty, coefficient, exponent, base)
	require.Greater(t, len(targetHex), maxUint256HexLen)

	wideLowHash := strings.Repeat("0", 127) + "1"
	ok, err := IsHashAcceptable(wideLowHash, difficulty, coefficient, exponent, base)
	require.NoError(t, err)
	require.True(t, ok)

	wideHighHash := strings.Repeat("f", 128)
	ok, err = IsHashAcceptable(wideHighHash, difficulty, coefficient, exponent, base)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsHashAcceptableRejectsInvalidHex(t *testing.T) {
	_, err := IsHashAcceptable("not-hex", 1000, 0xffff, 0x1d, 8)
	require.Error(t, err)
}
