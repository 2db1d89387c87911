// Package hashutil implements the hash-function family and PoW target
// arithmetic shared by the miner chain. It supports the SHA family plus a
// memory-hard, VM-based hash (named "vm") whose scratchpad state is
// initialized once per worker key and reused across attempts; HashWithVM
// uses a single shared key.
package hashutil

import (
	"crypto/sha1"  //nolint:gosec // one of several selectable PoW hash functions, not used for security-critical signing
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	sha256simd "github.com/minio/sha256-simd"
)

// Supported hash function names.
const (
	FuncSHA1   = "sha1"
	FuncSHA256 = "sha256"
	FuncSHA384 = "sha384"
	FuncSHA512 = "sha512"
	FuncVM     = "vm"
)

// HexLength is the expected hex-encoded digest length for each supported
// hash function, used to sanity-check persisted/ingested hashes.
var HexLength = map[string]int{
	FuncSHA1:   40,
	FuncSHA256: 64,
	FuncSHA384: 96,
	FuncSHA512: 128,
	FuncVM:     64,
}

// HashWithNonce hashes data concatenated with nonce using the named
// function, returning the lowercase hex digest. Used where the caller's
// serialization places the nonce as a trailing field.
func HashWithNonce(data string, nonce *big.Int, funcName string) (string, error) {
	return HashString(fmt.Sprintf("%s%s", data, nonce.String()), funcName)
}

// HashString hashes an already-assembled preimage using the named function,
// returning the lowercase hex digest. Used where the caller's serialization
// places the nonce at a fixed position within the preimage rather than at
// the end (e.g. the miner chain's block hash input, spec.md §6).
func HashString(input, funcName string) (string, error) {
	switch funcName {
	case FuncSHA1:
		sum := sha1.Sum([]byte(input)) //nolint:gosec
		return hex.EncodeToString(sum[:]), nil
	case FuncSHA256:
		sum := sha256simd.Sum256([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	case FuncSHA384:
		sum := sha512.Sum384([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	case FuncSHA512:
		sum := sha512.Sum512([]byte(input))
		return hex.EncodeToString(sum[:]), nil
	case FuncVM:
		return HashWithVM(input)
	default:
		return "", fmt.Errorf("unsupported hash function: %s", funcName)
	}
}

// DifficultyToTargetHash computes the hex-encoded target for a difficulty
// using the fixed formula target = (coefficient << (exponent*base)) /
// difficulty, per spec.md §4.1.
func DifficultyToTargetHash(difficulty, coefficient, exponent, base uint64) string {
	if difficulty == 0 {
		difficulty = 1
	}
	maxTarget := new(big.Int).Lsh(new(big.Int).SetUint64(coefficient), uint(exponent*base))
	target := new(big.Int).Div(maxTarget, new(big.Int).SetUint64(difficulty))
	return target.Text(16)
}

// maxUint256HexLen is 32 bytes hex-encoded, the widest digest uint256.Int
// can hold; sha384/sha512 digests exceed it and fall back to math/big.
const maxUint256HexLen = 64

// IsHashAcceptable reports whether hash (hex-encoded) is strictly less than
// the target derived from difficulty. Every mining attempt calls this, so
// digests that fit in 256 bits (sha1, sha256, the vm hash) take a fixed-width
// uint256 comparison instead of arbitrary-precision math/big; wider digests
// (sha384, sha512) fall back to math/big, which has no 256-bit ceiling.
func IsHashAcceptable(hash string, difficulty, coefficient, exponent, base uint64) (bool, error) {
	targetHex := DifficultyToTargetHash(difficulty, coefficient, exponent, base)

	if len(hash) <= maxUint256HexLen && len(targetHex) <= maxUint256HexLen {
		hashInt, err := paddedUint256FromHex(hash)
		if err != nil {
			return false, fmt.Errorf("invalid hex hash: %s", hash)
		}
		targetInt, err := paddedUint256FromHex(targetHex)
		if err != nil {
			return false, fmt.Errorf("invalid hex target: %s", targetHex)
		}
		return hashInt.Lt(targetInt), nil
	}

	hashInt, ok := new(big.Int).SetString(hash, 16)
	if !ok {
		return false, fmt.Errorf("invalid hex hash: %s", hash)
	}
	targetInt, ok := new(big.Int).SetString(targetHex, 16)
	if !ok {
		return false, fmt.Errorf("invalid hex target: %s", targetHex)
	}
	return hashInt.Cmp(targetInt) < 0, nil
}

// paddedUint256FromHex decodes an odd-length or short hex string into a
// uint256.Int, left-padding to a whole byte count the way a fixed-width
// target comparison needs.
func paddedUint256FromHex(s string) (*uint256.Int, error) {
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(b), nil
}
