// Package bytesutil has small byte-encoding helpers shared by the store key
// schema and the DAG digest plumbing, mirroring the teacher's shared/bytes
// helpers used for prefix-iterable keys.
package bytesutil

import "encoding/binary"

// Uint64ToBytes8 big-endian encodes n, used for fixed-width, sortable keys.
func Uint64ToBytes8(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// Bytes8ToUint64 decodes a big-endian fixed-width key back to a uint64.
func Bytes8ToUint64(b []byte) uint64 {
	if len(b) < 8 {
		padded := make([]byte, 8)
		copy(padded[8-len(b):], b)
		b = padded
	}
	return binary.BigEndian.Uint64(b)
}
