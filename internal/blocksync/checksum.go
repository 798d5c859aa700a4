package blocksync

import (
	"crypto/sha256"
	"encoding/hex"
)

// WeakChecksum computes the rolling checksum of p: two 16-bit accumulators
// packed into a uint32 (a in the low half, b in the high half), the rsync
// shape. It is cheap to compute and can be slid one byte at a time with Roll.
func WeakChecksum(p []byte) uint32 {
	var a, b uint32
	l := uint32(len(p))
	for i, c := range p {
		a += uint32(c)
		b += (l - uint32(i)) * uint32(c)
	}
	return (a & 0xffff) | (b&0xffff)<<16
}

// Roll slides a weak checksum of a window of windowSize bytes one byte
// forward: out is the byte leaving the window, in the byte entering it.
// Roll(WeakChecksum(p[i:i+n]), p[i], p[i+n], n) == WeakChecksum(p[i+1:i+1+n]).
func Roll(sum uint32, out, in byte, windowSize int) uint32 {
	a := sum & 0xffff
	b := sum >> 16
	a = (a - uint32(out) + uint32(in)) & 0xffff
	b = (b - uint32(windowSize)*uint32(out) + a) & 0xffff
	return a | b<<16
}

// StrongChecksum returns the hex-encoded SHA-256 of p. It confirms that a
// weak-checksum match is not a collision, and doubles as the whole-file
// checksum recorded in the change journal.
func StrongChecksum(p []byte) string {
	sum := sha256.Sum256(p)
	return hex.EncodeToString(sum[:])
}
