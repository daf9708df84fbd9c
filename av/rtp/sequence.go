package rtp

// Sequence numbers wrap modulo 2^16 and timestamps modulo 2^32. All ordering
// decisions in this package go through the helpers below instead of comparing
// raw values.

const (
	sequenceHalfRange  = 0x8000
	timestampHalfRange = 0x80000000
)

// IsNewerSequenceNumber reports whether seq comes after prev, taking
// wraparound into account. When the two values are exactly half the range
// apart the larger raw value is considered newer.
func IsNewerSequenceNumber(seq, prev uint16) bool {
	if seq-prev == sequenceHalfRange {
		return seq > prev
	}
	return seq != prev && seq-prev < sequenceHalfRange
}

// IsNewerTimestamp is the 32-bit equivalent of IsNewerSequenceNumber.
func IsNewerTimestamp(ts, prev uint32) bool {
	if ts-prev == timestampHalfRange {
		return ts > prev
	}
	return ts != prev && ts-prev < timestampHalfRange
}

// LatestSequenceNumber returns whichever of a and b is newer.
func LatestSequenceNumber(a, b uint16) uint16 {
	if IsNewerSequenceNumber(a, b) {
		return a
	}
	return b
}

// SequenceDistance returns the forward distance from prev to seq, modulo 2^16.
func SequenceDistance(seq, prev uint16) uint16 {
	return seq - prev
}

// TimestampDistance returns the forward distance from prev to ts, modulo 2^32.
func TimestampDistance(ts, prev uint32) uint32 {
	return ts - prev
}
