package rtp

import "errors"

// Packet parsing errors.
var (
	// ErrEmptyPacket indicates that no RTP data was supplied.
	ErrEmptyPacket = errors.New("RTP data cannot be empty")

	// ErrUnexpectedSSRC indicates a packet from a source other than the one
	// the stream locked onto.
	ErrUnexpectedSSRC = errors.New("unexpected SSRC")

	// ErrInvalidClockRate indicates a zero clock rate.
	ErrInvalidClockRate = errors.New("clock rate cannot be zero")
)

// Jitter buffer errors.
var (
	// ErrNilPacket indicates a nil packet was inserted.
	ErrNilPacket = errors.New("packet cannot be nil")

	// ErrPacketTooOld indicates a packet at or before the last one played out.
	ErrPacketTooOld = errors.New("packet older than playout position")

	// ErrDuplicatePacket indicates a sequence number already in the buffer.
	ErrDuplicatePacket = errors.New("duplicate packet")

	// ErrBufferFull indicates a packet older than everything in a full buffer.
	ErrBufferFull = errors.New("jitter buffer full")
)
