package rtp

import (
	"github.com/pion/rtp"
)

// HeaderSnapshot holds the RTP header fields needed to track stream
// continuity. It is a value type: every modifier returns a copy.
type HeaderSnapshot struct {
	SequenceNumber uint16
	Timestamp      uint32
	PayloadType    uint8
	SSRC           uint32
}

// SnapshotFromHeader copies the tracked fields out of a pion RTP header.
func SnapshotFromHeader(h *rtp.Header) HeaderSnapshot {
	return HeaderSnapshot{
		SequenceNumber: h.SequenceNumber,
		Timestamp:      h.Timestamp,
		PayloadType:    h.PayloadType,
		SSRC:           h.SSRC,
	}
}

// WithPayloadType returns a copy with the payload type replaced.
func (h HeaderSnapshot) WithPayloadType(pt uint8) HeaderSnapshot {
	h.PayloadType = pt
	return h
}

// Advance moves the snapshot forward by packets packets of step ticks each.
func (h HeaderSnapshot) Advance(packets uint16, step uint32) HeaderSnapshot {
	h.SequenceNumber += packets
	h.Timestamp += uint32(packets) * step
	return h
}

// Rewind moves the snapshot backward by packets packets of step ticks each.
func (h HeaderSnapshot) Rewind(packets uint16, step uint32) HeaderSnapshot {
	h.SequenceNumber -= packets
	h.Timestamp -= uint32(packets) * step
	return h
}

// Header converts the snapshot into a version 2 pion RTP header.
func (h HeaderSnapshot) Header() rtp.Header {
	return rtp.Header{
		Version:        2,
		PayloadType:    h.PayloadType,
		SequenceNumber: h.SequenceNumber,
		Timestamp:      h.Timestamp,
		SSRC:           h.SSRC,
	}
}
