package rtp

import (
	"bytes"

	"github.com/pion/rtp"
)

// SyncPayload is the payload carried by injected sync packets. Buffers use it
// to tell sync packets apart from real audio with the same payload type.
var SyncPayload = []byte("sync")

// SyncStream describes a run of consecutive sync packets. Only the first
// packet is described; the rest follow with sequence numbers increasing by
// one and timestamps by TimestampStep.
//
// NumSyncPackets == 0 means nothing has to be injected and the remaining
// fields carry no meaning.
type SyncStream struct {
	NumSyncPackets   int
	Header           HeaderSnapshot
	ReceiveTimestamp uint32
	TimestampStep    uint32
}

// SyncPacket is a single entry of an expanded SyncStream.
type SyncPacket struct {
	Header           HeaderSnapshot
	ReceiveTimestamp uint32
}

// Empty reports whether the stream asks for no packets.
func (s SyncStream) Empty() bool {
	return s.NumSyncPackets <= 0
}

// Packets expands the stream into one entry per sync packet.
func (s SyncStream) Packets() []SyncPacket {
	if s.Empty() {
		return nil
	}

	ret := make([]SyncPacket, s.NumSyncPackets)
	h := s.Header
	recv := s.ReceiveTimestamp
	for i := range ret {
		ret[i] = SyncPacket{Header: h, ReceiveTimestamp: recv}
		h = h.Advance(1, s.TimestampStep)
		recv += s.TimestampStep
	}
	return ret
}

// RTPPackets expands the stream into RTP packets carrying SyncPayload.
func (s SyncStream) RTPPackets() []*rtp.Packet {
	entries := s.Packets()
	if entries == nil {
		return nil
	}

	ret := make([]*rtp.Packet, len(entries))
	for i, e := range entries {
		ret[i] = &rtp.Packet{
			Header:  e.Header.Header(),
			Payload: SyncPayload,
		}
	}
	return ret
}

// IsSyncPacket reports whether pkt was built from a SyncStream.
func IsSyncPacket(pkt *rtp.Packet) bool {
	return pkt != nil && bytes.Equal(pkt.Payload, SyncPayload)
}
