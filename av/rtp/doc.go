// Package rtp provides the RTP side of the avsync audio receive path.
//
// It tracks sequence number and timestamp continuity of an incoming audio
// stream while the receiver accumulates an initial playout delay, and
// describes "sync packets" that keep a downstream jitter buffer's view of
// the stream uninterrupted across missing or late packets. It uses the
// pion/rtp library for standards-compliant packet handling.
//
// # Architecture Overview
//
//   - SyncGapManager: detects gaps and late packets, computes the playout
//     timestamp during the initial delay
//   - SyncStream: description of a run of sync packets, expandable into
//     individual headers or pion RTP packets
//   - JitterBuffer: sequence ordered packet buffer the sync packets go into
//   - AudioPacketizer / AudioDepacketizer: build and parse RTP audio packets
//
// # Gap Tracking
//
// Every received packet is recorded in order of delivery:
//
//	manager := rtp.NewSyncGapManager(initialDelayMs, latePacketThreshold)
//	stream := manager.RecordIncomingPacket(rtp.SnapshotFromHeader(&pkt.Header),
//	    receiveTimestamp, rtp.PacketAudio, newCodec, sampleRateHz)
//	for _, p := range stream.Packets() {
//	    buffer.InsertSyncPacket(p)
//	}
//
// Once per output frame the current clock is checked for overdue packets:
//
//	stream := manager.DetectLatePackets(timestampNow)
//
// A run of sync packets always leaves a one packet hole next to a real
// packet, so for ten missing packets after an audio packet eight sync
// packets are produced.
//
// # Wraparound
//
// Sequence numbers wrap at 2^16 and timestamps at 2^32. Ordering always goes
// through IsNewerSequenceNumber and IsNewerTimestamp.
//
// # Thread Safety
//
// SyncGapManager performs no locking; the owning receiver serializes access.
// JitterBuffer, AudioPacketizer and AudioDepacketizer are safe for
// concurrent use.
package rtp
