package rtp

import (
	"github.com/sirupsen/logrus"
)

// invalidPayloadType marks "no audio payload type known". RTP payload types
// are 7 bits wide, so it can never collide with a real one.
const invalidPayloadType uint8 = 0xFF

// maxLateSyncPackets bounds a single late-packet sync stream so that the
// advanced sequence number stays within half the sequence range of the last
// recorded packet. Longer outages are covered by consecutive calls.
const maxLateSyncPackets = sequenceHalfRange / 2

// SyncGapManager tracks sequence number and timestamp continuity of an
// incoming audio stream while the receiver accumulates its initial delay.
//
// For every gap it detects, either between two received packets or between
// the last received packet and the current time, it describes a run of sync
// packets that the caller injects into its jitter buffer so the buffer sees
// an uninterrupted stream.
//
// Runs of sync packets leave a one packet hole next to every real packet
// they border. A run that starts right after a previous sync run needs no
// hole at its start.
//
// SyncGapManager is not safe for concurrent use. The owning receiver
// serializes calls.
type SyncGapManager struct {
	lastKind             PacketKind
	lastHeader           HeaderSnapshot
	lastReceiveTimestamp uint32

	timestampStep    uint32
	audioPayloadType uint8

	initialDelayMs      int
	latePacketThreshold int

	bufferedAudioMs  int
	buffering        bool
	playoutTimestamp uint32
}

// NewSyncGapManager creates a manager that buffers initialDelayMs of audio
// before playout and synthesizes late packets once at least
// latePacketThreshold packets are overdue.
func NewSyncGapManager(initialDelayMs, latePacketThreshold int) *SyncGapManager {
	logrus.WithFields(logrus.Fields{
		"function":              "NewSyncGapManager",
		"initial_delay_ms":      initialDelayMs,
		"late_packet_threshold": latePacketThreshold,
	}).Info("Creating sync gap manager")

	return &SyncGapManager{
		lastKind:            PacketUndefined,
		lastHeader:          HeaderSnapshot{PayloadType: invalidPayloadType},
		audioPayloadType:    invalidPayloadType,
		initialDelayMs:      initialDelayMs,
		latePacketThreshold: latePacketThreshold,
		buffering:           true,
	}
}

// RecordIncomingPacket records a received packet and returns the sync
// packets, if any, that should be injected before it.
//
// Parameters:
//   - h: header of the received packet
//   - receiveTimestamp: local arrival time in RTP timestamp units
//   - kind: classification of the packet, never PacketUndefined
//   - newCodec: whether the payload format changed with this packet
//   - sampleRateHz: sample rate of the decoder for this payload
//
// A codec change restarts tracking and resets the buffered audio, but it
// never restarts buffering once the initial delay has been reached.
//
// An audio packet whose payload type differs from the tracked one while
// newCodec is false violates the calling contract. Such a packet is logged
// and ignored for tracking purposes. When only comfort noise has been seen
// so far, the first audio packet sets the tracked payload type instead.
func (m *SyncGapManager) RecordIncomingPacket(
	h HeaderSnapshot,
	receiveTimestamp uint32,
	kind PacketKind,
	newCodec bool,
	sampleRateHz int,
) SyncStream {
	// DTMF events are not tracked; they are rare where an initial delay is
	// used and their durations are irregular.
	if kind == PacketDTMF {
		return SyncStream{}
	}

	if m.lastKind != PacketUndefined &&
		!IsNewerSequenceNumber(h.SequenceNumber, m.lastHeader.SequenceNumber) {
		return SyncStream{}
	}

	if kind == PacketAudio && !newCodec && m.lastKind != PacketUndefined &&
		m.audioPayloadType == invalidPayloadType {
		m.audioPayloadType = h.PayloadType
	}

	if kind == PacketAudio && !newCodec && m.lastKind != PacketUndefined &&
		h.PayloadType != m.audioPayloadType {
		logrus.WithFields(logrus.Fields{
			"function":           "SyncGapManager.RecordIncomingPacket",
			"payload_type":       h.PayloadType,
			"audio_payload_type": m.audioPayloadType,
			"sequence_number":    h.SequenceNumber,
		}).Error("Audio payload type changed without codec change, packet ignored")
		return SyncStream{}
	}

	if m.lastKind == PacketUndefined || newCodec {
		m.timestampStep = 0
		if kind == PacketAudio {
			m.audioPayloadType = h.PayloadType
		} else {
			m.audioPayloadType = invalidPayloadType
		}
		m.recordLastPacket(h, receiveTimestamp, kind)
		m.bufferedAudioMs = 0
		m.updatePlayoutTimestamp(h, sampleRateHz)

		logrus.WithFields(logrus.Fields{
			"function":        "SyncGapManager.RecordIncomingPacket",
			"kind":            kind.String(),
			"payload_type":    h.PayloadType,
			"sequence_number": h.SequenceNumber,
			"new_codec":       newCodec,
		}).Debug("Stream tracking (re)started")
		return SyncStream{}
	}

	timestampIncrease := TimestampDistance(h.Timestamp, m.lastHeader.Timestamp)

	if m.buffering {
		m.bufferedAudioMs += ticksToMs(timestampIncrease, sampleRateHz)
		m.updatePlayoutTimestamp(h, sampleRateHz)

		if m.bufferedAudioMs >= m.initialDelayMs {
			m.buffering = false
			logrus.WithFields(logrus.Fields{
				"function":          "SyncGapManager.RecordIncomingPacket",
				"buffered_audio_ms": m.bufferedAudioMs,
				"initial_delay_ms":  m.initialDelayMs,
			}).Info("Initial delay reached, buffering finished")
		}
	}

	if h.SequenceNumber == m.lastHeader.SequenceNumber+1 {
		// only audio to audio transitions have a trustworthy duration
		if m.lastKind == PacketAudio {
			m.timestampStep = timestampIncrease
		}
		m.recordLastPacket(h, receiveTimestamp, kind)
		return SyncStream{}
	}

	packetGap := SequenceDistance(h.SequenceNumber, m.lastHeader.SequenceNumber) - 1

	numSyncPackets := int(packetGap) - 2
	if m.lastKind == PacketSync {
		numSyncPackets = int(packetGap) - 1
	}

	var stream SyncStream
	if numSyncPackets > 0 && m.audioPayloadType != invalidPayloadType {
		if m.timestampStep == 0 {
			m.timestampStep = timestampIncrease / (uint32(packetGap) + 1)
		}

		rewind := uint16(numSyncPackets + 1)
		stream = SyncStream{
			NumSyncPackets:   numSyncPackets,
			Header:           h.WithPayloadType(m.audioPayloadType).Rewind(rewind, m.timestampStep),
			ReceiveTimestamp: receiveTimestamp - uint32(rewind)*m.timestampStep,
			TimestampStep:    m.timestampStep,
		}

		logrus.WithFields(logrus.Fields{
			"function":         "SyncGapManager.RecordIncomingPacket",
			"packet_gap":       packetGap,
			"num_sync_packets": numSyncPackets,
			"first_sequence":   stream.Header.SequenceNumber,
			"timestamp_step":   m.timestampStep,
		}).Debug("Missing packets detected")
	}

	m.recordLastPacket(h, receiveTimestamp, kind)
	return stream
}

// DetectLatePackets checks whether enough time has passed since the last
// recorded packet to assume that packets are missing. timestampNow is the
// current time in RTP timestamp units of the current decoder.
//
// When a non-empty stream is returned the manager assumes the caller injects
// all of it, and continues tracking from the last sync packet.
func (m *SyncGapManager) DetectLatePackets(timestampNow uint32) SyncStream {
	// Without a step there is nothing to count with. Comfort noise has no
	// known duration, so nothing can be inferred after it either.
	if m.timestampStep == 0 ||
		m.lastKind == PacketComfortNoise ||
		m.lastKind == PacketUndefined ||
		m.audioPayloadType == invalidPayloadType {
		return SyncStream{}
	}

	if !IsNewerTimestamp(timestampNow, m.lastReceiveTimestamp) {
		return SyncStream{}
	}

	numLatePackets := int(TimestampDistance(timestampNow, m.lastReceiveTimestamp) / m.timestampStep)
	if numLatePackets < m.latePacketThreshold {
		return SyncStream{}
	}

	syncOffset := 1
	if m.lastKind != PacketSync {
		syncOffset++
		numLatePackets--
	}
	if numLatePackets <= 0 {
		return SyncStream{}
	}
	if numLatePackets > maxLateSyncPackets {
		numLatePackets = maxLateSyncPackets
	}

	stream := SyncStream{
		NumSyncPackets:   numLatePackets,
		Header:           m.lastHeader.WithPayloadType(m.audioPayloadType).Advance(uint16(syncOffset), m.timestampStep),
		ReceiveTimestamp: m.lastReceiveTimestamp + uint32(syncOffset)*m.timestampStep,
		TimestampStep:    m.timestampStep,
	}

	advance := uint16(numLatePackets + syncOffset - 1)
	m.lastHeader = m.lastHeader.WithPayloadType(m.audioPayloadType).Advance(advance, m.timestampStep)
	m.lastReceiveTimestamp += uint32(advance) * m.timestampStep
	m.lastKind = PacketSync

	logrus.WithFields(logrus.Fields{
		"function":         "SyncGapManager.DetectLatePackets",
		"num_sync_packets": numLatePackets,
		"first_sequence":   stream.Header.SequenceNumber,
		"timestamp_step":   m.timestampStep,
	}).Debug("Late packets detected")

	return stream
}

// CurrentPlayoutTimestamp returns the playout timestamp while the manager
// is buffering. The second return value is false once buffering is over.
func (m *SyncGapManager) CurrentPlayoutTimestamp() (uint32, bool) {
	if !m.buffering {
		return 0, false
	}
	return m.playoutTimestamp, true
}

// DisableBuffering ends the buffering phase.
func (m *SyncGapManager) DisableBuffering() {
	m.buffering = false
}

// Buffering reports whether the initial delay is still being accumulated.
func (m *SyncGapManager) Buffering() bool {
	return m.buffering
}

// HasReceivedAnyPacket reports whether a packet has been recorded.
func (m *SyncGapManager) HasReceivedAnyPacket() bool {
	return m.lastKind != PacketUndefined
}

// TimestampStep returns the current per-packet timestamp increment estimate,
// zero if unknown.
func (m *SyncGapManager) TimestampStep() uint32 {
	return m.timestampStep
}

func (m *SyncGapManager) recordLastPacket(h HeaderSnapshot, receiveTimestamp uint32, kind PacketKind) {
	m.lastKind = kind
	m.lastHeader = h
	m.lastReceiveTimestamp = receiveTimestamp
}

func (m *SyncGapManager) updatePlayoutTimestamp(h HeaderSnapshot, sampleRateHz int) {
	m.playoutTimestamp = h.Timestamp - uint32(m.initialDelayMs*sampleRateHz/1000)
}

func ticksToMs(ticks uint32, sampleRateHz int) int {
	if sampleRateHz <= 0 {
		return 0
	}
	return int(uint64(ticks) * 1000 / uint64(sampleRateHz))
}
