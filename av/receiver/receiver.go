package receiver

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	avrtp "github.com/opd-ai/avsync/av/rtp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// nowMask keeps the millisecond clock small enough that multiplying by the
// rate in kHz stays within 32 bits for rates up to 48 kHz.
const nowMask = 0x03ffffff

// PacketBuffer is the jitter buffer the receiver feeds. *avrtp.JitterBuffer
// implements it.
type PacketBuffer interface {
	InsertPacket(pkt *rtp.Packet, receiveTimestamp uint32) error
	InsertSyncPacket(p avrtp.SyncPacket) error
	Pop() (avrtp.BufferedPacket, bool)
	Len() int
	Capacity() int
	Flush() int
	LastPoppedTimestamp() (uint32, bool)
}

// Frame is one output unit of GetAudio.
type Frame struct {
	// Packet is the released packet, nil for silence and underruns.
	Packet *rtp.Packet

	// Sync reports that Packet was synthesized to cover a gap.
	Sync bool

	// Silence reports that the receiver is still accumulating its initial
	// delay and produced a 10 ms silent frame.
	Silence bool

	// Underrun reports that nothing was ready in the buffer.
	Underrun bool

	SampleRateHz      int
	Channels          int
	SamplesPerChannel int
}

// Statistics holds receiver counters.
type Statistics struct {
	PacketsInserted    uint64
	PacketsDiscarded   uint64
	MissingSyncPackets uint64
	LateSyncPackets    uint64
	SyncInsertFailures uint64
	FramesPlayed       uint64
	SilentFrames       uint64
	Underruns          uint64
	BufferFlushes      uint64
}

// Receiver is the audio receive path: it classifies incoming packets,
// feeds them to the jitter buffer and, while an initial delay is set,
// fills gaps with sync packets and plays silence until enough audio is
// buffered.
type Receiver struct {
	mu sync.Mutex

	id           uuid.UUID
	cfg          Config
	registry     *Registry
	buffer       PacketBuffer
	depacketizer *avrtp.AudioDepacketizer
	timeProvider avrtp.TimeProvider

	lastAudioDecoder    Decoder
	hasAudioDecoder     bool
	currentSampleRateHz int

	avSync      bool
	syncManager *avrtp.SyncGapManager

	stats Statistics
}

// New creates a receiver decoding the payload types of registry into
// buffer. A positive cfg.InitialDelayMs enables the initial delay.
func New(cfg Config, registry *Registry, buffer PacketBuffer) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if buffer == nil {
		return nil, ErrNilBuffer
	}

	r := &Receiver{
		id:                  uuid.New(),
		cfg:                 cfg,
		registry:            registry,
		buffer:              buffer,
		depacketizer:        avrtp.NewAudioDepacketizer(),
		timeProvider:        avrtp.DefaultTimeProvider{},
		currentSampleRateHz: cfg.DefaultSampleRateHz,
	}

	logrus.WithFields(logrus.Fields{
		"function":         "New",
		"stream_id":        r.id.String(),
		"payload_types":    registry.Len(),
		"buffer_capacity":  buffer.Capacity(),
		"initial_delay_ms": cfg.InitialDelayMs,
	}).Info("Creating audio receiver")

	if cfg.InitialDelayMs > 0 {
		if err := r.SetInitialDelay(cfg.InitialDelayMs); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// SetTimeProvider replaces the clock used for receive timestamps.
func (r *Receiver) SetTimeProvider(tp avrtp.TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeProvider = tp
}

// ID returns the identifier attached to this receiver's log entries.
func (r *Receiver) ID() uuid.UUID {
	return r.id
}

// SetInitialDelay sets the amount of audio to buffer before playout starts.
// Zero disables the initial delay. A delay can only be replaced before the
// first packet was received under the current one.
func (r *Receiver) SetInitialDelay(delayMs int) error {
	if delayMs < 0 || delayMs > MaxInitialDelayMs {
		return fmt.Errorf("%w: %d ms outside [0, %d]", ErrInvalidInitialDelay, delayMs, MaxInitialDelayMs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if delayMs == 0 {
		r.avSync = false
		r.syncManager = nil
		logrus.WithFields(logrus.Fields{
			"function":  "Receiver.SetInitialDelay",
			"stream_id": r.id.String(),
		}).Info("Initial delay disabled")
		return nil
	}

	if r.avSync && r.syncManager.HasReceivedAnyPacket() {
		return ErrInitialDelayTooLate
	}

	r.avSync = true
	r.syncManager = avrtp.NewSyncGapManager(delayMs, r.cfg.LatePacketThreshold)

	logrus.WithFields(logrus.Fields{
		"function":         "Receiver.SetInitialDelay",
		"stream_id":        r.id.String(),
		"initial_delay_ms": delayMs,
	}).Info("Initial delay set")
	return nil
}

// ResetInitialDelay disables the initial delay.
func (r *Receiver) ResetInitialDelay() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.avSync = false
	r.syncManager = nil
}

// InitialDelayActive reports whether an initial delay is configured.
func (r *Receiver) InitialDelayActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.avSync
}

// InsertRaw parses an RTP packet and inserts it.
func (r *Receiver) InsertRaw(data []byte) error {
	pkt, err := r.depacketizer.ProcessPacket(data)
	if err != nil {
		r.mu.Lock()
		r.stats.PacketsDiscarded++
		r.mu.Unlock()
		return fmt.Errorf("failed to parse packet: %w", err)
	}
	return r.InsertPacket(pkt)
}

// InsertPacket classifies pkt by its payload type and inserts it into the
// jitter buffer, preceded by any sync packets needed to cover a gap.
//
// Comfort noise following a multichannel codec is dropped without error.
func (r *Receiver) InsertPacket(pkt *rtp.Packet) error {
	if pkt == nil {
		return avrtp.ErrNilPacket
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dec, ok := r.registry.Lookup(pkt.PayloadType)
	if !ok {
		r.stats.PacketsDiscarded++
		logrus.WithFields(logrus.Fields{
			"function":        "Receiver.InsertPacket",
			"stream_id":       r.id.String(),
			"payload_type":    pkt.PayloadType,
			"sequence_number": pkt.SequenceNumber,
		}).Warn("Unknown payload type")
		return fmt.Errorf("%w: %d", ErrUnknownPayloadType, pkt.PayloadType)
	}

	kind := dec.Kind()
	newCodec := false

	switch kind {
	case avrtp.PacketComfortNoise:
		if r.hasAudioDecoder && r.lastAudioDecoder.Channels > 1 {
			r.stats.PacketsDiscarded++
			return nil
		}
	case avrtp.PacketAudio:
		if !r.hasAudioDecoder || r.lastAudioDecoder.PayloadType != dec.PayloadType {
			newCodec = true
			r.lastAudioDecoder = dec
			r.hasAudioDecoder = true
			r.currentSampleRateHz = dec.ClockRate
		}
	}

	receiveTimestamp := r.nowInTimestamp(dec.ClockRate)

	var stream avrtp.SyncStream
	if r.avSync {
		stream = r.syncManager.RecordIncomingPacket(
			avrtp.SnapshotFromHeader(&pkt.Header), receiveTimestamp, kind, newCodec, dec.ClockRate)
	}

	if newCodec {
		if n := r.buffer.Flush(); n > 0 {
			r.stats.BufferFlushes++
			logrus.WithFields(logrus.Fields{
				"function":     "Receiver.InsertPacket",
				"stream_id":    r.id.String(),
				"payload_type": dec.PayloadType,
				"codec":        dec.Name,
				"flushed":      n,
			}).Info("Codec changed, jitter buffer flushed")
		}
	}

	r.stats.MissingSyncPackets += r.injectSyncStream(stream)

	if err := r.buffer.InsertPacket(pkt, receiveTimestamp); err != nil {
		r.stats.PacketsDiscarded++
		logrus.WithFields(logrus.Fields{
			"function":        "Receiver.InsertPacket",
			"stream_id":       r.id.String(),
			"sequence_number": pkt.SequenceNumber,
			"error":           err.Error(),
		}).Debug("Jitter buffer rejected packet")
		return fmt.Errorf("failed to buffer packet: %w", err)
	}

	r.stats.PacketsInserted++
	return nil
}

// GetAudio returns the next 10 ms unit of output. desiredRateHz is the
// caller's output rate; zero or negative keeps the current rate.
func (r *Receiver) GetAudio(desiredRateHz int) Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.avSync {
		silence := r.silenceCheck()

		now := r.nowInTimestamp(r.currentSampleRateHz)
		r.stats.LateSyncPackets += r.injectSyncStream(r.syncManager.DetectLatePackets(now))

		if silence {
			r.stats.SilentFrames++
			frame := r.emptyFrame(desiredRateHz)
			frame.Silence = true
			return frame
		}
	}

	bp, ok := r.buffer.Pop()
	if !ok {
		r.stats.Underruns++
		frame := r.emptyFrame(desiredRateHz)
		frame.Underrun = true
		return frame
	}

	r.stats.FramesPlayed++
	frame := r.emptyFrame(desiredRateHz)
	frame.Packet = bp.Packet
	frame.Sync = bp.Sync
	return frame
}

// PlayoutTimestamp returns the RTP timestamp currently being played out.
// While the initial delay is accumulating it is the delayed timestamp of
// the last received packet, otherwise that of the last released packet.
func (r *Receiver) PlayoutTimestamp() (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.avSync {
		if ts, ok := r.syncManager.CurrentPlayoutTimestamp(); ok {
			return ts, true
		}
	}
	return r.buffer.LastPoppedTimestamp()
}

// NowInTimestamp returns the local clock in RTP timestamp units at rateHz.
func (r *Receiver) NowInTimestamp(rateHz int) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nowInTimestamp(rateHz)
}

// LastAudioDecoder returns the decoder of the most recent audio packet.
func (r *Receiver) LastAudioDecoder() (Decoder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAudioDecoder, r.hasAudioDecoder
}

// CurrentSampleRateHz returns the output rate in use.
func (r *Receiver) CurrentSampleRateHz() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSampleRateHz
}

// Statistics returns a snapshot of the receiver counters.
func (r *Receiver) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Receiver) nowInTimestamp(rateHz int) uint32 {
	nowMs := uint32(r.timeProvider.Now().UnixMilli() & nowMask)
	return uint32(rateHz/1000) * nowMs
}

// silenceCheck reports whether the initial delay is still accumulating.
// A nearly full buffer ends buffering early.
func (r *Receiver) silenceCheck() bool {
	if !r.syncManager.Buffering() {
		return false
	}

	threshold := float64(r.buffer.Capacity()) * r.cfg.BufferingThresholdScale
	if float64(r.buffer.Len()) > threshold {
		r.syncManager.DisableBuffering()
		logrus.WithFields(logrus.Fields{
			"function":  "Receiver.silenceCheck",
			"stream_id": r.id.String(),
			"buffered":  r.buffer.Len(),
			"capacity":  r.buffer.Capacity(),
		}).Info("Jitter buffer nearly full, initial buffering stopped")
		return false
	}

	if r.hasAudioDecoder {
		r.currentSampleRateHz = r.lastAudioDecoder.ClockRate
	}
	return true
}

func (r *Receiver) injectSyncStream(stream avrtp.SyncStream) uint64 {
	var inserted uint64
	for _, p := range stream.Packets() {
		if err := r.buffer.InsertSyncPacket(p); err != nil {
			r.stats.SyncInsertFailures++
			logrus.WithFields(logrus.Fields{
				"function":        "Receiver.injectSyncStream",
				"stream_id":       r.id.String(),
				"sequence_number": p.Header.SequenceNumber,
				"error":           err.Error(),
			}).Warn("Failed to insert sync packet")
			continue
		}
		inserted++
	}
	return inserted
}

func (r *Receiver) emptyFrame(desiredRateHz int) Frame {
	rate := desiredRateHz
	if rate <= 0 {
		rate = r.currentSampleRateHz
	}
	channels := 1
	if r.hasAudioDecoder {
		channels = r.lastAudioDecoder.Channels
	}
	return Frame{
		SampleRateHz:      rate,
		Channels:          channels,
		SamplesPerChannel: rate / 100,
	}
}
