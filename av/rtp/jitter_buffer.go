package rtp

import (
	"sort"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library clock.
type DefaultTimeProvider struct{}

// Now returns time.Now().
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// BufferedPacket is a packet waiting in the jitter buffer.
type BufferedPacket struct {
	Packet           *rtp.Packet
	ReceiveTimestamp uint32
	Sync             bool
}

// JitterBuffer holds packets ordered by sequence number and releases at
// most one packet per bufferTime.
//
// Packets at or before the last released sequence number are rejected.
// When the buffer is full the oldest packet is dropped; if that is the
// incoming one, insertion fails with ErrBufferFull.
type JitterBuffer struct {
	mu           sync.Mutex
	bufferTime   time.Duration
	capacity     int
	packets      []BufferedPacket
	lastDequeue  time.Time
	timeProvider TimeProvider

	hasPopped           bool
	lastPoppedSeq       uint16
	lastPoppedTimestamp uint32
	dropped             uint64
}

// NewJitterBuffer creates a jitter buffer using the system clock.
//
// Parameters:
//   - bufferTime: Minimum spacing between released packets
//   - capacity: Maximum number of packets held
func NewJitterBuffer(bufferTime time.Duration, capacity int) *JitterBuffer {
	return NewJitterBufferWithTimeProvider(bufferTime, capacity, DefaultTimeProvider{})
}

// NewJitterBufferWithTimeProvider creates a jitter buffer driven by tp.
func NewJitterBufferWithTimeProvider(bufferTime time.Duration, capacity int, tp TimeProvider) *JitterBuffer {
	if capacity <= 0 {
		capacity = 1
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewJitterBuffer",
		"buffer_time": bufferTime.String(),
		"capacity":    capacity,
	}).Info("Creating new jitter buffer")

	return &JitterBuffer{
		bufferTime:   bufferTime,
		capacity:     capacity,
		packets:      make([]BufferedPacket, 0, capacity),
		timeProvider: tp,
		lastDequeue:  tp.Now(),
	}
}

// InsertPacket adds a received packet.
func (jb *JitterBuffer) InsertPacket(pkt *rtp.Packet, receiveTimestamp uint32) error {
	return jb.insert(BufferedPacket{Packet: pkt, ReceiveTimestamp: receiveTimestamp})
}

// InsertSyncPacket adds a sync packet built from p.
func (jb *JitterBuffer) InsertSyncPacket(p SyncPacket) error {
	return jb.insert(BufferedPacket{
		Packet: &rtp.Packet{
			Header:  p.Header.Header(),
			Payload: SyncPayload,
		},
		ReceiveTimestamp: p.ReceiveTimestamp,
		Sync:             true,
	})
}

func (jb *JitterBuffer) insert(bp BufferedPacket) error {
	if bp.Packet == nil {
		return ErrNilPacket
	}

	jb.mu.Lock()
	defer jb.mu.Unlock()

	seq := bp.Packet.SequenceNumber
	if jb.hasPopped && !IsNewerSequenceNumber(seq, jb.lastPoppedSeq) {
		return ErrPacketTooOld
	}

	// first position holding a packet newer than seq
	idx := sort.Search(len(jb.packets), func(i int) bool {
		return IsNewerSequenceNumber(jb.packets[i].Packet.SequenceNumber, seq)
	})
	if idx > 0 && jb.packets[idx-1].Packet.SequenceNumber == seq {
		return ErrDuplicatePacket
	}

	if len(jb.packets) >= jb.capacity {
		if idx == 0 {
			// older than everything in a full buffer
			jb.dropped++
			return ErrBufferFull
		}
		logrus.WithFields(logrus.Fields{
			"function":         "JitterBuffer.insert",
			"dropped_seq":      jb.packets[0].Packet.SequenceNumber,
			"capacity":         jb.capacity,
			"incoming_seq":     seq,
			"incoming_is_sync": bp.Sync,
		}).Warn("Jitter buffer full, dropping oldest packet")
		jb.packets = jb.packets[1:]
		jb.dropped++
		idx--
	}

	jb.packets = append(jb.packets, BufferedPacket{})
	copy(jb.packets[idx+1:], jb.packets[idx:])
	jb.packets[idx] = bp
	return nil
}

// Pop returns the oldest packet once bufferTime has elapsed since the
// previous release.
func (jb *JitterBuffer) Pop() (BufferedPacket, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	now := jb.timeProvider.Now()
	if now.Sub(jb.lastDequeue) < jb.bufferTime || len(jb.packets) == 0 {
		return BufferedPacket{}, false
	}

	bp := jb.packets[0]
	jb.packets[0] = BufferedPacket{}
	jb.packets = jb.packets[1:]
	jb.lastDequeue = now
	jb.hasPopped = true
	jb.lastPoppedSeq = bp.Packet.SequenceNumber
	jb.lastPoppedTimestamp = bp.Packet.Timestamp

	return bp, true
}

// Len returns the number of buffered packets.
func (jb *JitterBuffer) Len() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return len(jb.packets)
}

// Capacity returns the maximum number of buffered packets.
func (jb *JitterBuffer) Capacity() int {
	return jb.capacity
}

// Dropped returns how many packets were discarded because the buffer was full.
func (jb *JitterBuffer) Dropped() uint64 {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.dropped
}

// LastPoppedTimestamp returns the RTP timestamp of the last released packet.
func (jb *JitterBuffer) LastPoppedTimestamp() (uint32, bool) {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.lastPoppedTimestamp, jb.hasPopped
}

// Flush drops every buffered packet and forgets the playout position.
// It returns the number of packets dropped.
func (jb *JitterBuffer) Flush() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	n := len(jb.packets)
	jb.packets = make([]BufferedPacket, 0, jb.capacity)
	jb.hasPopped = false

	logrus.WithFields(logrus.Fields{
		"function":        "JitterBuffer.Flush",
		"cleared_packets": n,
	}).Info("Jitter buffer flushed")

	return n
}
