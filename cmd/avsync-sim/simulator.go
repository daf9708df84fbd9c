package main

import (
	"fmt"
	"sort"
	"time"

	avrtp "github.com/opd-ai/avsync/av/rtp"
	"github.com/opd-ai/avsync/av/receiver"
	"github.com/sirupsen/logrus"
)

// simEpochMs is the simulated wall clock at tick zero.
const simEpochMs = 1_000_000

// simClock is advanced by the simulation loop only.
type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time {
	return c.now
}

func (c *simClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type delivery struct {
	atMs   int
	offset int
	data   []byte
}

// Report summarizes a simulation run.
type Report struct {
	StreamID        string         `yaml:"stream_id"`
	InitialDelayMs  int            `yaml:"initial_delay_ms"`
	PacketsSent     int            `yaml:"packets_sent"`
	PacketsDropped  int            `yaml:"packets_dropped"`
	PacketsRejected int            `yaml:"packets_rejected"`
	FirstPlayoutMs  int            `yaml:"first_playout_ms"`
	Receiver        ReceiverReport `yaml:"receiver"`
}

// ReceiverReport mirrors receiver.Statistics.
type ReceiverReport struct {
	PacketsInserted    uint64 `yaml:"packets_inserted"`
	PacketsDiscarded   uint64 `yaml:"packets_discarded"`
	MissingSyncPackets uint64 `yaml:"missing_sync_packets"`
	LateSyncPackets    uint64 `yaml:"late_sync_packets"`
	SyncInsertFailures uint64 `yaml:"sync_insert_failures"`
	FramesPlayed       uint64 `yaml:"frames_played"`
	SyncFramesPlayed   uint64 `yaml:"sync_frames_played"`
	SilentFrames       uint64 `yaml:"silent_frames"`
	Underruns          uint64 `yaml:"underruns"`
	BufferFlushes      uint64 `yaml:"buffer_flushes"`
}

// simulate generates the scenario's stream, delivers it to a receiver
// built from cfg and pulls one frame per frame duration.
func simulate(s *Scenario, cfg receiver.Config) (*Report, error) {
	registry, err := s.Registry()
	if err != nil {
		return nil, err
	}

	dec, ok := registry.Lookup(s.PayloadType)
	if !ok || dec.Kind() != avrtp.PacketAudio {
		return nil, fmt.Errorf("%w: payload type %d is not an audio codec", errInvalidScenario, s.PayloadType)
	}

	dtmfPT, hasDTMF := dtmfPayloadType(registry)
	if len(s.DTMF) > 0 && !hasDTMF {
		return nil, fmt.Errorf("%w: dtmf offsets without telephone-event payload type", errInvalidScenario)
	}

	clock := &simClock{now: time.UnixMilli(simEpochMs)}
	jb := avrtp.NewJitterBufferWithTimeProvider(cfg.JitterBufferTime, cfg.JitterBufferPackets, clock)

	r, err := receiver.New(cfg, registry, jb)
	if err != nil {
		return nil, err
	}
	r.SetTimeProvider(clock)

	queue, dropped, err := generateStream(s, dec, dtmfPT)
	if err != nil {
		return nil, err
	}

	ticks := s.Ticks
	if ticks == 0 && len(queue) > 0 {
		ticks = (queue[len(queue)-1].atMs+s.FrameMs)/tickMs + 1
	}

	report := &Report{
		StreamID:       r.ID().String(),
		InitialDelayMs: cfg.InitialDelayMs,
		PacketsSent:    s.Packets,
		PacketsDropped: dropped,
		FirstPlayoutMs: -1,
	}

	var syncFrames uint64
	next := 0
	for tick := 0; tick < ticks; tick++ {
		nowMs := tick * tickMs

		for next < len(queue) && queue[next].atMs <= nowMs {
			if err := r.InsertRaw(queue[next].data); err != nil {
				report.PacketsRejected++
				logrus.WithFields(logrus.Fields{
					"function": "simulate",
					"offset":   queue[next].offset,
					"time_ms":  nowMs,
					"error":    err.Error(),
				}).Debug("Receiver rejected packet")
			}
			next++
		}

		if nowMs%s.FrameMs == 0 {
			frame := r.GetAudio(0)
			if frame.Packet != nil {
				if report.FirstPlayoutMs < 0 {
					report.FirstPlayoutMs = nowMs
				}
				if frame.Sync {
					syncFrames++
				}
			}
		}

		clock.advance(tickMs * time.Millisecond)
	}

	stats := r.Statistics()
	report.Receiver = ReceiverReport{
		PacketsInserted:    stats.PacketsInserted,
		PacketsDiscarded:   stats.PacketsDiscarded,
		MissingSyncPackets: stats.MissingSyncPackets,
		LateSyncPackets:    stats.LateSyncPackets,
		SyncInsertFailures: stats.SyncInsertFailures,
		FramesPlayed:       stats.FramesPlayed,
		SyncFramesPlayed:   syncFrames,
		SilentFrames:       stats.SilentFrames,
		Underruns:          stats.Underruns,
		BufferFlushes:      stats.BufferFlushes,
	}

	logrus.WithFields(logrus.Fields{
		"function":     "simulate",
		"stream_id":    report.StreamID,
		"ticks":        ticks,
		"missing_sync": stats.MissingSyncPackets,
		"late_sync":    stats.LateSyncPackets,
		"rejected":     report.PacketsRejected,
	}).Info("Simulation finished")

	return report, nil
}

// generateStream packetizes the scenario's stream and returns the
// deliveries ordered by arrival time plus the number of dropped packets.
func generateStream(s *Scenario, dec receiver.Decoder, dtmfPT uint8) ([]delivery, int, error) {
	packetizer, err := avrtp.NewAudioPacketizer(uint32(dec.ClockRate), dec.PayloadType)
	if err != nil {
		return nil, 0, err
	}

	samples := uint32(dec.ClockRate * s.FrameMs / 1000)
	payload := make([]byte, samples)
	for i := range payload {
		payload[i] = 0xff
	}

	drop := offsetSet(s.Drop)
	dtmf := offsetSet(s.DTMF)

	var queue []delivery
	dropped := 0
	for i := 0; i < s.Packets; i++ {
		if dtmf[i] {
			packetizer.SetPayloadType(dtmfPT)
		}
		pkt, err := packetizer.Packetize(payload, samples)
		packetizer.SetPayloadType(dec.PayloadType)
		if err != nil {
			return nil, 0, err
		}

		if drop[i] {
			dropped++
			continue
		}

		data, err := pkt.Marshal()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal packet %d: %w", i, err)
		}
		queue = append(queue, delivery{
			atMs:   i*s.FrameMs + s.delayFor(i),
			offset: i,
			data:   data,
		})
	}

	sort.SliceStable(queue, func(i, j int) bool { return queue[i].atMs < queue[j].atMs })
	return queue, dropped, nil
}
