package main

import (
	"bytes"
	"errors"
	"fmt"

	avrtp "github.com/opd-ai/avsync/av/rtp"
	"github.com/opd-ai/avsync/av/receiver"
	"gopkg.in/yaml.v3"
)

// tickMs is the simulated clock resolution.
const tickMs = 10

var errInvalidScenario = errors.New("invalid scenario")

// DelayWindow delivers packets with offsets in [From, To] DelayMs late.
type DelayWindow struct {
	From    int `yaml:"from"`
	To      int `yaml:"to"`
	DelayMs int `yaml:"delay_ms"`
}

// Scenario describes a simulated RTP audio stream and how the network
// treats it. Offsets count packets from the start of the stream.
type Scenario struct {
	// SDP offer describing the payload types. Empty means static payload
	// types only.
	SDP string `yaml:"sdp,omitempty"`

	PayloadType uint8 `yaml:"payload_type"`
	FrameMs     int   `yaml:"frame_ms"`
	Packets     int   `yaml:"packets"`

	// Number of 10 ms ticks to simulate. Zero runs until the last
	// delivery plus one frame.
	Ticks int `yaml:"ticks,omitempty"`

	Drop   []int         `yaml:"drop,omitempty"`
	DTMF   []int         `yaml:"dtmf,omitempty"`
	Delays []DelayWindow `yaml:"delays,omitempty"`
}

// LoadScenario decodes a YAML scenario and applies defaults.
func LoadScenario(body []byte, strict bool) (*Scenario, error) {
	s := &Scenario{
		FrameMs: 20,
		Packets: 100,
	}

	decoder := yaml.NewDecoder(bytes.NewReader(body))
	decoder.KnownFields(strict)
	if err := decoder.Decode(s); err != nil {
		return nil, fmt.Errorf("could not parse scenario: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks frame timing and that every offset names a packet.
func (s *Scenario) Validate() error {
	if s.FrameMs <= 0 || s.FrameMs%tickMs != 0 {
		return fmt.Errorf("%w: frame_ms must be a positive multiple of %d", errInvalidScenario, tickMs)
	}
	if s.Packets <= 0 {
		return fmt.Errorf("%w: packets must be positive", errInvalidScenario)
	}
	if s.Ticks < 0 {
		return fmt.Errorf("%w: ticks cannot be negative", errInvalidScenario)
	}

	for _, offsets := range [][]int{s.Drop, s.DTMF} {
		for _, o := range offsets {
			if o < 0 || o >= s.Packets {
				return fmt.Errorf("%w: offset %d outside stream of %d packets", errInvalidScenario, o, s.Packets)
			}
		}
	}

	for _, w := range s.Delays {
		if w.From > w.To || w.From < 0 || w.To >= s.Packets {
			return fmt.Errorf("%w: delay window [%d, %d]", errInvalidScenario, w.From, w.To)
		}
		if w.DelayMs < 0 {
			return fmt.Errorf("%w: negative delay in window [%d, %d]", errInvalidScenario, w.From, w.To)
		}
	}
	return nil
}

// Registry returns the payload types the receiver decodes.
func (s *Scenario) Registry() (*receiver.Registry, error) {
	if s.SDP == "" {
		return receiver.StaticRegistry(), nil
	}
	return receiver.RegistryFromSDP([]byte(s.SDP))
}

// delayFor returns the extra delivery delay of packet offset.
func (s *Scenario) delayFor(offset int) int {
	for _, w := range s.Delays {
		if offset >= w.From && offset <= w.To {
			return w.DelayMs
		}
	}
	return 0
}

// dtmfPayloadType returns the first telephone-event payload type in registry.
func dtmfPayloadType(registry *receiver.Registry) (uint8, bool) {
	for _, d := range registry.Decoders() {
		if d.Kind() == avrtp.PacketDTMF {
			return d.PayloadType, true
		}
	}
	return 0, false
}

func offsetSet(offsets []int) map[int]bool {
	ret := make(map[int]bool, len(offsets))
	for _, o := range offsets {
		ret[o] = true
	}
	return ret
}
