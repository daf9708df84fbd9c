package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// SSRCProvider generates synchronization source identifiers.
type SSRCProvider interface {
	GenerateSSRC() (uint32, error)
}

// RandomSSRCProvider draws SSRCs from crypto/rand.
type RandomSSRCProvider struct{}

// GenerateSSRC implements SSRCProvider.
func (RandomSSRCProvider) GenerateSSRC() (uint32, error) {
	ssrcBytes := make([]byte, 4)
	if _, err := rand.Read(ssrcBytes); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(ssrcBytes), nil
}

// AudioPacketizer wraps encoded audio frames into RTP packets with
// consecutive sequence numbers and timestamps.
type AudioPacketizer struct {
	mu             sync.Mutex
	ssrc           uint32
	sequenceNumber uint16
	timestamp      uint32
	clockRate      uint32
	payloadType    uint8
}

// NewAudioPacketizer creates a packetizer with a random SSRC.
//
// Parameters:
//   - clockRate: RTP clock rate in Hz (48000 for Opus, 8000 for G.711)
//   - payloadType: payload type stamped on every packet
//
// Returns:
//   - *AudioPacketizer: New packetizer instance
//   - error: Any error that occurred during setup
func NewAudioPacketizer(clockRate uint32, payloadType uint8) (*AudioPacketizer, error) {
	return NewAudioPacketizerWithSSRCProvider(clockRate, payloadType, RandomSSRCProvider{})
}

// NewAudioPacketizerWithSSRCProvider creates a packetizer whose SSRC comes
// from provider. Tests use it for deterministic output.
func NewAudioPacketizerWithSSRCProvider(clockRate uint32, payloadType uint8, provider SSRCProvider) (*AudioPacketizer, error) {
	logrus.WithFields(logrus.Fields{
		"function":     "NewAudioPacketizer",
		"clock_rate":   clockRate,
		"payload_type": payloadType,
	}).Info("Creating new audio packetizer")

	if clockRate == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "NewAudioPacketizer",
			"error":    ErrInvalidClockRate.Error(),
		}).Error("Invalid clock rate")
		return nil, ErrInvalidClockRate
	}

	ssrc, err := provider.GenerateSSRC()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewAudioPacketizer",
			"error":    err.Error(),
		}).Error("Failed to generate SSRC")
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}

	return &AudioPacketizer{
		ssrc:        ssrc,
		clockRate:   clockRate,
		payloadType: payloadType,
	}, nil
}

// Packetize wraps one encoded frame covering sampleCount samples.
func (ap *AudioPacketizer) Packetize(payload []byte, sampleCount uint32) (*rtp.Packet, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("audio data cannot be empty")
	}

	ap.mu.Lock()
	defer ap.mu.Unlock()

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    ap.payloadType,
			SequenceNumber: ap.sequenceNumber,
			Timestamp:      ap.timestamp,
			SSRC:           ap.ssrc,
		},
		Payload: payload,
	}

	logrus.WithFields(logrus.Fields{
		"function":        "AudioPacketizer.Packetize",
		"sequence_number": ap.sequenceNumber,
		"timestamp":       ap.timestamp,
		"ssrc":            ap.ssrc,
	}).Debug("Created RTP packet")

	ap.sequenceNumber++
	ap.timestamp += sampleCount

	return packet, nil
}

// SetPayloadType changes the payload type of subsequent packets.
func (ap *AudioPacketizer) SetPayloadType(pt uint8) {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	ap.payloadType = pt
}

// SSRC returns the stream's synchronization source.
func (ap *AudioPacketizer) SSRC() uint32 {
	return ap.ssrc
}

// ClockRate returns the RTP clock rate.
func (ap *AudioPacketizer) ClockRate() uint32 {
	return ap.clockRate
}

// AudioDepacketizer parses incoming RTP audio packets and locks onto the
// first SSRC it sees.
type AudioDepacketizer struct {
	mu           sync.Mutex
	expectedSSRC uint32
	hasSSRC      bool
}

// NewAudioDepacketizer creates a new audio RTP depacketizer.
func NewAudioDepacketizer() *AudioDepacketizer {
	return &AudioDepacketizer{}
}

// ProcessPacket parses rtpData and checks it belongs to the tracked source.
//
// Parameters:
//   - rtpData: Raw RTP packet data
//
// Returns:
//   - *rtp.Packet: Parsed packet
//   - error: ErrEmptyPacket, ErrUnexpectedSSRC or a parse error
func (ad *AudioDepacketizer) ProcessPacket(rtpData []byte) (*rtp.Packet, error) {
	if len(rtpData) == 0 {
		return nil, ErrEmptyPacket
	}

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(rtpData); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "AudioDepacketizer.ProcessPacket",
			"error":    err.Error(),
		}).Warn("Failed to unmarshal RTP packet")
		return nil, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()

	if !ad.hasSSRC {
		ad.expectedSSRC = packet.SSRC
		ad.hasSSRC = true
		logrus.WithFields(logrus.Fields{
			"function": "AudioDepacketizer.ProcessPacket",
			"ssrc":     packet.SSRC,
		}).Info("Accepted new SSRC for stream")
	} else if packet.SSRC != ad.expectedSSRC {
		logrus.WithFields(logrus.Fields{
			"function":      "AudioDepacketizer.ProcessPacket",
			"expected_ssrc": ad.expectedSSRC,
			"received_ssrc": packet.SSRC,
		}).Warn("Unexpected SSRC in RTP packet")
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrUnexpectedSSRC, ad.expectedSSRC, packet.SSRC)
	}

	return packet, nil
}

// Reset forgets the tracked SSRC.
func (ad *AudioDepacketizer) Reset() {
	ad.mu.Lock()
	defer ad.mu.Unlock()
	ad.hasSSRC = false
	ad.expectedSSRC = 0
}
