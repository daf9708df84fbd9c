package receiver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	avrtp "github.com/opd-ai/avsync/av/rtp"
	psdp "github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"
)

// Decoder describes the payload format carried under one RTP payload type.
type Decoder struct {
	PayloadType uint8
	Name        string
	ClockRate   int
	Channels    int
}

// Kind classifies packets of this format for gap tracking.
func (d Decoder) Kind() avrtp.PacketKind {
	switch strings.ToLower(d.Name) {
	case "cn":
		return avrtp.PacketComfortNoise
	case "telephone-event":
		return avrtp.PacketDTMF
	default:
		return avrtp.PacketAudio
	}
}

// SamplesPer10Ms returns the number of samples per channel in 10 ms.
func (d Decoder) SamplesPer10Ms() int {
	return d.ClockRate / 100
}

// staticDecoders lists the RFC 3551 audio payload types with fixed meaning.
var staticDecoders = []Decoder{
	{PayloadType: 0, Name: "PCMU", ClockRate: 8000, Channels: 1},
	{PayloadType: 3, Name: "GSM", ClockRate: 8000, Channels: 1},
	{PayloadType: 4, Name: "G723", ClockRate: 8000, Channels: 1},
	{PayloadType: 8, Name: "PCMA", ClockRate: 8000, Channels: 1},
	{PayloadType: 9, Name: "G722", ClockRate: 8000, Channels: 1},
	{PayloadType: 10, Name: "L16", ClockRate: 44100, Channels: 2},
	{PayloadType: 11, Name: "L16", ClockRate: 44100, Channels: 1},
	{PayloadType: 13, Name: "CN", ClockRate: 8000, Channels: 1},
	{PayloadType: 18, Name: "G729", ClockRate: 8000, Channels: 1},
}

// Registry maps payload types to decoders.
//
// A Registry is built once and then only read; it is not safe for
// concurrent Register calls.
type Registry struct {
	decoders map[uint8]Decoder
}

// NewRegistry creates a registry holding decoders.
func NewRegistry(decoders ...Decoder) (*Registry, error) {
	r := &Registry{decoders: make(map[uint8]Decoder, len(decoders))}
	for _, d := range decoders {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// StaticRegistry returns a registry with the static audio payload types.
func StaticRegistry() *Registry {
	r, _ := NewRegistry(staticDecoders...)
	return r
}

// Register adds or replaces the decoder for d.PayloadType. A zero channel
// count means mono.
func (r *Registry) Register(d Decoder) error {
	if d.PayloadType > 127 {
		return fmt.Errorf("%w: payload type %d out of range", ErrInvalidDecoder, d.PayloadType)
	}
	if d.ClockRate <= 0 {
		return fmt.Errorf("%w: clock rate %d for payload type %d", ErrInvalidDecoder, d.ClockRate, d.PayloadType)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: empty name for payload type %d", ErrInvalidDecoder, d.PayloadType)
	}
	if d.Channels == 0 {
		d.Channels = 1
	}
	if d.Channels < 0 {
		return fmt.Errorf("%w: channel count %d for payload type %d", ErrInvalidDecoder, d.Channels, d.PayloadType)
	}

	r.decoders[d.PayloadType] = d
	return nil
}

// Lookup returns the decoder registered for pt.
func (r *Registry) Lookup(pt uint8) (Decoder, bool) {
	d, ok := r.decoders[pt]
	return d, ok
}

// Decoders returns all entries ordered by payload type.
func (r *Registry) Decoders() []Decoder {
	ret := make([]Decoder, 0, len(r.decoders))
	for _, d := range r.decoders {
		ret = append(ret, d)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].PayloadType < ret[j].PayloadType })
	return ret
}

// Len returns the number of registered payload types.
func (r *Registry) Len() int {
	return len(r.decoders)
}

// RegistryFromSDP builds a registry from the audio media sections of an SDP
// session description. Dynamic payload types need an rtpmap attribute;
// static ones fall back to their well-known meaning.
func RegistryFromSDP(body []byte) (*Registry, error) {
	var sd psdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("failed to parse SDP: %w", err)
	}

	r, _ := NewRegistry()
	static := StaticRegistry()

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}

		rtpMaps := make(map[uint8]Decoder)
		for _, attr := range md.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			d, err := decoderFromRTPMap(attr.Value)
			if err != nil {
				return nil, err
			}
			rtpMaps[d.PayloadType] = d
		}

		for _, format := range md.MediaName.Formats {
			tmp, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid payload type '%s'", format)
			}
			pt := uint8(tmp)

			d, ok := rtpMaps[pt]
			if !ok {
				d, ok = static.Lookup(pt)
			}
			if !ok {
				return nil, fmt.Errorf("%w: %d", ErrMissingRTPMap, pt)
			}
			if err := r.Register(d); err != nil {
				return nil, err
			}
		}
	}

	if r.Len() == 0 {
		return nil, ErrNoAudioMedia
	}

	logrus.WithFields(logrus.Fields{
		"function":      "RegistryFromSDP",
		"payload_types": r.Len(),
	}).Debug("Built decoder registry from SDP")

	return r, nil
}

// decoderFromRTPMap parses "<pt> <name>/<clock>[/<channels>]".
func decoderFromRTPMap(value string) (Decoder, error) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return Decoder{}, fmt.Errorf("invalid rtpmap '%s'", value)
	}

	tmp, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return Decoder{}, fmt.Errorf("invalid rtpmap payload type '%s'", parts[0])
	}

	enc := strings.Split(parts[1], "/")
	if len(enc) < 2 || len(enc) > 3 {
		return Decoder{}, fmt.Errorf("invalid rtpmap encoding '%s'", parts[1])
	}

	clockRate, err := strconv.Atoi(enc[1])
	if err != nil {
		return Decoder{}, fmt.Errorf("invalid rtpmap clock rate '%s'", enc[1])
	}

	channels := 1
	if len(enc) == 3 {
		channels, err = strconv.Atoi(enc[2])
		if err != nil {
			return Decoder{}, fmt.Errorf("invalid rtpmap channel count '%s'", enc[2])
		}
	}

	return Decoder{
		PayloadType: uint8(tmp),
		Name:        enc[0],
		ClockRate:   clockRate,
		Channels:    channels,
	}, nil
}
