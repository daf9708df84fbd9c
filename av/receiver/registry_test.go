package receiver

import (
	"testing"

	avrtp "github.com/opd-ai/avsync/av/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderKind(t *testing.T) {
	tests := []struct {
		name string
		want avrtp.PacketKind
	}{
		{"CN", avrtp.PacketComfortNoise},
		{"cn", avrtp.PacketComfortNoise},
		{"telephone-event", avrtp.PacketDTMF},
		{"opus", avrtp.PacketAudio},
		{"PCMU", avrtp.PacketAudio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decoder{Name: tt.name}.Kind())
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	tests := []struct {
		name    string
		decoder Decoder
		wantErr bool
	}{
		{"valid", Decoder{PayloadType: 96, Name: "opus", ClockRate: 48000, Channels: 2}, false},
		{"default channels", Decoder{PayloadType: 97, Name: "L16", ClockRate: 16000}, false},
		{"payload type too large", Decoder{PayloadType: 128, Name: "x", ClockRate: 8000}, true},
		{"zero clock rate", Decoder{PayloadType: 98, Name: "x"}, true},
		{"empty name", Decoder{PayloadType: 98, ClockRate: 8000}, true},
		{"negative channels", Decoder{PayloadType: 98, Name: "x", ClockRate: 8000, Channels: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.decoder)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDecoder)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	d, ok := r.Lookup(97)
	require.True(t, ok)
	assert.Equal(t, 1, d.Channels)
	assert.Equal(t, 160, d.SamplesPer10Ms())

	_, ok = r.Lookup(98)
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestStaticRegistry(t *testing.T) {
	r := StaticRegistry()

	d, ok := r.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "PCMU", d.Name)
	assert.Equal(t, 8000, d.ClockRate)

	d, ok = r.Lookup(13)
	require.True(t, ok)
	assert.Equal(t, avrtp.PacketComfortNoise, d.Kind())

	_, ok = r.Lookup(96)
	assert.False(t, ok)

	decoders := r.Decoders()
	require.NotEmpty(t, decoders)
	for i := 1; i < len(decoders); i++ {
		assert.Less(t, decoders[i-1].PayloadType, decoders[i].PayloadType)
	}
}

const testSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"c=IN IP4 127.0.0.1\r\n" +
	"t=0 0\r\n" +
	"m=audio 5004 RTP/AVP 111 0 13 101\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=rtpmap:101 telephone-event/8000\r\n" +
	"m=video 5006 RTP/AVP 96\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

func TestRegistryFromSDP(t *testing.T) {
	r, err := RegistryFromSDP([]byte(testSDP))
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	d, ok := r.Lookup(111)
	require.True(t, ok)
	assert.Equal(t, Decoder{PayloadType: 111, Name: "opus", ClockRate: 48000, Channels: 2}, d)

	d, ok = r.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, "PCMU", d.Name)

	d, ok = r.Lookup(101)
	require.True(t, ok)
	assert.Equal(t, avrtp.PacketDTMF, d.Kind())

	_, ok = r.Lookup(96)
	assert.False(t, ok, "video formats are not registered")
}

func TestRegistryFromSDPErrors(t *testing.T) {
	header := "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n"

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name:    "missing rtpmap",
			body:    header + "m=audio 5004 RTP/AVP 100\r\n",
			wantErr: ErrMissingRTPMap,
		},
		{
			name:    "no audio",
			body:    header + "m=video 5006 RTP/AVP 96\r\na=rtpmap:96 VP8/90000\r\n",
			wantErr: ErrNoAudioMedia,
		},
		{
			name: "malformed rtpmap",
			body: header + "m=audio 5004 RTP/AVP 100\r\na=rtpmap:100 opus\r\n",
		},
		{
			name: "not sdp",
			body: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RegistryFromSDP([]byte(tt.body))
			assert.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Nil(t, r)
		})
	}
}
