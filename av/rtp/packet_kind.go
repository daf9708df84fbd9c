package rtp

// PacketKind classifies a packet for gap tracking purposes.
type PacketKind int

// Packet kinds. PacketUndefined is only ever the state before the first
// packet; callers never pass it in.
const (
	PacketUndefined PacketKind = iota
	PacketComfortNoise
	PacketDTMF
	PacketAudio
	PacketSync
)

// String implements fmt.Stringer.
func (k PacketKind) String() string {
	switch k {
	case PacketUndefined:
		return "undefined"
	case PacketComfortNoise:
		return "comfort-noise"
	case PacketDTMF:
		return "dtmf"
	case PacketAudio:
		return "audio"
	case PacketSync:
		return "sync"
	default:
		return "unknown"
	}
}
