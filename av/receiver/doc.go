// Package receiver implements the audio receive path around the jitter
// buffer.
//
// A Receiver looks up every incoming packet's payload type in a Registry,
// classifies it as audio, comfort noise or DTMF, and inserts it into a
// PacketBuffer. With an initial delay set, a rtp.SyncGapManager tracks the
// stream: gaps between packets and packets overdue at output time are
// covered with sync packets, and GetAudio returns silence until the delay
// has been buffered.
//
// Example:
//
//	registry, err := receiver.RegistryFromSDP(offer)
//	if err != nil {
//	    return err
//	}
//	cfg := receiver.DefaultConfig()
//	cfg.InitialDelayMs = 200
//	r, err := receiver.New(cfg, registry,
//	    rtp.NewJitterBuffer(cfg.JitterBufferTime, cfg.JitterBufferPackets))
//	if err != nil {
//	    return err
//	}
//	_ = r.InsertRaw(datagram)
//	frame := r.GetAudio(48000)
//
// All Receiver methods are safe for concurrent use.
package receiver
