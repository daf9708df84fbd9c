package receiver

import "errors"

// Sentinel errors for receiver operations.
// These errors enable reliable error classification using errors.Is().

// Construction and configuration errors.
var (
	// ErrInvalidConfig indicates a configuration value out of range.
	ErrInvalidConfig = errors.New("invalid receiver configuration")

	// ErrNilRegistry indicates a receiver was created without decoders.
	ErrNilRegistry = errors.New("registry cannot be nil")

	// ErrNilBuffer indicates a receiver was created without a packet buffer.
	ErrNilBuffer = errors.New("packet buffer cannot be nil")

	// ErrInvalidInitialDelay indicates an initial delay outside [0, MaxInitialDelayMs].
	ErrInvalidInitialDelay = errors.New("invalid initial delay")

	// ErrInitialDelayTooLate indicates the initial delay was changed after
	// packets were already received with a delay active.
	ErrInitialDelayTooLate = errors.New("initial delay can only be set before packets are received")
)

// Registry errors.
var (
	// ErrUnknownPayloadType indicates a payload type with no registered decoder.
	ErrUnknownPayloadType = errors.New("payload type not registered")

	// ErrInvalidDecoder indicates a decoder entry with invalid fields.
	ErrInvalidDecoder = errors.New("invalid decoder")

	// ErrMissingRTPMap indicates a dynamic payload type without rtpmap attribute.
	ErrMissingRTPMap = errors.New("missing rtpmap for dynamic payload type")

	// ErrNoAudioMedia indicates an SDP without audio media sections.
	ErrNoAudioMedia = errors.New("no audio media found")
)
