// Package codec implements the polymorphic frame encoder family:
// ADTS-wrapped AAC, Ogg-framed Vorbis, native FLAC, and dithered PCM
// Int16. All four variants share one capability surface (encode,
// flush, advanceTimestamp, reconfigure, close, queue-depth hint), with
// per-variant framing state kept local to the variant, per the
// "codec polymorphism as a small capability set" design note.
package codec

import "fmt"

// Encoder is the shared surface every codec variant implements.
// Implementations never panic or throw from Encode; faults are
// reported through the error return and are translated by the caller
// into a session-level error.
type Encoder interface {
	// Encode enqueues an interleaved Float32 frame and returns any
	// consolidated output bytes ready to send. Callers must copy the
	// returned slice before retaining it past the next call, since
	// implementations reuse internal buffers for the zero-allocation
	// hot path.
	Encode(samples []float32) ([]byte, error)

	// Flush requests trailing output (end of stream, or ahead of a
	// reconfigure) and returns any bytes produced.
	Flush() ([]byte, error)

	// AdvanceTimestamp moves the internal presentation clock forward by
	// frames whole codec frames without emitting data, used when the
	// consumer discards a frame (catch-up, backpressure drop, or a
	// forced silence substitution).
	AdvanceTimestamp(frames int)

	// Close tears the encoder down. Idempotent: a second call is a
	// no-op and returns nil.
	Close() error

	// EncodeQueueSize is a readable depth hint used by the policy's
	// backpressure check.
	EncodeQueueSize() int

	// Reconfigure flushes, tears down, and rebuilds the underlying
	// codec engine at a new latency mode, resetting any per-variant
	// framer state via the variant's own reset hook. Returns any
	// leftover bytes from the pre-reconfigure flush.
	Reconfigure(latencyMode string) ([]byte, error)
}

// Config describes one encoder instance's fixed configuration.
type Config struct {
	Codec           string // "aac-lc", "he-aac", "he-aac-v2", "vorbis", "flac", "pcm"
	SampleRate      int
	Channels        int
	BitrateKbps     int
	LatencyMode     string
	FrameDurationMs int // PCM only; AAC/Vorbis/FLAC use fixed per-channel sizes
}

// PerChannelFrame returns the codec-determined per-channel frame size
// for cfg, per the data model (AAC 1024, Vorbis 2048, FLAC 4096, PCM
// derived from FrameDurationMs, defaulting to 20ms when unset).
func (cfg Config) PerChannelFrame() int {
	switch cfg.Codec {
	case "aac-lc", "he-aac", "he-aac-v2":
		return 1024
	case "vorbis":
		return 2048
	case "flac":
		return 4096
	case "pcm":
		ms := cfg.FrameDurationMs
		if ms == 0 {
			ms = 20 // open question, decided: default 20ms (see DESIGN.md)
		}
		return (cfg.SampleRate*ms + 500) / 1000
	default:
		return 0
	}
}

// New constructs the encoder variant named by cfg.Codec.
func New(cfg Config) (Encoder, error) {
	switch cfg.Codec {
	case "aac-lc", "he-aac", "he-aac-v2":
		return newAAC(cfg, newStubAACEngine(cfg))
	case "vorbis":
		return newVorbis(cfg, newStubVorbisEngine(cfg))
	case "flac":
		return newFLAC(cfg)
	case "pcm":
		return newPCM(cfg), nil
	default:
		return nil, fmt.Errorf("codec: unsupported codec %q", cfg.Codec)
	}
}

// microsPerFrame returns the presentation-time advance, in
// microseconds, of one whole codec frame at the given sample rate.
func microsPerFrame(perChannelFrame, sampleRate int) int64 {
	if sampleRate == 0 {
		return 0
	}
	return int64(perChannelFrame) * 1_000_000 / int64(sampleRate)
}
