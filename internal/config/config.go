// Package config validates the INIT payload a session receives from
// its supervisor. Unlike the teacher's original config package, no
// state is ever persisted to disk: sessions are ephemeral (see
// SPEC_FULL.md §6), so this package's only job is turning an untrusted
// JSON payload into a validated, in-memory SessionConfig or a
// *ConfigError naming what was wrong.
package config

import "fmt"

var supportedSampleRates = map[int]bool{
	8000: true, 11025: true, 16000: true, 22050: true, 24000: true,
	32000: true, 44100: true, 48000: true, 88200: true, 96000: true,
}

// Mode selects whether the consumer relays already-framed Int16
// samples straight through (ModeEncode: the producer side already
// performed the codec's encode externally and the ring simply carries
// pre-framed Int16) or runs the internal encoder family itself
// (ModePassthrough, the default: raw samples flow from the ring
// through internal/codec, the core pipeline this repository
// implements).
type Mode string

const (
	ModeEncode      Mode = "encode"
	ModePassthrough Mode = "passthrough"
)

// EncoderConfig is the INIT payload's nested encoder configuration.
type EncoderConfig struct {
	Codec            string `json:"codec"`
	SampleRate       int    `json:"sampleRate"`
	Channels         int    `json:"channels"`
	BitrateKbps      int    `json:"bitrate"`
	LatencyMode      string `json:"latencyMode"`
	FrameDurationMs  int    `json:"frameDurationMs,omitempty"`
	FrameSizeSamples int    `json:"frameSizeSamples,omitempty"`
}

// SessionConfig is the validated, in-memory form of the INIT payload.
// It is never written to disk.
type SessionConfig struct {
	Sab           string        `json:"sab"`
	BufferSize    int           `json:"bufferSize"`
	BufferMask    uint32        `json:"bufferMask"`
	HeaderSize    int           `json:"headerSize"`
	SampleRate    int           `json:"sampleRate"`
	Channels      int           `json:"channels"`
	EncoderConfig EncoderConfig `json:"encoderConfig"`
	WSUrl         string        `json:"wsUrl"`
	Mode          Mode          `json:"mode,omitempty"`
}

// ConfigError marks a fatal, init-time configuration problem: ring
// size not a power of two, mask mismatch, unsupported sample rate, or
// a missing frameSizeSamples in encode mode. Sessions abort before any
// frame is produced when Validate returns one of these.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config: " + e.Msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks cfg against the invariants an INIT payload must
// satisfy, filling in defaults (Mode defaults to ModePassthrough) and
// returning a *ConfigError describing the first problem found.
func Validate(cfg *SessionConfig) error {
	if cfg.Mode == "" {
		cfg.Mode = ModePassthrough
	}
	if cfg.Mode != ModeEncode && cfg.Mode != ModePassthrough {
		return configErrorf("unknown mode %q", cfg.Mode)
	}

	if cfg.BufferSize < 1024 || cfg.BufferSize&(cfg.BufferSize-1) != 0 {
		return configErrorf("bufferSize %d must be a power of two >= 1024", cfg.BufferSize)
	}
	if cfg.BufferMask != uint32(cfg.BufferSize-1) {
		return configErrorf("bufferMask %d != bufferSize-1 (%d)", cfg.BufferMask, cfg.BufferSize-1)
	}
	if !supportedSampleRates[cfg.SampleRate] {
		return configErrorf("unsupported sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return configErrorf("unsupported channel count %d (must be 1 or 2)", cfg.Channels)
	}
	if cfg.WSUrl == "" {
		return configErrorf("wsUrl is required")
	}

	if cfg.Mode == ModeEncode && cfg.EncoderConfig.FrameSizeSamples == 0 {
		return configErrorf("mode=encode requires encoderConfig.frameSizeSamples (ring already carries pre-framed samples)")
	}
	if cfg.Mode == ModePassthrough && cfg.EncoderConfig.Codec == "" {
		return configErrorf("mode=passthrough requires encoderConfig.codec")
	}
	if !supportedSampleRates[cfg.EncoderConfig.SampleRate] && cfg.EncoderConfig.SampleRate != 0 {
		return configErrorf("unsupported encoder sample rate %d", cfg.EncoderConfig.SampleRate)
	}

	return nil
}
