package config_test

import (
	"errors"
	"testing"

	"github.com/brew-lab/thaumic-cast/internal/config"
)

func validBase() config.SessionConfig {
	return config.SessionConfig{
		Sab:        "shared-array-buffer-id",
		BufferSize: 1 << 16,
		BufferMask: (1 << 16) - 1,
		HeaderSize: 64,
		SampleRate: 48000,
		Channels:   2,
		WSUrl:      "ws://127.0.0.1:9090/stream",
		EncoderConfig: config.EncoderConfig{
			Codec:       "aac-lc",
			SampleRate:  48000,
			Channels:    2,
			BitrateKbps: 128,
			LatencyMode: "realtime",
		},
	}
}

func TestValidateAcceptsWellFormedPayload(t *testing.T) {
	cfg := validBase()
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Mode != config.ModePassthrough {
		t.Errorf("Mode = %q, want default %q", cfg.Mode, config.ModePassthrough)
	}
}

func TestValidateDefaultsModeToPassthrough(t *testing.T) {
	cfg := validBase()
	cfg.Mode = ""
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Mode != config.ModePassthrough {
		t.Errorf("Mode = %q, want %q", cfg.Mode, config.ModePassthrough)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validBase()
	cfg.Mode = "turbo"
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsNonPowerOfTwoBufferSize(t *testing.T) {
	cfg := validBase()
	cfg.BufferSize = 1000
	cfg.BufferMask = 999
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsUndersizedBuffer(t *testing.T) {
	cfg := validBase()
	cfg.BufferSize = 512
	cfg.BufferMask = 511
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsMaskMismatch(t *testing.T) {
	cfg := validBase()
	cfg.BufferMask = cfg.BufferMask ^ 0x1
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsUnsupportedSampleRate(t *testing.T) {
	cfg := validBase()
	cfg.SampleRate = 12345
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsBadChannelCount(t *testing.T) {
	cfg := validBase()
	cfg.Channels = 3
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsMissingWSUrl(t *testing.T) {
	cfg := validBase()
	cfg.WSUrl = ""
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateEncodeModeRequiresFrameSizeSamples(t *testing.T) {
	cfg := validBase()
	cfg.Mode = config.ModeEncode
	cfg.EncoderConfig.FrameSizeSamples = 0
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateEncodeModeIgnoresMissingCodec(t *testing.T) {
	cfg := validBase()
	cfg.Mode = config.ModeEncode
	cfg.EncoderConfig.Codec = ""
	cfg.EncoderConfig.FrameSizeSamples = 960
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v, want nil (encode mode needs no codec)", err)
	}
}

func TestValidatePassthroughModeRequiresCodec(t *testing.T) {
	cfg := validBase()
	cfg.EncoderConfig.Codec = ""
	assertConfigError(t, config.Validate(&cfg))
}

func TestValidateRejectsUnsupportedEncoderSampleRate(t *testing.T) {
	cfg := validBase()
	cfg.EncoderConfig.SampleRate = 9999
	assertConfigError(t, config.Validate(&cfg))
}

func assertConfigError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Validate: want *config.ConfigError, got nil")
	}
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Validate: error %v is not a *config.ConfigError", err)
	}
}
