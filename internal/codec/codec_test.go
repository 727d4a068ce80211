package codec

import "testing"

func TestPerChannelFrameSizes(t *testing.T) {
	cases := []struct {
		codec string
		want  int
	}{
		{"aac-lc", 1024},
		{"he-aac", 1024},
		{"he-aac-v2", 1024},
		{"vorbis", 2048},
		{"flac", 4096},
	}
	for _, c := range cases {
		cfg := Config{Codec: c.codec, SampleRate: 48000}
		if got := cfg.PerChannelFrame(); got != c.want {
			t.Errorf("PerChannelFrame(%s) = %d, want %d", c.codec, got, c.want)
		}
	}
}

func TestPerChannelFramePCMDefaultsTo20ms(t *testing.T) {
	cfg := Config{Codec: "pcm", SampleRate: 48000}
	if got := cfg.PerChannelFrame(); got != 960 {
		t.Errorf("PerChannelFrame(pcm, no duration) = %d, want 960 (20ms default)", got)
	}
}

func TestNewDispatchesByCodec(t *testing.T) {
	for _, codecName := range []string{"aac-lc", "he-aac", "vorbis", "flac", "pcm"} {
		cfg := Config{Codec: codecName, SampleRate: 48000, Channels: 2, BitrateKbps: 128}
		enc, err := New(cfg)
		if err != nil {
			t.Fatalf("New(%s): %v", codecName, err)
		}
		if enc == nil {
			t.Fatalf("New(%s) returned nil encoder", codecName)
		}
		enc.Close()
	}
}

func TestNewRejectsUnknownCodec(t *testing.T) {
	if _, err := New(Config{Codec: "mp3"}); err == nil {
		t.Fatalf("New(mp3) = nil error, want error")
	}
}
