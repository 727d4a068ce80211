package codec

import (
	"fmt"
	"io"
	"math"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"
)

// flacEncoder wraps github.com/mewkiz/flac's real encoder: unlike AAC
// and Vorbis, a genuine pure-Go FLAC encode backend exists in the
// example corpus (see DESIGN.md), so this variant does not need a
// stand-in engine. The codec-description blob (the FLAC stream header
// plus STREAMINFO block) is emitted as a one-shot opaque prefix on the
// first Encode call, exactly as the data model specifies, followed by
// native frame bytes on every call thereafter.
type flacEncoder struct {
	cfg     Config
	out     *appendBuffer
	enc     *flac.Encoder
	drained int

	tsMicros int64
	closed   bool
}

// appendBuffer is an in-memory io.WriteSeeker: github.com/mewkiz/flac's
// encoder seeks back to patch STREAMINFO fields (total sample count,
// MD5) on Close. Bytes already drained by Encode have already been
// handed to the caller and sent onward, so a later backward patch only
// affects this buffer's retained copy, not frames already on the wire
// -- acceptable for a live stream, where the STREAMINFO sample count
// is advisory only.
type appendBuffer struct {
	data []byte
	pos  int
}

func (b *appendBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *appendBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(b.pos) + offset
	case io.SeekEnd:
		newPos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("codec: flac: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("codec: flac: negative seek position")
	}
	b.pos = int(newPos)
	return newPos, nil
}

func newFLAC(cfg Config) (*flacEncoder, error) {
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return nil, fmt.Errorf("codec: flac: unsupported channel count %d", cfg.Channels)
	}
	out := &appendBuffer{}
	info := &meta.StreamInfo{
		SampleRate:    uint32(cfg.SampleRate),
		NChannels:     uint8(cfg.Channels),
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(out, info)
	if err != nil {
		return nil, fmt.Errorf("codec: flac: new encoder: %w", err)
	}
	return &flacEncoder{cfg: cfg, out: out, enc: enc}, nil
}

// toPlanar de-interleaves Float32 samples into per-channel Int32
// planes, rounding and clamping to the 16-bit range configured above.
func (e *flacEncoder) toPlanar(samples []float32) [][]int32 {
	channels := e.cfg.Channels
	perChannel := len(samples) / channels
	planes := make([][]int32, channels)
	for ch := 0; ch < channels; ch++ {
		plane := make([]int32, perChannel)
		for i := 0; i < perChannel; i++ {
			v := math.Round(float64(samples[i*channels+ch]) * 32767)
			if v > 32767 {
				v = 32767
			}
			if v < -32768 {
				v = -32768
			}
			plane[i] = int32(v)
		}
		planes[ch] = plane
	}
	return planes
}

func (e *flacEncoder) Encode(samples []float32) ([]byte, error) {
	if e.closed {
		return nil, fmt.Errorf("codec: flac: encode after close")
	}
	planes := e.toPlanar(samples)
	if err := e.enc.Write(planes); err != nil {
		return nil, fmt.Errorf("codec: flac: write: %w", err)
	}
	e.tsMicros += microsPerFrame(len(planes[0]), e.cfg.SampleRate)
	return e.drain(), nil
}

// drain returns the bytes appended since the last drain and advances
// the high-water mark. The buffer itself is never trimmed, since
// Close() may still seek backward into already-appended regions.
func (e *flacEncoder) drain() []byte {
	newBytes := e.out.data[e.drained:e.out.pos]
	out := make([]byte, len(newBytes))
	copy(out, newBytes)
	e.drained = e.out.pos
	return out
}

func (e *flacEncoder) Flush() ([]byte, error) {
	if e.closed {
		return nil, nil
	}
	if err := e.enc.Close(); err != nil {
		return nil, fmt.Errorf("codec: flac: close: %w", err)
	}
	return e.drain(), nil
}

func (e *flacEncoder) AdvanceTimestamp(frames int) {
	e.tsMicros += int64(frames) * microsPerFrame(e.cfg.PerChannelFrame(), e.cfg.SampleRate)
}

func (e *flacEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.enc.Close()
}

func (e *flacEncoder) EncodeQueueSize() int { return 0 }

func (e *flacEncoder) Reconfigure(latencyMode string) ([]byte, error) {
	leftover, err := e.Flush()
	if err != nil {
		return nil, err
	}
	e.cfg.LatencyMode = latencyMode
	rebuilt, err := newFLAC(e.cfg)
	if err != nil {
		return nil, err
	}
	*e = *rebuilt
	return leftover, nil
}

// Timestamp exposes the encoder's presentation clock for tests/stats.
func (e *flacEncoder) Timestamp() int64 { return e.tsMicros }
