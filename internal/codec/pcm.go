package codec

import (
	"encoding/binary"
	"math"
	"math/rand"
)

// pcmEncoder quantizes Float32 samples to Int16 with TPDF (triangular
// probability density function) dither: the sum of two independent
// uniform [-0.5, 0.5] draws, added before rounding, decorrelates
// quantization error from the signal. Full-size frames are returned as
// a byte view of a pre-allocated buffer (zero-allocation hot path);
// partial frames (flush) allocate a right-sized slice. Callers must
// copy before retaining either, since the full-frame buffer is reused
// on the next Encode.
type pcmEncoder struct {
	cfg     Config
	rng     *rand.Rand
	fullLen int // full interleaved frame length in samples

	i16Buf  []int16
	byteBuf []byte

	tsMicros int64
	closed   bool
}

func newPCM(cfg Config) *pcmEncoder {
	return newPCMWithRand(cfg, rand.New(rand.NewSource(1)))
}

// newPCMWithRand lets callers (notably tests) inject a seeded RNG for
// reproducible dither sequences.
func newPCMWithRand(cfg Config, rng *rand.Rand) *pcmEncoder {
	full := cfg.PerChannelFrame() * cfg.Channels
	return &pcmEncoder{
		cfg:     cfg,
		rng:     rng,
		fullLen: full,
		i16Buf:  make([]int16, full),
		byteBuf: make([]byte, full*2),
	}
}

// quantize converts samples to Int16 with TPDF dither, writing into
// dstI16/dstBytes which must each be at least len(samples) long (in
// samples/bytes respectively).
func (e *pcmEncoder) quantize(samples []float32, dstI16 []int16, dstBytes []byte) {
	for i, s := range samples {
		dither := (e.rng.Float64() - 0.5) + (e.rng.Float64() - 0.5)
		v := math.Round(float64(s)*32767 + dither)
		if v > 32767 {
			v = 32767
		}
		if v < -32767 {
			v = -32767
		}
		dstI16[i] = int16(v)
		binary.LittleEndian.PutUint16(dstBytes[i*2:i*2+2], uint16(int16(v)))
	}
}

func (e *pcmEncoder) Encode(samples []float32) ([]byte, error) {
	n := len(samples)
	if n == e.fullLen {
		e.quantize(samples, e.i16Buf, e.byteBuf)
		e.advance(n)
		return e.byteBuf, nil
	}
	i16 := make([]int16, n)
	out := make([]byte, n*2)
	e.quantize(samples, i16, out)
	e.advance(n)
	return out, nil
}

func (e *pcmEncoder) advance(interleavedSamples int) {
	channels := e.cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	perChannel := interleavedSamples / channels
	e.tsMicros += microsPerFrame(perChannel, e.cfg.SampleRate)
}

func (e *pcmEncoder) Flush() ([]byte, error) { return nil, nil }

func (e *pcmEncoder) AdvanceTimestamp(frames int) {
	e.tsMicros += int64(frames) * microsPerFrame(e.cfg.PerChannelFrame(), e.cfg.SampleRate)
}

func (e *pcmEncoder) Close() error {
	e.closed = true
	return nil
}

func (e *pcmEncoder) EncodeQueueSize() int { return 0 }

func (e *pcmEncoder) Reconfigure(latencyMode string) ([]byte, error) {
	e.cfg.LatencyMode = latencyMode
	return nil, nil
}

// Timestamp exposes the encoder's presentation clock for tests/stats.
func (e *pcmEncoder) Timestamp() int64 { return e.tsMicros }
