package codec

import "fmt"

// adtsSampleRateIndex is the ISO/IEC 13818-7 sampling-frequency table
// used in ADTS byte 2.
var adtsSampleRateIndex = map[int]byte{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11, 7350: 12,
}

// aacEngine produces the compressed AAC payload for one frame. The
// real encode (psychoacoustic model, MDCT, bit allocation) is an
// external collaborator per scope (see DESIGN.md); the in-repo engine
// is a deterministic, self-contained stand-in so the ADTS framing
// logic below is fully exercised without a cgo/WASM dependency.
type aacEngine interface {
	EncodeFrame(samples []float32) ([]byte, error)
}

// aacEncoder wraps an aacEngine's output in a 7-byte ADTS header per
// frame.
type aacEncoder struct {
	cfg     Config
	engine  aacEngine
	profile byte
	srIndex byte

	header  [7]byte
	scratch []byte

	tsMicros    int64
	framePeriod int64
	closed      bool
}

func newAAC(cfg Config, engine aacEngine) (*aacEncoder, error) {
	srIndex, ok := adtsSampleRateIndex[cfg.SampleRate]
	if !ok {
		return nil, fmt.Errorf("codec: aac: unsupported sample rate %d", cfg.SampleRate)
	}
	if cfg.Channels < 1 || cfg.Channels > 7 {
		return nil, fmt.Errorf("codec: aac: unsupported channel count %d", cfg.Channels)
	}
	profile := byte(1) // AAC-LC
	if cfg.Codec == "he-aac" || cfg.Codec == "he-aac-v2" {
		profile = 4
	}

	e := &aacEncoder{
		cfg:         cfg,
		engine:      engine,
		profile:     profile,
		srIndex:     srIndex,
		framePeriod: microsPerFrame(cfg.PerChannelFrame(), cfg.SampleRate),
	}
	e.header[0] = 0xFF
	e.header[1] = 0xF1
	e.header[2] = ((profile - 1) << 6) | (srIndex << 2) | (byte(cfg.Channels>>2) & 1)
	return e, nil
}

func (e *aacEncoder) Encode(samples []float32) ([]byte, error) {
	if e.closed {
		return nil, fmt.Errorf("codec: aac: encode after close")
	}
	payload, err := e.engine.EncodeFrame(samples)
	if err != nil {
		return nil, fmt.Errorf("codec: aac: engine: %w", err)
	}

	frameLen := uint32(len(payload) + 7)
	e.scratch = append(e.scratch[:0], e.header[0], e.header[1], e.header[2])
	e.scratch = append(e.scratch,
		(byte(e.cfg.Channels&3)<<6)|byte((frameLen>>11)&3),
		byte((frameLen>>3)&0xFF),
		(byte(frameLen&7)<<5)|0x1F,
		0xFC,
	)
	e.scratch = append(e.scratch, payload...)

	e.tsMicros += e.framePeriod
	return e.scratch, nil
}

func (e *aacEncoder) Flush() ([]byte, error) {
	return nil, nil
}

func (e *aacEncoder) AdvanceTimestamp(frames int) {
	e.tsMicros += int64(frames) * e.framePeriod
}

func (e *aacEncoder) Close() error {
	e.closed = true
	return nil
}

func (e *aacEncoder) EncodeQueueSize() int { return 0 }

func (e *aacEncoder) Reconfigure(latencyMode string) ([]byte, error) {
	leftover, err := e.Flush()
	if err != nil {
		return nil, err
	}
	e.cfg.LatencyMode = latencyMode
	e.engine = newStubAACEngine(e.cfg)
	// Timestamp deliberately not reset: ADTS carries no sequence state
	// analogous to Ogg's serial/granule, and the timestamp must stay
	// monotone non-decreasing across the whole session.
	return leftover, nil
}

// Timestamp exposes the encoder's presentation clock, in microseconds,
// for tests and stats.
func (e *aacEncoder) Timestamp() int64 { return e.tsMicros }
