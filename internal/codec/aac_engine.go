package codec

// stubAACEngine produces a deterministic, fixed-size payload derived
// from the configured bitrate, in place of the psychoacoustic AAC
// encode the original system delegates to a browser codec for (out of
// scope; see DESIGN.md). It never blocks, and after construction it
// never allocates: every frame reuses the same output buffer.
type stubAACEngine struct {
	cfg        Config
	payloadLen int
	buf        []byte
}

func newStubAACEngine(cfg Config) *stubAACEngine {
	perChannelFrame := cfg.PerChannelFrame()
	// Constant-bitrate payload size for a frame of perChannelFrame
	// samples at the configured bitrate.
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 1
	}
	bitsPerFrame := cfg.BitrateKbps * 1000 * perChannelFrame / sampleRate
	payloadLen := bitsPerFrame / 8
	if payloadLen < 1 {
		payloadLen = 1
	}
	return &stubAACEngine{
		cfg:        cfg,
		payloadLen: payloadLen,
		buf:        make([]byte, payloadLen),
	}
}

func (e *stubAACEngine) EncodeFrame(samples []float32) ([]byte, error) {
	// Fold the input samples into a deterministic byte sequence sized
	// to the configured bitrate: a real codec would vary this with
	// VBR, but the framer only depends on payload length and content
	// stability, not actual perceptual compression.
	for i := range e.buf {
		var acc float32
		if len(samples) > 0 {
			acc = samples[i%len(samples)]
		}
		e.buf[i] = byte(int32(acc*127) + int32(i))
	}
	return e.buf, nil
}
