package main

// relayEncoder implements FrameEncoder[int16] for mode=encode sessions:
// the producer already framed and quantized the stream, so there is no
// codec to run here (spec.md 6: "the consumer relays them directly
// without an internal encoder"). It tracks a presentation timestamp
// from the samples it relays and accepts the rest of the consumer
// loop's calls unchanged; AdvanceTimestamp does not move the
// timestamp, so frames skipped by catch-up are not reflected in it.
type relayEncoder struct {
	sampleRate int
	channels   int
	tsMicros   int64
	closed     bool
}

func newRelayEncoder(sampleRate, channels int) *relayEncoder {
	return &relayEncoder{sampleRate: sampleRate, channels: channels}
}

func (e *relayEncoder) Encode(samples []int16) ([]byte, error) {
	if e.closed {
		return nil, nil
	}
	perChannel := 0
	if e.channels > 0 {
		perChannel = len(samples) / e.channels
	}
	e.tsMicros += int64(perChannel) * 1_000_000 / int64(max1(e.sampleRate))
	return int16Bytes(samples), nil
}

func (e *relayEncoder) Flush() ([]byte, error) { return nil, nil }

func (e *relayEncoder) AdvanceTimestamp(frames int) {
	// frames here is a count of whole ring frames skipped; the relay
	// path has no fixed per-channel frame size of its own, so this is a
	// no-op: Encode advances the timestamp only for samples it relays.
	_ = frames
}

func (e *relayEncoder) Close() error {
	e.closed = true
	return nil
}

func (e *relayEncoder) EncodeQueueSize() int { return 0 }

func (e *relayEncoder) Reconfigure(latencyMode string) ([]byte, error) {
	_ = latencyMode
	return nil, nil
}

func (e *relayEncoder) Timestamp() int64 { return e.tsMicros }

func max1(v int) int {
	if v == 0 {
		return 1
	}
	return v
}
