package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/brew-lab/thaumic-cast/internal/frame"
	"github.com/brew-lab/thaumic-cast/internal/policy"
	"github.com/brew-lab/thaumic-cast/internal/queue"
	"github.com/brew-lab/thaumic-cast/internal/ring"
	"github.com/brew-lab/thaumic-cast/internal/stats"
)

// waitTimeout bounds how long the consumer waits on an empty ring
// before declaring an underflow (spec.md 5/7: 200ms).
const waitTimeout = 200 * time.Millisecond

const maxInt = int(^uint(0) >> 1)

// FrameEncoder is the capability surface the consumer loop drives: the
// codec family's Encoder interface (ring element type Float32) and the
// mode=encode relay path (ring element type Int16) both implement it.
type FrameEncoder[T ring.Sample] interface {
	Encode(frame []T) ([]byte, error)
	Flush() ([]byte, error)
	AdvanceTimestamp(frames int)
	Close() error
	EncodeQueueSize() int
	Reconfigure(latencyMode string) ([]byte, error)
}

// Consumer runs the single-threaded ConsumerLoop: drain ring, assemble
// frames, encode, send to sink or queue, pace by time, catch up,
// underflow-ramp, report stats. Parameterized over the ring's sample
// element type so the same loop shape serves both the passthrough
// (Float32 ring + codec family) and mode=encode (Int16 ring + relay)
// sessions.
type Consumer[T ring.Sample] struct {
	r         *ring.Ring[T]
	assembler *frame.Assembler[T]
	encoder   FrameEncoder[T]
	policy    policy.Policy
	queue     *queue.Queue
	sink      queue.Sink
	stats     *stats.Collector

	channels         int
	sampleRate       int
	frameSizeSamples int
	perChannelRamp   int
	framePeriod      time.Duration

	running bool

	needsRampIn                   bool
	lastDropped                   uint32
	consecutiveBackpressureCycles int
	nextFrameDueTime              time.Time
	lastStatsTime                 time.Time
}

// NewConsumer wires a Consumer around r, producing frameSizeSamples
// interleaved frames and driving encoder. q is nil for realtime
// sessions (which never queue).
func NewConsumer[T ring.Sample](r *ring.Ring[T], encoder FrameEncoder[T], pol policy.Policy, q *queue.Queue, sink queue.Sink, sampleRate, channels, frameSizeSamples int) *Consumer[T] {
	perChannelFrame := frameSizeSamples / channels
	perChannelRamp := (sampleRate*3 + 500) / 1000 // 3ms worth of per-channel samples
	if perChannelRamp > perChannelFrame {
		perChannelRamp = perChannelFrame
	}
	return &Consumer[T]{
		r:                r,
		assembler:        frame.New[T](frameSizeSamples, channels),
		encoder:          encoder,
		policy:           pol,
		queue:            q,
		sink:             sink,
		stats:            stats.New(),
		channels:         channels,
		sampleRate:       sampleRate,
		frameSizeSamples: frameSizeSamples,
		perChannelRamp:   perChannelRamp,
		framePeriod:      time.Duration(perChannelFrame) * time.Second / time.Duration(sampleRate),
		running:          true,
	}
}

// Stats exposes the stats collector for the session to read the final
// timeline from.
func (c *Consumer[T]) Stats() *stats.Collector { return c.stats }

// Stop requests the loop to exit after its current cycle and perform
// the shutdown sequence.
func (c *Consumer[T]) Stop() { c.running = false }

// stepOutcome tells Run what to do between cycles.
type stepOutcome struct {
	sleep        time.Duration
	waitReadable bool
	err          error
}

// Run drives the loop to completion (Stop() called, or a fatal error),
// then performs the shutdown sequence and returns any fatal error.
func (c *Consumer[T]) Run() error {
	for c.running {
		now := time.Now()
		outcome := c.step(now)
		if outcome.err != nil {
			c.shutdown()
			return outcome.err
		}
		switch {
		case outcome.waitReadable:
			select {
			case <-c.r.Readable():
			case <-time.After(waitTimeout):
				c.onUnderflow()
			}
		case outcome.sleep > 0:
			time.Sleep(outcome.sleep)
		}
	}
	c.shutdown()
	return nil
}

// step runs one ConsumerLoop cycle per spec.md 4.F.
func (c *Consumer[T]) step(now time.Time) stepOutcome {
	// 1. Catch-up (realtime only).
	if c.policy.CatchUpEnabled {
		c.maybeCatchUp()
	}

	// 2. Producer-drop detection.
	if dropped := c.r.LoadDropped(); dropped != c.lastDropped {
		c.needsRampIn = true
		c.lastDropped = dropped
	}

	// 3. Quality flush.
	if !c.policy.DropOnBackpressure && c.queue != nil && c.queue.Len() > 0 {
		if err := c.queue.Flush(c.sink, c.policy.WSBufferHighWaterBytes); err != nil {
			return stepOutcome{err: fmt.Errorf("consumer: quality flush: %w", err)}
		}
	}

	// 4. Backoff.
	if c.backpressured() {
		c.consecutiveBackpressureCycles++
		delay := c.policy.BackoffDelay(c.consecutiveBackpressureCycles)
		c.maybeSnapshot(now)
		return stepOutcome{sleep: delay}
	}
	c.consecutiveBackpressureCycles = 0

	// 5. Pacing.
	if !c.nextFrameDueTime.IsZero() && now.Before(c.nextFrameDueTime) {
		return stepOutcome{sleep: c.nextFrameDueTime.Sub(now)}
	}

	// 6. Drain within time budget.
	const drainBudget = 4 * time.Millisecond
	deadline := time.Now().Add(drainBudget)
	availBeforeDrain := c.r.ConsumerAvailable()
	framesProduced := 0
	for c.r.ConsumerAvailable() > 0 && time.Now().Before(deadline) {
		complete, produced := c.assembler.Pull(c.r)
		if !produced {
			break
		}
		if err := c.encodeAndSend(complete); err != nil {
			return stepOutcome{err: err}
		}
		framesProduced++
		if c.encoder.EncodeQueueSize() >= c.policy.MaxEncodeQueue {
			break
		}
		if c.policy.DropOnBackpressure && c.sink.Buffered() >= c.policy.WSBufferHighWaterBytes {
			break
		}
	}
	if samplesRead := availBeforeDrain - c.r.ConsumerAvailable(); samplesRead > 0 {
		c.stats.RecordWake(samplesRead)
	}

	// 7. Advance pacing.
	if framesProduced > 0 {
		if c.nextFrameDueTime.IsZero() {
			c.nextFrameDueTime = now
		}
		c.nextFrameDueTime = c.nextFrameDueTime.Add(time.Duration(framesProduced) * c.framePeriod)
		maxDrift := 6 * c.framePeriod
		if floor := now.Add(-maxDrift); c.nextFrameDueTime.Before(floor) {
			c.nextFrameDueTime = floor
		}
	}

	// 8. Maybe emit stats snapshot.
	c.maybeSnapshot(now)

	// 9/10. Ring state decides the next wait.
	if c.r.ConsumerAvailable() > 0 {
		return stepOutcome{}
	}
	return stepOutcome{waitReadable: true}
}

// encodeAndSend applies any pending ramp-in, encodes one complete
// frame, and routes the output to the sink or the frame queue.
func (c *Consumer[T]) encodeAndSend(complete []T) error {
	if c.needsRampIn {
		frame.RampIn(complete, c.channels, c.perChannelRamp)
		c.needsRampIn = false
	}
	start := time.Now()
	out, err := c.encoder.Encode(complete)
	if err != nil {
		return fmt.Errorf("consumer: encode: %w", err)
	}
	c.stats.RecordEncode(time.Since(start))
	if len(out) == 0 {
		return nil
	}
	return c.route(out)
}

// route sends out to the sink immediately, unless backpressured, in
// which case realtime drops it (counted) and quality enqueues it.
func (c *Consumer[T]) route(out []byte) error {
	if c.sink.Buffered() < c.policy.WSBufferHighWaterBytes {
		if err := c.sink.Send(out); err != nil {
			return fmt.Errorf("consumer: send: %w", err)
		}
		c.stats.RecordFrameSent()
		return nil
	}
	if c.policy.DropOnBackpressure {
		c.stats.RecordDroppedFrame()
		return nil
	}
	dropsBefore := c.queue.OverflowDrops()
	c.queue.Enqueue(out)
	for i := dropsBefore; i < c.queue.OverflowDrops(); i++ {
		c.stats.RecordDroppedFrame()
	}
	return nil
}

// backpressured evaluates the policy-specific backpressure condition.
func (c *Consumer[T]) backpressured() bool {
	if c.encoder.EncodeQueueSize() >= c.policy.MaxEncodeQueue {
		return true
	}
	if c.policy.DropOnBackpressure {
		return c.sink.Buffered() >= c.policy.WSBufferHighWaterBytes
	}
	return c.queue != nil && c.queue.Bytes() >= c.policy.FrameQueueMaxBytes
}

// maybeCatchUp implements the realtime catch-up step.
func (c *Consumer[T]) maybeCatchUp() {
	catchUpMaxSamples := uint32(c.sampleRate*c.policy.CatchUpMaxMs/1000) * uint32(c.channels)
	avail := uint32(c.r.ConsumerAvailable())
	if avail <= catchUpMaxSamples {
		return
	}
	catchUpTargetSamples := uint32(c.sampleRate*c.policy.CatchUpTargetMs/1000) * uint32(c.channels)
	targetAligned := alignDown(catchUpTargetSamples, uint32(c.frameSizeSamples))
	if targetAligned > avail {
		targetAligned = avail
	}
	droppedSamples := avail - targetAligned

	write := c.r.LoadWrite()
	newRead := write - targetAligned
	c.r.AdvanceReadTo(newRead)
	c.assembler.Reset()

	droppedFrames := int(droppedSamples) / c.frameSizeSamples
	c.encoder.AdvanceTimestamp(droppedFrames)
	c.stats.RecordCatchUpDrop(int(droppedSamples))
}

func alignDown(x, frameSize uint32) uint32 {
	if frameSize == 0 {
		return x
	}
	return x - (x % frameSize)
}

// onUnderflow performs the underflow ramp: on a ring-wait timeout,
// fade the partial frame (if any) to silence, encode and send it, and
// arm a ramp-in for when audio resumes.
func (c *Consumer[T]) onUnderflow() {
	c.stats.RecordUnderflow()
	offset := c.assembler.Offset()
	if offset < c.channels {
		c.needsRampIn = true
		return
	}
	partial := c.assembler.Partial()
	last := make([]float64, c.channels)
	base := len(partial) - c.channels
	for ch := 0; ch < c.channels; ch++ {
		last[ch] = float64(partial[base+ch])
	}
	complete := c.assembler.FillSilenceFrom(c.perChannelRamp, last)
	_ = c.encodeAndSend(complete)
	c.needsRampIn = true
}

func (c *Consumer[T]) maybeSnapshot(now time.Time) {
	if !c.lastStatsTime.IsZero() && now.Sub(c.lastStatsTime) < stats.Interval {
		return
	}
	c.lastStatsTime = now
	fillFraction := float64(c.r.ConsumerAvailable()) / float64(c.r.Cap())
	queueBytes := 0
	if c.queue != nil {
		queueBytes = c.queue.Bytes()
	}
	c.stats.Snapshot(now, fillFraction, c.r.LoadDropped(), c.encoder.EncodeQueueSize(), c.sink.Buffered(), c.policy.WSBufferHighWaterBytes, queueBytes)
}

// shutdown flushes the partial frame, flushes and closes the encoder,
// drains any remaining frame-queue content, and closes down.
func (c *Consumer[T]) shutdown() {
	if offset := c.assembler.Offset(); offset > 0 {
		partial := c.assembler.Partial()
		_ = c.encodeAndSend(partial)
	}
	if out, err := c.encoder.Flush(); err == nil && len(out) > 0 {
		_ = c.sink.Send(out)
	}
	if c.queue != nil && c.queue.Len() > 0 {
		_ = c.queue.Flush(c.sink, maxInt)
	}
	c.encoder.Close()
}

// int16Bytes converts an Int16 frame to little-endian bytes. Used by
// the mode=encode relay encoder.
func int16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
