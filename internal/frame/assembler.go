// Package frame accumulates ring samples into codec-sized interleaved
// frames for the consumer loop. The assembler owns a single
// pre-allocated buffer of frameSizeSamples and a cursor; pulling from
// the ring wrap-around boundary is delegated to the ring's own
// two-segment copy, so the assembler only tracks how much of the
// current frame has been filled.
package frame

import "github.com/brew-lab/thaumic-cast/internal/ring"

// Sizes in per-channel samples for each codec family, per the data
// model: AAC frames are 1024 samples, Vorbis 2048, FLAC 4096, and PCM
// is derived from a configured frame duration.
const (
	PerChannelAAC    = 1024
	PerChannelVorbis = 2048
	PerChannelFLAC   = 4096
)

// PerChannelPCM returns round(sampleRate * frameDurationMs / 1000).
func PerChannelPCM(sampleRate, frameDurationMs int) int {
	return (sampleRate*frameDurationMs + 500) / 1000
}

// Assembler accumulates samples pulled from a ring into fixed-size
// interleaved frames.
type Assembler[T ring.Sample] struct {
	frameSize int
	channels  int
	buf       []T
	offset    int
}

// New returns an assembler producing frames of frameSizeSamples
// interleaved samples (perChannelFrame * channels).
func New[T ring.Sample](frameSizeSamples, channels int) *Assembler[T] {
	return &Assembler[T]{
		frameSize: frameSizeSamples,
		channels:  channels,
		buf:       make([]T, frameSizeSamples),
	}
}

// FrameSize returns the configured frame size in interleaved samples.
func (a *Assembler[T]) FrameSize() int { return a.frameSize }

// Offset reports how many samples of the current, in-progress frame
// have already been filled.
func (a *Assembler[T]) Offset() int { return a.offset }

// Pull reads up to frameSize-offset samples from r into the internal
// buffer and advances the ring's read pointer accordingly. When the
// buffer becomes full, it returns the completed frame and resets the
// cursor to zero; callers must not retain the returned slice past the
// next call to Pull or Reset, since the buffer is reused.
func (a *Assembler[T]) Pull(r *ring.Ring[T]) (complete []T, produced bool) {
	remaining := a.frameSize - a.offset
	if remaining <= 0 {
		return nil, false
	}
	n := r.Pop(a.buf[a.offset : a.offset+remaining])
	a.offset += n
	if a.offset == a.frameSize {
		a.offset = 0
		return a.buf, true
	}
	return nil, false
}

// Partial returns the samples accumulated so far in the in-progress
// frame, for shutdown flush; it does not reset the cursor.
func (a *Assembler[T]) Partial() []T { return a.buf[:a.offset] }

// Reset discards any partially accumulated frame, used by the
// consumer's catch-up step after re-aligning the ring's read pointer.
func (a *Assembler[T]) Reset() { a.offset = 0 }

// FillSilenceFrom pads the buffer from the current offset to the end
// of the frame with a rampSamples-long linear ramp from the last
// sample on each channel toward zero, then silence, and returns the
// completed frame. Used by the consumer's underflow ramp. last holds
// one sample per channel (the last values seen on the partial frame);
// if last is nil the ramp starts from zero.
func (a *Assembler[T]) FillSilenceFrom(rampSamples int, last []float64) []T {
	start := a.offset
	total := a.frameSize - start
	channels := a.channels
	if channels <= 0 {
		channels = 1
	}
	for i := 0; i < total; i++ {
		ch := i % channels
		var base float64
		if last != nil && ch < len(last) {
			base = last[ch]
		}
		frac := 1.0
		if rampSamples > 0 {
			step := i / channels
			frac = 1.0 - float64(step)/float64(rampSamples)
			if frac < 0 {
				frac = 0
			}
		} else {
			frac = 0
		}
		a.buf[start+i] = T(base * frac)
	}
	a.offset = 0
	return a.buf
}

// RampIn applies a rampSamples-long linear fade-in (0->1 across frames)
// to frame in place, used after a producer-drop ramp-in is requested.
func RampIn[T ring.Sample](frame []T, channels, rampSamples int) {
	if rampSamples <= 0 || channels <= 0 {
		return
	}
	for i := range frame {
		step := i / channels
		if step >= rampSamples {
			break
		}
		frac := float64(step) / float64(rampSamples)
		frame[i] = T(float64(frame[i]) * frac)
	}
}
