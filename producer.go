package main

import (
	"math"
	"math/rand"

	"github.com/brew-lab/thaumic-cast/internal/ring"
)

// CaptureBlock is one block delivered by the host capture callback:
// frameCount frames x channels channels of Float32 in [-1,1].
type CaptureBlock struct {
	Samples  []float32
	Channels int
}

// CaptureSource abstracts the host's tab-capture callback so the
// producer can be driven by synthetic blocks in tests. A real binding
// into the browser/host capture API is outside this repository (see
// SPEC_FULL.md 4.B); production callers wire their own implementation.
type CaptureSource interface {
	// NextBlock blocks until a capture block is available, or returns
	// ok=false once the source is closed.
	NextBlock() (block CaptureBlock, ok bool)
}

// Producer pushes CaptureBlocks into the Int16 or Float32 ring. It is
// designed to run on (or be called synchronously from) a real-time
// audio thread: Push never allocates, locks, or blocks once its scratch
// buffers have grown to the largest block seen so far.
type Producer struct {
	ringChannels int
	rng          *rand.Rand

	interleaveBuf []float32
	floatBuf      []float32
	int16Buf      []int16
}

// NewProducer returns a Producer configured for a ring carrying
// ringChannels channels (1 or 2; mono CaptureBlocks are upmixed by
// duplication into L/R when ringChannels == 2).
func NewProducer(ringChannels int) *Producer {
	return &Producer{ringChannels: ringChannels, rng: rand.New(rand.NewSource(1))}
}

// growFloat32 returns a slice of length n backed by buf's array when it
// already has enough capacity, reallocating only when it must grow.
func growFloat32(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func growInt16(buf []int16, n int) []int16 {
	if cap(buf) < n {
		return make([]int16, n)
	}
	return buf[:n]
}

// interleave upmixes a mono block to stereo by duplication into the
// reusable interleaveBuf, or returns block.Samples unchanged when the
// channel counts already match.
func (p *Producer) interleave(block CaptureBlock) []float32 {
	if block.Channels == p.ringChannels {
		return block.Samples
	}
	if block.Channels == 1 && p.ringChannels == 2 {
		perChannel := len(block.Samples)
		p.interleaveBuf = growFloat32(p.interleaveBuf, perChannel*2)
		for i, s := range block.Samples {
			p.interleaveBuf[2*i] = s
			p.interleaveBuf[2*i+1] = s
		}
		return p.interleaveBuf
	}
	return block.Samples
}

// PushFloat32 clamps block to [-1,1] and pushes it whole into r,
// upmixing mono to stereo first if needed. Returns false if the ring
// did not have room (the whole block was dropped and r's dropped
// counter was incremented by the ring). Clamping is done in place into
// a reusable scratch buffer; Ring.Push copies out of it before
// returning, so it is safe to reuse on the next call.
func (p *Producer) PushFloat32(r *ring.Ring[float32], block CaptureBlock) bool {
	samples := p.interleave(block)
	p.floatBuf = growFloat32(p.floatBuf, len(samples))
	for i, s := range samples {
		p.floatBuf[i] = clampFloat32(s)
	}
	return r.Push(p.floatBuf)
}

// PushInt16 clamps block to [-1,1], quantizes via TPDF dither, and
// pushes it whole into r. Used when the ring's element type is Int16
// (mode=encode sessions where the producer itself frames/quantizes).
// Quantizing is done in place into a reusable scratch buffer.
func (p *Producer) PushInt16(r *ring.Ring[int16], block CaptureBlock) bool {
	samples := p.interleave(block)
	p.int16Buf = growInt16(p.int16Buf, len(samples))
	for i, s := range samples {
		dither := (p.rng.Float64() - 0.5) + (p.rng.Float64() - 0.5)
		v := math.Round(float64(clampFloat32(s))*32767.0 + dither)
		if v > 32767 {
			v = 32767
		}
		if v < -32767 {
			v = -32767
		}
		p.int16Buf[i] = int16(v)
	}
	return r.Push(p.int16Buf)
}

// clampFloat32 clamps v to [-1.0, 1.0].
func clampFloat32(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// RunProducer repeatedly pulls blocks from src and pushes them into r
// until src is closed. Intended to run on its own goroutine standing
// in for the real-time capture thread.
func RunProducer(p *Producer, src CaptureSource, r *ring.Ring[float32]) {
	for {
		block, ok := src.NextBlock()
		if !ok {
			return
		}
		p.PushFloat32(r, block)
	}
}

// RunProducerInt16 is RunProducer's mode=encode counterpart: it
// quantizes each block via PushInt16 instead of pushing Float32.
func RunProducerInt16(p *Producer, src CaptureSource, r *ring.Ring[int16]) {
	for {
		block, ok := src.NextBlock()
		if !ok {
			return
		}
		p.PushInt16(r, block)
	}
}
