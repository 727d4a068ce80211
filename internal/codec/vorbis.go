package codec

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/brew-lab/thaumic-cast/internal/oggcrc"
)

// vorbisEngine produces Vorbis audio packets and the codec-description
// header blob. The real psychoacoustic Vorbis encode is an external
// collaborator (see DESIGN.md: no Vorbis encoder exists anywhere in
// the retrieved example corpus, only decoders); the in-repo engine is
// deterministic so the Ogg page framer below is fully exercised.
type vorbisEngine interface {
	// DescriptorBlob returns the three Vorbis setup headers packed as
	// u16(numHeaders-1), then that many u16 lengths, then the
	// concatenated header payloads with the final length implied.
	DescriptorBlob() []byte

	// EncodeFrame returns one audio packet and the number of samples
	// (per channel) it represents.
	EncodeFrame(samples []float32) (packet []byte, sampleCount int64, err error)
}

type vorbisEncoder struct {
	cfg    Config
	engine vorbisEngine

	serial       uint32
	pageSeq      uint32
	granule      uint64
	headersSent  bool
	closed       bool
	tsMicros     int64
	framePeriod  int64
	perChanFrame int
}

func newVorbis(cfg Config, engine vorbisEngine) (*vorbisEncoder, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("codec: vorbis: invalid sample rate/channels")
	}
	return &vorbisEncoder{
		cfg:          cfg,
		engine:       engine,
		serial:       rand.Uint32(),
		framePeriod:  microsPerFrame(cfg.PerChannelFrame(), cfg.SampleRate),
		perChanFrame: cfg.PerChannelFrame(),
	}, nil
}

// parseDescriptor splits the packed codec-description blob into the
// three Vorbis setup header packets (identification, comment, setup).
func parseDescriptor(blob []byte) (ident, comment, setup []byte, err error) {
	if len(blob) < 2 {
		return nil, nil, nil, fmt.Errorf("codec: vorbis: descriptor blob too short")
	}
	numHeadersMinus1 := binary.LittleEndian.Uint16(blob[0:2])
	if numHeadersMinus1 != 2 {
		return nil, nil, nil, fmt.Errorf("codec: vorbis: expected 3 headers, descriptor claims %d", numHeadersMinus1+1)
	}
	off := 2
	lengths := make([]int, numHeadersMinus1)
	for i := range lengths {
		if off+2 > len(blob) {
			return nil, nil, nil, fmt.Errorf("codec: vorbis: truncated descriptor lengths")
		}
		lengths[i] = int(binary.LittleEndian.Uint16(blob[off : off+2]))
		off += 2
	}
	payload := blob[off:]
	if lengths[0]+lengths[1] > len(payload) {
		return nil, nil, nil, fmt.Errorf("codec: vorbis: descriptor lengths exceed payload")
	}
	ident = payload[:lengths[0]]
	comment = payload[lengths[0] : lengths[0]+lengths[1]]
	setup = payload[lengths[0]+lengths[1]:]
	return ident, comment, setup, nil
}

// buildPage lays out one Ogg page: capture pattern, version, flags,
// granule position, serial, sequence, a CRC placeholder, the segment
// table (lacing values), and the concatenated packet payloads. CRC is
// computed over the whole page with the CRC field zeroed and written
// back in place.
func buildPage(flags byte, granule uint64, serial, seq uint32, packets [][]byte) ([]byte, error) {
	var segments []byte
	var body []byte
	for _, p := range packets {
		n := len(p)
		for n >= 255 {
			segments = append(segments, 255)
			n -= 255
		}
		segments = append(segments, byte(n))
		body = append(body, p...)
	}
	if len(segments) > 255 {
		return nil, fmt.Errorf("codec: vorbis: page requires %d segments, exceeds 255 (packet too large to lace in one page)", len(segments))
	}

	page := make([]byte, 0, 27+len(segments)+len(body))
	page = append(page, 'O', 'g', 'g', 'S')
	page = append(page, 0) // version
	page = append(page, flags)
	granuleBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(granuleBuf, granule)
	page = append(page, granuleBuf...)
	serialBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(serialBuf, serial)
	page = append(page, serialBuf...)
	seqBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(seqBuf, seq)
	page = append(page, seqBuf...)
	page = append(page, 0, 0, 0, 0) // CRC placeholder
	page = append(page, byte(len(segments)))
	page = append(page, segments...)
	page = append(page, body...)

	crc := oggcrc.Checksum(page)
	binary.LittleEndian.PutUint32(page[22:26], crc)
	return page, nil
}

func (e *vorbisEncoder) Encode(samples []float32) ([]byte, error) {
	if e.closed {
		return nil, fmt.Errorf("codec: vorbis: encode after close")
	}
	var out []byte

	if !e.headersSent {
		ident, comment, setup, err := parseDescriptor(e.engine.DescriptorBlob())
		if err != nil {
			return nil, err
		}
		bos, err := buildPage(0x02, 0, e.serial, e.pageSeq, [][]byte{ident})
		if err != nil {
			return nil, err
		}
		e.pageSeq++
		out = append(out, bos...)

		setupPage, err := buildPage(0x00, 0, e.serial, e.pageSeq, [][]byte{comment, setup})
		if err != nil {
			return nil, err
		}
		e.pageSeq++
		out = append(out, setupPage...)

		e.headersSent = true
	}

	packet, sampleCount, err := e.engine.EncodeFrame(samples)
	if err != nil {
		return nil, fmt.Errorf("codec: vorbis: engine: %w", err)
	}
	e.granule += uint64(sampleCount)
	page, err := buildPage(0x00, e.granule, e.serial, e.pageSeq, [][]byte{packet})
	if err != nil {
		return nil, err
	}
	e.pageSeq++
	out = append(out, page...)

	e.tsMicros += e.framePeriod
	return out, nil
}

func (e *vorbisEncoder) Flush() ([]byte, error) {
	if e.closed || !e.headersSent {
		return nil, nil
	}
	page, err := buildPage(0x04, e.granule, e.serial, e.pageSeq, nil)
	if err != nil {
		return nil, err
	}
	e.pageSeq++
	return page, nil
}

func (e *vorbisEncoder) AdvanceTimestamp(frames int) {
	e.tsMicros += int64(frames) * e.framePeriod
}

func (e *vorbisEncoder) Close() error {
	e.closed = true
	return nil
}

func (e *vorbisEncoder) EncodeQueueSize() int { return 0 }

// Reconfigure starts a new Ogg logical stream: a new random serial,
// page sequence and granule position reset, and headersSent cleared so
// the next Encode re-emits the BOS/setup pages, per the onReconfigure
// hook in the data model.
func (e *vorbisEncoder) Reconfigure(latencyMode string) ([]byte, error) {
	leftover, err := e.Flush()
	if err != nil {
		return nil, err
	}
	e.cfg.LatencyMode = latencyMode
	e.engine = newStubVorbisEngine(e.cfg)
	e.serial = rand.Uint32()
	e.pageSeq = 0
	e.granule = 0
	e.headersSent = false
	return leftover, nil
}

// Timestamp exposes the encoder's presentation clock for tests/stats.
func (e *vorbisEncoder) Timestamp() int64 { return e.tsMicros }

// GranulePosition exposes the current Ogg granule for tests.
func (e *vorbisEncoder) GranulePosition() uint64 { return e.granule }

// PageSequence exposes the current Ogg page sequence for tests.
func (e *vorbisEncoder) PageSequence() uint32 { return e.pageSeq }
