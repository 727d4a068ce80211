package codec

import "encoding/binary"

// stubVorbisEngine produces deterministic, self-contained stand-ins
// for the three Vorbis setup headers and for audio packets, in place
// of the psychoacoustic Vorbis encode the original system delegates
// to an external codec for (see DESIGN.md).
type stubVorbisEngine struct {
	cfg        Config
	perChannel int
	blob       []byte
}

func newStubVorbisEngine(cfg Config) *stubVorbisEngine {
	e := &stubVorbisEngine{cfg: cfg, perChannel: cfg.PerChannelFrame()}
	e.blob = buildDescriptorBlob(cfg)
	return e
}

// buildDescriptorBlob packs three placeholder Vorbis setup packets
// (identification, comment, setup) into the wire format the framer
// expects: u16(numHeaders-1), the first two packet lengths as u16,
// then the concatenated payloads.
func buildDescriptorBlob(cfg Config) []byte {
	ident := []byte{1, 'v', 'o', 'r', 'b', 'i', 's'}
	ident = binary.LittleEndian.AppendUint32(ident, uint32(cfg.SampleRate))
	ident = append(ident, byte(cfg.Channels))

	comment := []byte{3, 'v', 'o', 'r', 'b', 'i', 's', 0, 0, 0, 0}
	setup := []byte{5, 'v', 'o', 'r', 'b', 'i', 's', 0, 0, 0, 0}

	blob := make([]byte, 0, 2+4+len(ident)+len(comment)+len(setup))
	blob = binary.LittleEndian.AppendUint16(blob, 2) // numHeaders-1 = 2
	blob = binary.LittleEndian.AppendUint16(blob, uint16(len(ident)))
	blob = binary.LittleEndian.AppendUint16(blob, uint16(len(comment)))
	blob = append(blob, ident...)
	blob = append(blob, comment...)
	blob = append(blob, setup...)
	return blob
}

func (e *stubVorbisEngine) DescriptorBlob() []byte { return e.blob }

func (e *stubVorbisEngine) EncodeFrame(samples []float32) ([]byte, int64, error) {
	packet := make([]byte, 32)
	for i := range packet {
		var acc float32
		if len(samples) > 0 {
			acc = samples[i%len(samples)]
		}
		packet[i] = byte(int32(acc*127) + int32(i))
	}
	return packet, int64(e.perChannel), nil
}
