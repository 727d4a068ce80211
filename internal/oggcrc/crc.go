// Package oggcrc implements the Ogg container's CRC-32 checksum: the
// non-reflected variant of the CRC-32 polynomial 0x04C11DB7, computed
// with a precomputed 256-entry table as the Ogg specification requires
// (init 0, no input/output reflection, no final XOR).
package oggcrc

const polynomial uint32 = 0x04C11DB7

var table [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ polynomial
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
}

// Checksum computes the Ogg CRC-32 over data, which must have its own
// CRC field zeroed (Ogg pages carry the checksum inline and must be
// hashed with that field set to zero).
func Checksum(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ table[byte(crc>>24)^b]
	}
	return crc
}
