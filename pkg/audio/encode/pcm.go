// ABOUTME: PCM packet encoder
// ABOUTME: Encodes int16 samples to 16-bit little-endian bytes
package encode

import "encoding/binary"

// PCMEncoder encodes S16LE packets
type PCMEncoder struct{}

// NewPCM creates a new PCM encoder
func NewPCM() *PCMEncoder {
	return &PCMEncoder{}
}

// Encode converts int16 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int16) ([]byte, error) {
	output := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(sample))
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
