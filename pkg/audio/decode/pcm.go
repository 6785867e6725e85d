// ABOUTME: Raw PCM source and packet decoder
// ABOUTME: Reads headerless 16-bit little-endian PCM
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// PCMSource reads headerless S16LE PCM from a stream
type PCMSource struct {
	r          io.Reader
	closer     io.Closer
	sampleRate int
	channels   int
	buf        []byte
}

// OpenPCM opens a raw PCM file with the given layout
func OpenPCM(path string, sampleRate, channels int) (*PCMSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PCM file: %w", err)
	}
	src := NewPCMSource(f, sampleRate, channels)
	src.closer = f
	return src, nil
}

// NewPCMSource reads S16LE PCM from r
func NewPCMSource(r io.Reader, sampleRate, channels int) *PCMSource {
	return &PCMSource{
		r:          r,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (s *PCMSource) Read(samples []int16) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.r, buf)
	numSamples := PCMToSamples(buf[:n], samples)

	switch err {
	case nil, io.ErrUnexpectedEOF:
		if numSamples == 0 {
			return 0, io.EOF
		}
		return numSamples, nil
	case io.EOF:
		return 0, io.EOF
	default:
		return numSamples, fmt.Errorf("pcm read error: %w", err)
	}
}

func (s *PCMSource) SampleRate() int { return s.sampleRate }
func (s *PCMSource) Channels() int   { return s.channels }

func (s *PCMSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// PCMToSamples converts S16LE bytes into samples and returns the count
func PCMToSamples(data []byte, samples []int16) int {
	n := min(len(data)/2, len(samples))
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return n
}

// PCMDecoder decodes S16LE packets
type PCMDecoder struct{}

// NewPCM creates a new PCM decoder
func NewPCM() *PCMDecoder {
	return &PCMDecoder{}
}

// Decode converts PCM bytes to int16 samples
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm packet has odd length %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	PCMToSamples(data, samples)
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
