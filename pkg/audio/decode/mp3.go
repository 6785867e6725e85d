// ABOUTME: MP3 file source
// ABOUTME: Decodes MP3 to interleaved stereo int16 with go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Source reads from an MP3 stream
type MP3Source struct {
	closer  io.Closer
	decoder *mp3.Decoder
	buf     []byte
}

// OpenMP3 opens an MP3 file
func OpenMP3(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	src, err := NewMP3(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closer = f

	slog.Info("loaded mp3", "path", path, "rate", src.SampleRate())
	return src, nil
}

// NewMP3 decodes MP3 from r
func NewMP3(r io.Reader) (*MP3Source, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &MP3Source{decoder: decoder}, nil
}

func (s *MP3Source) Read(samples []int16) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	// go-mp3 always outputs 16-bit stereo little-endian
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.decoder, buf)

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}

	switch err {
	case nil, io.ErrUnexpectedEOF:
		return numSamples, nil
	case io.EOF:
		return 0, io.EOF
	default:
		return numSamples, fmt.Errorf("mp3 decode error: %w", err)
	}
}

func (s *MP3Source) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3Source) Channels() int   { return 2 }

func (s *MP3Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
