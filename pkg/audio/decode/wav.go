// ABOUTME: WAV file source
// ABOUTME: Decodes PCM WAV files of any common bit depth with go-audio/wav
package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrNotWavFile = errors.New("not a valid WAV file")

// WAVSource reads PCM samples from a WAV stream
type WAVSource struct {
	closer   io.Closer
	dec      *wav.Decoder
	bitDepth int
	intBuf   *goaudio.IntBuffer
}

// OpenWAV opens a WAV file
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	src, err := NewWAV(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.closer = f

	slog.Info("loaded wav", "path", path, "rate", src.SampleRate(),
		"channels", src.Channels(), "bits", src.bitDepth)
	return src, nil
}

// NewWAV decodes WAV from rs
func NewWAV(rs io.ReadSeeker) (*WAVSource, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotWavFile
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to find PCM data: %w", err)
	}

	return &WAVSource{
		dec:      dec,
		bitDepth: int(dec.BitDepth),
	}, nil
}

// scale converts a decoded sample to int16. 8-bit WAV data is unsigned.
func (s *WAVSource) scale(v int) int16 {
	switch s.bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}

func (s *WAVSource) Read(samples []int16) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < len(samples) {
		s.intBuf = &goaudio.IntBuffer{Data: make([]int, len(samples))}
	} else {
		s.intBuf.Data = s.intBuf.Data[:len(samples)]
	}

	n, err := s.dec.PCMBuffer(s.intBuf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("wav decode error: %w", err)
		}
		return 0, io.EOF
	}

	for i := 0; i < n; i++ {
		samples[i] = s.scale(s.intBuf.Data[i])
	}
	return n, nil
}

func (s *WAVSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *WAVSource) Channels() int   { return int(s.dec.NumChans) }

func (s *WAVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
