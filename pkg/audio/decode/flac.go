// ABOUTME: FLAC file source
// ABOUTME: Decodes FLAC frames with mewkiz/flac and scales them to int16
package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mewkiz/flac"
)

// FLACSource reads from a FLAC stream
type FLACSource struct {
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int

	// Samples decoded from the current frame but not yet returned
	pending []int16
}

// OpenFLAC opens a FLAC file
func OpenFLAC(path string) (*FLACSource, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	src := newFLACSource(stream)
	slog.Info("loaded flac", "path", path, "rate", src.sampleRate,
		"channels", src.channels, "bits", src.bitDepth)
	return src, nil
}

// NewFLAC decodes FLAC from r
func NewFLAC(r io.Reader) (*FLACSource, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	return newFLACSource(stream), nil
}

func newFLACSource(stream *flac.Stream) *FLACSource {
	info := stream.Info
	return &FLACSource{
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
	}
}

// scale converts a sample of the stream's bit depth to 16 bits
func (s *FLACSource) scale(sample int32) int16 {
	shift := s.bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	return int16(sample << -shift)
}

func (s *FLACSource) Read(samples []int16) (int, error) {
	read := 0

	for read < len(samples) {
		if len(s.pending) == 0 {
			frame, err := s.stream.ParseNext()
			if errors.Is(err, io.EOF) {
				if read == 0 {
					return 0, io.EOF
				}
				return read, nil
			}
			if err != nil {
				return read, fmt.Errorf("flac decode error: %w", err)
			}

			// Interleave the subframes
			for i := 0; i < int(frame.BlockSize); i++ {
				for ch := 0; ch < s.channels; ch++ {
					s.pending = append(s.pending, s.scale(frame.Subframes[ch].Samples[i]))
				}
			}
		}

		n := copy(samples[read:], s.pending)
		s.pending = s.pending[n:]
		read += n
	}

	return read, nil
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }

func (s *FLACSource) Close() error {
	return s.stream.Close()
}
