// ABOUTME: Source and packet decoder interfaces
// ABOUTME: Opens audio files by extension into interleaved int16 sources
package decode

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFile = errors.New("unsupported audio file")

// Source produces interleaved int16 PCM samples
type Source interface {
	// SampleRate returns the sample rate of the audio
	SampleRate() int

	// Channels returns the number of channels
	Channels() int

	// Read fills samples and returns how many were written. It returns
	// io.EOF once the audio is exhausted.
	Read(samples []int16) (int, error)

	// Close releases source resources
	Close() error
}

// Decoder decodes one encoded packet to int16 samples
type Decoder interface {
	// Decode converts encoded audio data to PCM samples
	Decode(data []byte) ([]int16, error)

	// Close releases decoder resources
	Close() error
}

// Open creates a source for a file path, picking the decoder by extension.
// An empty path yields a test tone.
func Open(path string) (Source, error) {
	if path == "" {
		return NewTone(DefaultToneFrequency, DefaultToneRate, 2), nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".mp3":
		return OpenMP3(path)
	case ".flac":
		return OpenFLAC(path)
	case ".wav":
		return OpenWAV(path)
	case ".pcm", ".raw":
		return OpenPCM(path, DefaultToneRate, 2)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac, .wav, .pcm)", ErrUnsupportedFile, ext)
	}
}

// ReadAll drains a source
func ReadAll(src Source) ([]int16, error) {
	var out []int16
	buf := make([]int16, 4096)
	for {
		n, err := src.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
	}
}
