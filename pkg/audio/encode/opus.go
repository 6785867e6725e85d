// ABOUTME: Opus audio encoder
// ABOUTME: Encodes int16 frames to Opus packets
package encode

import (
	"errors"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Max Opus packet size
const maxOpusPacket = 4000

var ErrOpusFrameSize = errors.New("invalid opus frame size")

// ValidOpusFrame reports whether frames is a legal Opus frame size at
// sampleRate (2.5, 5, 10, 20, 40 or 60ms).
func ValidOpusFrame(sampleRate, frames int) bool {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return false
	}
	// Frame durations in units of 2.5ms
	for _, quarters := range []int{1, 2, 4, 8, 16, 24} {
		if frames == sampleRate*quarters/400 {
			return true
		}
	}
	return false
}

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	data       []byte
}

// NewOpus creates a new Opus encoder
func NewOpus(sampleRate, channels int) (*OpusEncoder, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: sampleRate,
		channels:   channels,
		data:       make([]byte, maxOpusPacket),
	}, nil
}

// Encode converts one frame of interleaved samples to an Opus packet
func (e *OpusEncoder) Encode(samples []int16) ([]byte, error) {
	frames := len(samples) / e.channels
	if !ValidOpusFrame(e.sampleRate, frames) {
		return nil, fmt.Errorf("%w: %d frames at %dHz", ErrOpusFrameSize, frames, e.sampleRate)
	}

	n, err := e.encoder.Encode(samples, e.data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.data[:n])
	return out, nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
