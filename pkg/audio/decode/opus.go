// ABOUTME: Opus packet decoder
// ABOUTME: Decodes Opus packets to int16 samples
package decode

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// Largest Opus frame: 120ms at 48kHz
const maxOpusFrame = 5760

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder:  dec,
		channels: channels,
		pcm:      make([]int16, maxOpusFrame*channels),
	}, nil
}

// Decode converts an Opus packet to int16 samples
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	out := make([]int16, n*d.channels)
	copy(out, d.pcm)
	return out, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
