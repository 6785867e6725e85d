// ABOUTME: Test tone generator source
// ABOUTME: Generates an endless sine wave at half volume
package decode

import (
	"math"
	"sync"
)

const (
	DefaultToneFrequency = 440.0 // A4 note
	DefaultToneRate      = 48000
)

// ToneSource generates a sine test tone on every channel
type ToneSource struct {
	frequency  float64
	sampleRate int
	channels   int

	mu          sync.Mutex
	sampleIndex uint64
}

// NewTone creates a new test tone generator
func NewTone(frequency float64, sampleRate, channels int) *ToneSource {
	return &ToneSource{
		frequency:  frequency,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	numFrames := len(samples) / s.channels

	for i := 0; i < numFrames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.sampleRate)
		sample := math.Sin(2 * math.Pi * s.frequency * t)

		pcmValue := int16(sample * 32767.0 * 0.5) // 50% volume

		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = pcmValue
		}
	}

	s.sampleIndex += uint64(numFrames)

	return numFrames * s.channels, nil
}

func (s *ToneSource) SampleRate() int { return s.sampleRate }
func (s *ToneSource) Channels() int   { return s.channels }
func (s *ToneSource) Close() error    { return nil }
