// ABOUTME: Resampling wrapper around a decode.Source
// ABOUTME: Presents any source at a fixed target sample rate
package resample

import (
	"errors"
	"io"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/decode"
)

// Source wraps a decode.Source and resamples it to a target rate
type Source struct {
	source     decode.Source
	resampler  *Resampler
	targetRate int

	input   []int16
	pending []int16
	eof     bool
}

// NewSource returns src unchanged when it already runs at targetRate
func NewSource(src decode.Source, targetRate int) decode.Source {
	if src.SampleRate() == targetRate {
		return src
	}

	channels := src.Channels()

	// 100ms input chunks
	inputSamples := (src.SampleRate() * channels * 100) / 1000
	inputSamples -= inputSamples % channels
	if inputSamples < channels {
		inputSamples = channels
	}

	return &Source{
		source:     src,
		resampler:  New(src.SampleRate(), targetRate, channels),
		targetRate: targetRate,
		input:      make([]int16, inputSamples),
	}
}

func (r *Source) Read(samples []int16) (int, error) {
	for len(r.pending) < len(samples) && !r.eof {
		n, err := r.source.Read(r.input)
		r.pending = r.resampler.Resample(r.pending, r.input[:n])

		if errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			return 0, err
		} else if n == 0 {
			break
		}
	}

	n := copy(samples, r.pending)
	r.pending = append(r.pending[:0], r.pending[n:]...)

	if n == 0 && r.eof {
		return 0, io.EOF
	}
	return n, nil
}

func (r *Source) SampleRate() int { return r.targetRate }
func (r *Source) Channels() int   { return r.source.Channels() }
func (r *Source) Close() error    { return r.source.Close() }
