// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Streams interleaved int16 chunks, carrying the last frame across calls
package resample

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position is measured in input frames from the start of the current
	// chunk, where frame 0 is lastFrame when havePrev is set.
	position  float64
	lastFrame []int16
	havePrev  bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int16, channels),
	}
}

func (r *Resampler) sample(input []int16, frame, ch int) int16 {
	if r.havePrev {
		if frame == 0 {
			return r.lastFrame[ch]
		}
		frame--
	}
	return input[frame*r.channels+ch]
}

// Resample appends input converted to the output rate to dst.
// input and the returned samples are interleaved.
func (r *Resampler) Resample(dst, input []int16) []int16 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return dst
	}

	frames := inputFrames
	if r.havePrev {
		frames++
	}

	for {
		inputIdx := int(r.position)

		// Need the frame after inputIdx to interpolate
		if inputIdx >= frames-1 {
			break
		}

		frac := r.position - float64(inputIdx)

		for ch := 0; ch < r.channels; ch++ {
			sample1 := float64(r.sample(input, inputIdx, ch))
			sample2 := float64(r.sample(input, inputIdx+1, ch))
			dst = append(dst, int16(sample1*(1.0-frac)+sample2*frac))
		}

		r.position += r.ratio
	}

	// The last input frame becomes frame 0 of the next chunk
	r.position -= float64(frames - 1)
	copy(r.lastFrame, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.havePrev = true

	return dst
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.havePrev = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}
