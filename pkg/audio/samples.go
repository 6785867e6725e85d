// ABOUTME: Sample conversion and volume helpers
// ABOUTME: Converts between int16 source samples and the other sample layouts
package audio

import "math"

// SampleToUint8 converts an int16 sample to unsigned 8-bit
func SampleToUint8(sample int16) uint8 {
	return uint8(sample>>8) ^ 0x80
}

// SampleToInt8 converts an int16 sample to signed 8-bit
func SampleToInt8(sample int16) int8 {
	return int8(sample >> 8)
}

// SampleToUint16 converts an int16 sample to unsigned 16-bit
func SampleToUint16(sample int16) uint16 {
	return uint16(sample) ^ 0x8000
}

// SampleToInt32 converts an int16 sample to a left-justified 32-bit sample
func SampleToInt32(sample int16) int32 {
	return int32(sample) << 16
}

// SampleToFloat32 converts an int16 sample to the -1.0..1.0 range
func SampleToFloat32(sample int16) float32 {
	return float32(sample) / 32768.0
}

// SampleFromFloat32 converts a float sample to int16 with clipping
func SampleFromFloat32(sample float32) int16 {
	scaled := math.Round(float64(sample) * 32768.0)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}

// SampleFromInt32 converts a left-justified 32-bit sample to int16
func SampleFromInt32(sample int32) int16 {
	return int16(sample >> 16)
}

// VolumeMultiplier returns the gain for a 0-100 volume
func VolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	return float64(volume) / 100.0
}

// ApplyVolume scales samples in place with clipping protection
func ApplyVolume(samples []int16, volume int, muted bool) {
	multiplier := VolumeMultiplier(volume, muted)
	if multiplier == 1.0 {
		return
	}

	for i, sample := range samples {
		scaled := int64(float64(sample) * multiplier)

		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}

		samples[i] = int16(scaled)
	}
}
