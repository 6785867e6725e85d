// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts audio between different sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates.
// Handles both upsampling and downsampling, and keeps state across chunks
// so a stream can be fed in pieces.
//
// Example:
//
//	r := resample.New(44100, 48000, 2)
//	out = r.Resample(out[:0], input)
//
//	src = resample.NewSource(src, 48000)
package resample
