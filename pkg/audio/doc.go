// ABOUTME: Audio fundamentals package providing core types
// ABOUTME: Defines SampleFormat and Spec shared by drivers and sources
// Package audio provides the types shared by every output driver.
//
//   - SampleFormat: layout of one sample in a mixing buffer (S16LSB, U8, ...)
//   - Spec: the stream a driver is asked to open (rate, format, channels,
//     buffer size in frames and bytes, silence value)
//
// Example:
//
//	spec := audio.Spec{
//	    Freq:     48000,
//	    Format:   audio.S16LSB,
//	    Channels: 2,
//	    Samples:  1024,
//	}
//	spec.Calculate() // spec.Size == 4096, spec.Silence == 0
package audio
