// ABOUTME: Audio encoder package
// ABOUTME: Writes samples into mixing buffers and encodes bridge packets
// Package encode converts int16 samples into output representations.
//
// Writer fills a mixing buffer in any audio.SampleFormat. The Encoder
// implementations (PCM16 and Opus) produce packets for the host bridge.
//
// Example:
//
//	w, err := encode.NewWriter(audio.S16LSB)
//	n := w.Write(mixbuf, samples)
package encode
