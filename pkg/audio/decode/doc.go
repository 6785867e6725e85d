// ABOUTME: Audio decoder package for file sources and packet codecs
// ABOUTME: Provides Source and Decoder interfaces and their implementations
// Package decode turns audio files and encoded packets into interleaved
// int16 samples.
//
// Sources: MP3, FLAC, WAV, raw PCM16 and a sine test tone. Open picks one
// by file extension. Packet decoders: PCM16 and Opus.
//
// Example:
//
//	src, err := decode.Open("song.flac")
//	n, err := src.Read(samples)
package decode
