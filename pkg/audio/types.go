// ABOUTME: Audio type definitions
// ABOUTME: Defines sample formats and the stream spec negotiated with drivers
package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SampleFormat describes how one sample is laid out in a mixing buffer.
//
// The low byte holds the bit size, the high bits carry signedness and
// endianness flags.
type SampleFormat uint16

const (
	formatSigned    = 1 << 15
	formatBigEndian = 1 << 12
	formatFloat     = 1 << 8
	formatBitMask   = 0xFF
)

const (
	U8     SampleFormat = 0x0008
	S8     SampleFormat = 0x8008
	U16LSB SampleFormat = 0x0010
	S16LSB SampleFormat = 0x8010
	U16MSB SampleFormat = 0x1010
	S16MSB SampleFormat = 0x9010
	S32LSB SampleFormat = 0x8020
	F32LSB SampleFormat = 0x8120
)

var formatNames = map[SampleFormat]string{
	U8:     "U8",
	S8:     "S8",
	U16LSB: "U16LSB",
	S16LSB: "S16LSB",
	U16MSB: "U16MSB",
	S16MSB: "S16MSB",
	S32LSB: "S32LSB",
	F32LSB: "F32LSB",
}

// BitSize returns the number of bits per sample
func (f SampleFormat) BitSize() int {
	return int(f & formatBitMask)
}

// BytesPerSample returns the number of bytes per sample
func (f SampleFormat) BytesPerSample() int {
	return f.BitSize() / 8
}

// IsSigned reports whether samples are signed
func (f SampleFormat) IsSigned() bool {
	return f&formatSigned != 0
}

// IsBigEndian reports whether multi-byte samples are stored big-endian
func (f SampleFormat) IsBigEndian() bool {
	return f&formatBigEndian != 0
}

// IsFloat reports whether samples are IEEE floats
func (f SampleFormat) IsFloat() bool {
	return f&formatFloat != 0
}

// IsValid reports whether f is one of the known formats
func (f SampleFormat) IsValid() bool {
	_, ok := formatNames[f]
	return ok
}

func (f SampleFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("SampleFormat(0x%04x)", uint16(f))
}

// ParseSampleFormat parses a format name such as "S16LSB" (case-insensitive).
func ParseSampleFormat(s string) (SampleFormat, error) {
	for f, name := range formatNames {
		if strings.EqualFold(name, s) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown sample format: %q", s)
}

var (
	ErrInvalidFrequency = errors.New("frequency must be positive")
	ErrInvalidChannels  = errors.New("channels must be 1 or 2")
	ErrInvalidSamples   = errors.New("samples must be positive")
	ErrInvalidFormat    = errors.New("unknown sample format")
)

// Spec describes an output stream as requested by the audio layer.
type Spec struct {
	Freq     int          // Sample frames per second
	Format   SampleFormat // Sample layout in the mixing buffer
	Channels int          // 1 = mono, 2 = stereo
	Silence  byte         // Byte value of silence for Format
	Samples  int          // Buffer size in sample frames
	Size     int          // Buffer size in bytes
}

// Validate checks that the spec can be calculated and opened.
func (s *Spec) Validate() error {
	switch {
	case s.Freq <= 0:
		return ErrInvalidFrequency
	case s.Channels != 1 && s.Channels != 2:
		return ErrInvalidChannels
	case s.Samples <= 0:
		return ErrInvalidSamples
	case !s.Format.IsValid():
		return ErrInvalidFormat
	}
	return nil
}

// Calculate fills in the derived Silence and Size fields.
func (s *Spec) Calculate() {
	if s.Format == U8 {
		s.Silence = 0x80
	} else {
		s.Silence = 0x00
	}
	s.Size = s.Format.BytesPerSample() * s.Channels * s.Samples
}

// FrameSize returns the number of bytes in one sample frame
func (s Spec) FrameSize() int {
	return s.Format.BytesPerSample() * s.Channels
}

// BufferDuration returns how long one full mixing buffer plays for
func (s Spec) BufferDuration() time.Duration {
	if s.Freq <= 0 {
		return 0
	}
	return time.Duration(s.Samples) * time.Second / time.Duration(s.Freq)
}

func (s Spec) String() string {
	return fmt.Sprintf("%dHz %s %dch %d frames (%d bytes)",
		s.Freq, s.Format, s.Channels, s.Samples, s.Size)
}
