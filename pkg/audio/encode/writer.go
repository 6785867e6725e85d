// ABOUTME: Mixing buffer writer
// ABOUTME: Writes int16 samples into a byte buffer in any supported sample format
package encode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
)

// Writer converts int16 samples into a mixing buffer's sample format
type Writer struct {
	format audio.SampleFormat
	size   int
	order  binary.ByteOrder
}

// NewWriter creates a writer for format
func NewWriter(format audio.SampleFormat) (*Writer, error) {
	if !format.IsValid() {
		return nil, fmt.Errorf("%w: %s", audio.ErrInvalidFormat, format)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if format.IsBigEndian() {
		order = binary.BigEndian
	}

	return &Writer{
		format: format,
		size:   format.BytesPerSample(),
		order:  order,
	}, nil
}

// Format returns the output sample format
func (w *Writer) Format() audio.SampleFormat {
	return w.format
}

// Samples returns how many samples fit in n bytes
func (w *Writer) Samples(n int) int {
	return n / w.size
}

// Write encodes as many samples as fit into dst and returns the number of
// bytes written.
func (w *Writer) Write(dst []byte, samples []int16) int {
	n := min(len(samples), len(dst)/w.size)

	for i := 0; i < n; i++ {
		out := dst[i*w.size:]
		s := samples[i]

		switch w.format {
		case audio.U8:
			out[0] = audio.SampleToUint8(s)
		case audio.S8:
			out[0] = byte(audio.SampleToInt8(s))
		case audio.U16LSB, audio.U16MSB:
			w.order.PutUint16(out, audio.SampleToUint16(s))
		case audio.S16LSB, audio.S16MSB:
			w.order.PutUint16(out, uint16(s))
		case audio.S32LSB:
			w.order.PutUint32(out, uint32(audio.SampleToInt32(s)))
		case audio.F32LSB:
			w.order.PutUint32(out, math.Float32bits(audio.SampleToFloat32(s)))
		}
	}

	return n * w.size
}
