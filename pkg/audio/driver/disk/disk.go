// ABOUTME: Disk output driver writing the stream to a WAV file
// ABOUTME: Uses go-audio/wav; paced at real time unless told otherwise
package disk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	DriverName = "disk"

	// DefaultPath is used when Options.Path is empty
	DefaultPath = "pepperaudio.wav"

	wavFormatPCM = 1
)

var ErrUnsupportedFormat = errors.New("disk driver supports U8, S16LSB and S32LSB")

// Options configure the output file
type Options struct {
	Path string

	// Delay is how long Wait blocks per buffer. Zero means one buffer
	// duration, negative means write as fast as possible.
	Delay time.Duration
}

// Driver writes every played buffer to a WAV file.
// It is only available when requested by name.
type Driver struct {
	opts Options
}

func New(opts Options) *Driver {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	return &Driver{opts: opts}
}

func (d *Driver) Name() string        { return DriverName }
func (d *Driver) Description() string { return "direct-to-disk audio writer (WAV)" }

func (d *Driver) Available(getenv func(string) string) bool {
	return driver.Explicit(getenv, DriverName)
}

func (d *Driver) CreateDevice() (driver.Device, error) {
	return &Device{
		path:   d.opts.Path,
		delay:  d.opts.Delay,
		logger: slog.Default().With("disk device uuid", uuid.New(), "path", d.opts.Path),
	}, nil
}

type Device struct {
	path   string
	delay  time.Duration
	logger *slog.Logger

	file    *os.File
	encoder *wav.Encoder
	format  audio.SampleFormat
	pcm     *goaudio.IntBuffer
	mixbuf  []byte
}

func bitDepth(format audio.SampleFormat) (int, error) {
	switch format {
	case audio.U8, audio.S16LSB, audio.S32LSB:
		return format.BitSize(), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (dev *Device) Open(ctx context.Context, spec *audio.Spec) error {
	depth, err := bitDepth(spec.Format)
	if err != nil {
		return err
	}

	f, err := os.Create(dev.path)
	if err != nil {
		dev.logger.Error("failed to create output file", "err", err)
		return fmt.Errorf("create %s: %w", dev.path, err)
	}

	dev.file = f
	dev.format = spec.Format
	dev.encoder = wav.NewEncoder(f, spec.Freq, depth, spec.Channels, wavFormatPCM)
	dev.pcm = &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: spec.Channels, SampleRate: spec.Freq},
		Data:           make([]int, spec.Samples*spec.Channels),
		SourceBitDepth: depth,
	}
	dev.mixbuf = make([]byte, spec.Size)
	for i := range dev.mixbuf {
		dev.mixbuf[i] = spec.Silence
	}
	if dev.delay == 0 {
		dev.delay = spec.BufferDuration()
	}

	dev.logger.Info("disk audio opened", "spec", spec.String())
	return nil
}

func (dev *Device) Wait(ctx context.Context) error {
	if dev.delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(dev.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (dev *Device) Play(ctx context.Context) error {
	if dev.mixbuf == nil {
		return driver.ErrNotOpen
	}

	data := dev.pcm.Data
	switch dev.format {
	case audio.U8:
		for i, b := range dev.mixbuf {
			data[i] = int(b)
		}
	case audio.S16LSB:
		for i := range data {
			data[i] = int(int16(binary.LittleEndian.Uint16(dev.mixbuf[i*2:])))
		}
	case audio.S32LSB:
		for i := range data {
			data[i] = int(int32(binary.LittleEndian.Uint32(dev.mixbuf[i*4:])))
		}
	}

	if err := dev.encoder.Write(dev.pcm); err != nil {
		dev.logger.Error("failed to write buffer", "err", err)
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

func (dev *Device) MixBuffer() []byte {
	return dev.mixbuf
}

// Close finalizes the WAV header and closes the file
func (dev *Device) Close() {
	if dev.encoder != nil {
		if err := dev.encoder.Close(); err != nil {
			dev.logger.Warn("failed to finalize wav file", "err", err)
		}
		dev.encoder = nil
	}
	if dev.file != nil {
		if err := dev.file.Close(); err != nil {
			dev.logger.Warn("failed to close output file", "err", err)
		}
		dev.file = nil
		dev.logger.Info("disk audio closed")
	}
	dev.mixbuf = nil
}

func (dev *Device) Delete() {}
