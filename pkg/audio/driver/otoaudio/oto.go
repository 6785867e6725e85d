// ABOUTME: Oto-based output driver
// ABOUTME: Pushes each mixing buffer through a pipe into one persistent oto player
package otoaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/ebitengine/oto/v3"
	"github.com/google/uuid"
)

const DriverName = "oto"

var (
	ErrUnsupportedFormat = errors.New("oto supports U8, S16LSB and F32LSB")
	ErrFormatChange      = errors.New("oto context already running with another format")
)

// oto allows a single context per process, so every device shares it.
var shared struct {
	mu   sync.Mutex
	ctx  *oto.Context
	opts oto.NewContextOptions
}

// Driver plays through the system audio device using oto
type Driver struct {
	volume atomic.Int32
	muted  atomic.Bool
}

func New() *Driver {
	d := &Driver{}
	d.volume.Store(100)
	return d
}

func (d *Driver) Name() string        { return DriverName }
func (d *Driver) Description() string { return "oto system audio output" }

func (d *Driver) Available(getenv func(string) string) bool {
	return driver.Requested(getenv, DriverName)
}

func (d *Driver) CreateDevice() (driver.Device, error) {
	return &Device{
		drv:    d,
		logger: slog.Default().With("oto device uuid", uuid.New()),
	}, nil
}

// SetVolume sets the volume (0-100)
func (d *Driver) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	d.volume.Store(int32(volume))
	slog.Debug("volume set", "volume", volume)
}

// SetMuted sets mute state
func (d *Driver) SetMuted(muted bool) {
	d.muted.Store(muted)
	slog.Debug("mute set", "muted", muted)
}

// Volume returns current volume
func (d *Driver) Volume() int {
	return int(d.volume.Load())
}

// IsMuted returns mute state
func (d *Driver) IsMuted() bool {
	return d.muted.Load()
}

func contextOptions(spec *audio.Spec) (oto.NewContextOptions, error) {
	op := oto.NewContextOptions{
		SampleRate:   spec.Freq,
		ChannelCount: spec.Channels,
		BufferSize:   spec.BufferDuration(),
	}
	switch spec.Format {
	case audio.U8:
		op.Format = oto.FormatUnsignedInt8
	case audio.S16LSB:
		op.Format = oto.FormatSignedInt16LE
	case audio.F32LSB:
		op.Format = oto.FormatFloat32LE
	default:
		return op, fmt.Errorf("%w: %s", ErrUnsupportedFormat, spec.Format)
	}
	return op, nil
}

// sharedContext creates the process-wide context or reuses it when the
// format matches.
func sharedContext(ctx context.Context, op oto.NewContextOptions, logger *slog.Logger) (*oto.Context, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.ctx != nil {
		if shared.opts.SampleRate != op.SampleRate || shared.opts.ChannelCount != op.ChannelCount ||
			shared.opts.Format != op.Format {
			return nil, fmt.Errorf("%w: %dHz %dch", ErrFormatChange, shared.opts.SampleRate, shared.opts.ChannelCount)
		}
		logger.Debug("reusing oto context")
		if err := shared.ctx.Resume(); err != nil {
			return nil, fmt.Errorf("resume oto context: %w", err)
		}
		return shared.ctx, nil
	}

	otoCtx, readyChan, err := oto.NewContext(&op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	select {
	case <-readyChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	shared.ctx = otoCtx
	shared.opts = op
	return otoCtx, nil
}

// Device is one oto output stream
type Device struct {
	drv    *Driver
	logger *slog.Logger

	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	format audio.SampleFormat
	mixbuf []byte
	outbuf []byte
}

func (dev *Device) Open(ctx context.Context, spec *audio.Spec) error {
	op, err := contextOptions(spec)
	if err != nil {
		return err
	}

	otoCtx, err := sharedContext(ctx, op, dev.logger)
	if err != nil {
		dev.logger.Error("failed to open oto", "err", err)
		return err
	}
	dev.otoCtx = otoCtx

	// Pipe for continuous streaming into one persistent player
	dev.pipeReader, dev.pipeWriter = io.Pipe()
	dev.player = otoCtx.NewPlayer(dev.pipeReader)
	dev.player.Play()

	dev.format = spec.Format
	dev.mixbuf = make([]byte, spec.Size)
	dev.outbuf = make([]byte, spec.Size)
	for i := range dev.mixbuf {
		dev.mixbuf[i] = spec.Silence
	}

	dev.logger.Info("oto audio opened", "spec", spec.String())
	return nil
}

// Wait is a no-op: Play blocks on the pipe until the player drains it.
func (dev *Device) Wait(ctx context.Context) error {
	return nil
}

func (dev *Device) Play(ctx context.Context) error {
	if dev.mixbuf == nil {
		return driver.ErrNotOpen
	}

	copy(dev.outbuf, dev.mixbuf)
	applyVolume(dev.outbuf, dev.format, dev.drv.Volume(), dev.drv.IsMuted())

	if _, err := dev.pipeWriter.Write(dev.outbuf); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	if err := dev.otoCtx.Err(); err != nil {
		return fmt.Errorf("oto: %w", err)
	}
	return nil
}

func (dev *Device) MixBuffer() []byte {
	return dev.mixbuf
}

func (dev *Device) Close() {
	if dev.pipeWriter != nil {
		dev.pipeWriter.Close()
		dev.pipeWriter = nil
	}
	if dev.player != nil {
		if err := dev.player.Close(); err != nil {
			dev.logger.Warn("failed to close player", "err", err)
		}
		dev.player = nil
	}
	if dev.pipeReader != nil {
		dev.pipeReader.Close()
		dev.pipeReader = nil
	}
	dev.mixbuf = nil
}

// Delete suspends the shared context until the next Open
func (dev *Device) Delete() {
	if dev.otoCtx == nil {
		return
	}
	if err := dev.otoCtx.Suspend(); err != nil {
		dev.logger.Warn("failed to suspend oto context", "err", err)
	}
	dev.otoCtx = nil
	dev.logger.Debug("oto audio device deleted")
}

// applyVolume scales buf in place. U8 is passed through untouched.
func applyVolume(buf []byte, format audio.SampleFormat, volume int, muted bool) {
	switch format {
	case audio.S16LSB:
		samples := make([]int16, len(buf)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
		}
		audio.ApplyVolume(samples, volume, muted)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
		}
	case audio.F32LSB:
		multiplier := float32(audio.VolumeMultiplier(volume, muted))
		for i := 0; i+4 <= len(buf); i += 4 {
			f := math.Float32frombits(binary.LittleEndian.Uint32(buf[i:]))
			binary.LittleEndian.PutUint32(buf[i:], math.Float32bits(f*multiplier))
		}
	}
}
