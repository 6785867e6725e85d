//go:build cgo && !noaudio

// ABOUTME: Malgo-based output driver
// ABOUTME: Feeds a miniaudio callback device from a ring buffer filled by Play
package malgoaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
)

// Buffers held between Play and the device callback
const ringBuffers = 3

// Driver plays through miniaudio
type Driver struct{}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string        { return DriverName }
func (d *Driver) Description() string { return "miniaudio playback device (malgo)" }

func (d *Driver) Available(getenv func(string) string) bool {
	return driver.Requested(getenv, DriverName)
}

func (d *Driver) CreateDevice() (driver.Device, error) {
	return &Device{
		logger: slog.Default().With("malgo device uuid", uuid.New()),
	}, nil
}

// Device is one miniaudio playback stream
type Device struct {
	logger *slog.Logger

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	ring   *RingBuffer
	mixbuf []byte
}

func malgoFormat(format audio.SampleFormat) (malgo.FormatType, error) {
	switch format {
	case audio.U8:
		return malgo.FormatU8, nil
	case audio.S16LSB:
		return malgo.FormatS16, nil
	case audio.S32LSB:
		return malgo.FormatS32, nil
	case audio.F32LSB:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (dev *Device) Open(ctx context.Context, spec *audio.Spec) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	format, err := malgoFormat(spec.Format)
	if err != nil {
		return err
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	dev.malgoCtx = malgoCtx

	dev.ring = NewRingBuffer(spec.Size*ringBuffers, spec.Silence)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = format
	deviceConfig.Playback.Channels = uint32(spec.Channels)
	deviceConfig.SampleRate = uint32(spec.Freq)
	deviceConfig.PeriodSizeInFrames = uint32(spec.Samples)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		dev.ring.Read(pOutputSample)
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		dev.freeContext()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		dev.freeContext()
		return fmt.Errorf("failed to start device: %w", err)
	}
	dev.device = device

	dev.mixbuf = make([]byte, spec.Size)
	for i := range dev.mixbuf {
		dev.mixbuf[i] = spec.Silence
	}

	dev.logger.Info("malgo audio opened", "spec", spec.String())
	return nil
}

// Wait blocks until the ring has room for a full mixing buffer
func (dev *Device) Wait(ctx context.Context) error {
	if dev.ring == nil {
		return driver.ErrNotOpen
	}
	return dev.ring.WaitFree(ctx, len(dev.mixbuf))
}

func (dev *Device) Play(ctx context.Context) error {
	if dev.mixbuf == nil {
		return driver.ErrNotOpen
	}
	if n := dev.ring.Write(dev.mixbuf); n < len(dev.mixbuf) {
		dev.logger.Warn("ring buffer overrun, dropped audio", "dropped", len(dev.mixbuf)-n)
	}
	return nil
}

func (dev *Device) MixBuffer() []byte {
	return dev.mixbuf
}

// Close stops the playback device
func (dev *Device) Close() {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.device != nil {
		if err := dev.device.Stop(); err != nil {
			dev.logger.Warn("device stop error", "err", err)
		}
		dev.device.Uninit()
		dev.device = nil
	}
	dev.mixbuf = nil
}

// Delete releases the malgo context
func (dev *Device) Delete() {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.freeContext()
}

// freeContext must hold dev.mu
func (dev *Device) freeContext() {
	if dev.malgoCtx == nil {
		return
	}
	if err := dev.malgoCtx.Uninit(); err != nil {
		dev.logger.Warn("malgo context uninit error", "err", err)
	}
	dev.malgoCtx.Free()
	dev.malgoCtx = nil
}
