// ABOUTME: Dummy output driver that discards audio
// ABOUTME: Paces itself at the stream's real-time rate; for testing and headless runs
package dummy

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/google/uuid"
)

const DriverName = "dummy"

// Options tune the dummy driver
type Options struct {
	// Delay is how long Wait blocks per buffer. Zero means one buffer
	// duration, negative means no delay.
	Delay time.Duration
}

// Driver consumes all buffers and does nothing with them.
// It is only available when requested by name.
type Driver struct {
	opts   Options
	played atomic.Int64
}

func New(opts Options) *Driver {
	return &Driver{opts: opts}
}

func (d *Driver) Name() string        { return DriverName }
func (d *Driver) Description() string { return "dummy audio driver, discards output" }

func (d *Driver) Available(getenv func(string) string) bool {
	return driver.Explicit(getenv, DriverName)
}

func (d *Driver) CreateDevice() (driver.Device, error) {
	return &Device{
		drv:    d,
		logger: slog.Default().With("dummy device uuid", uuid.New()),
	}, nil
}

// Played returns the number of buffers consumed by all devices
func (d *Driver) Played() int64 {
	return d.played.Load()
}

type Device struct {
	drv    *Driver
	logger *slog.Logger
	delay  time.Duration
	mixbuf []byte
}

func (dev *Device) Open(ctx context.Context, spec *audio.Spec) error {
	dev.delay = dev.drv.opts.Delay
	if dev.delay == 0 {
		dev.delay = spec.BufferDuration()
	}
	dev.mixbuf = make([]byte, spec.Size)
	for i := range dev.mixbuf {
		dev.mixbuf[i] = spec.Silence
	}
	dev.logger.Info("dummy audio opened", "spec", spec.String())
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
	dev.drv.played.Add(1)
	return nil
}

func (dev *Device) MixBuffer() []byte {
	return dev.mixbuf
}

func (dev *Device) Close() {
	dev.mixbuf = nil
}

func (dev *Device) Delete() {
	dev.logger.Debug("dummy audio device deleted")
}
