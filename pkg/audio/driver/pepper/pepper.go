// ABOUTME: Pepper plugin audio driver
// ABOUTME: Blocking push output through a browser-plugin host's audio device
package pepper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/google/uuid"
)

const (
	// DriverName is the tag used to select this driver
	DriverName = "nacl"

	driverDescription = "Pepper plugin audio driver"

	// MaxMixBuffer is the largest mixing buffer the driver will allocate
	MaxMixBuffer = 1 << 24

	// DefaultBufferWait bounds how long Play waits for the host's first
	// output buffer.
	DefaultBufferWait = 2 * time.Second

	bufferPollInterval = 2 * time.Millisecond
)

var (
	ErrNoHost            = errors.New("no plugin host")
	ErrNoHostDevice      = errors.New("host has no audio device")
	ErrUnsupportedFormat = errors.New("unsupported sample format")
	ErrMixBufferAlloc    = errors.New("cannot allocate mixing buffer")
	ErrHostBufferTimeout = errors.New("host output buffer not ready")
	ErrHostBufferSize    = errors.New("host output buffer too small")
)

// Options tune the driver for a particular host
type Options struct {
	// BlockingPush must be set by hosts that implement blocking push mode.
	// Without it the driver reports itself unavailable.
	BlockingPush bool

	// BufferWait bounds the wait for the host's output buffer in Play.
	// Zero means DefaultBufferWait, negative means wait forever.
	BufferWait time.Duration
}

// Driver is the bootstrap entry for the Pepper backend
type Driver struct {
	session Session
	opts    Options
}

// New creates the driver for a host session
func New(session Session, opts Options) *Driver {
	if opts.BufferWait == 0 {
		opts.BufferWait = DefaultBufferWait
	}
	return &Driver{
		session: session,
		opts:    opts,
	}
}

// Name is part of the driver.Bootstrap interface
func (d *Driver) Name() string {
	return DriverName
}

// Description is part of the driver.Bootstrap interface
func (d *Driver) Description() string {
	return driverDescription
}

// Available reports whether the driver can run. It stays false until the host
// implements blocking push mode; after that it needs a live plugin instance
// and an AUDIODRIVER override that is unset, empty or "nacl".
func (d *Driver) Available(getenv func(string) string) bool {
	if !d.opts.BlockingPush {
		return false
	}
	if d.session.Host == nil || !d.session.Instance.Valid() {
		return false
	}
	if !driver.Requested(getenv, DriverName) {
		return false
	}
	slog.Debug("pepper audio is available", "instance", d.session.Instance)
	return true
}

// CreateDevice acquires the host audio device. A host that cannot hand one
// out violates the plugin contract and aborts.
func (d *Driver) CreateDevice() (driver.Device, error) {
	if d.session.Host == nil {
		driver.Abort(DriverName, "create device", ErrNoHost)
	}

	id := uuid.New()
	logger := slog.Default().With(
		"pepper device uuid", id,
		"instance", d.session.Instance,
	)

	hostDev := d.session.Host.AcquireDevice(d.session.Instance, PepperAudioDevice)
	if hostDev == nil {
		driver.Abort(DriverName, "create device", ErrNoHostDevice)
	}

	logger.Debug("created pepper audio device")

	return &Device{
		logger:  logger,
		session: d.session,
		hostDev: hostDev,
		opts:    d.opts,
	}, nil
}

// Device is one Pepper output stream
type Device struct {
	logger  *slog.Logger
	session Session
	hostDev HostDevice
	opts    Options

	context     *Context
	initialized bool

	mixbuf []byte
	mixlen int
}

// initCall is one context-initialization request handed to the plugin
// thread. It owns the context the host fills in, so a call that Open gave
// up on never writes into the device.
type initCall struct {
	dev     *Device
	cfg     ContextConfig
	context Context

	mu        sync.Mutex
	abandoned bool
	done      chan Result
}

func newInitCall(dev *Device, cfg ContextConfig) *initCall {
	return &initCall{
		dev:  dev,
		cfg:  cfg,
		done: make(chan Result, 1),
	}
}

// run executes on the host's plugin thread. If the caller has already
// abandoned the call, a context that came up is destroyed here.
func (c *initCall) run() {
	c.dev.logger.Debug("initializing host context")
	res := c.dev.hostDev.InitializeContext(c.dev.session.Instance, &c.cfg, &c.context)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.abandoned {
		c.done <- res
		return
	}
	if res != ResultOK {
		return
	}
	c.dev.logger.Debug("destroying abandoned host context")
	if res := c.dev.hostDev.DestroyContext(c.dev.session.Instance, &c.context); res != ResultOK {
		c.dev.logger.Warn("failed to destroy abandoned host context", "err", res)
	}
}

// abandon marks the call as given up. If the host finished first, its
// result is returned with ok set and the caller owns the context.
func (c *initCall) abandon() (res Result, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case res = <-c.done:
		return res, true
	default:
		c.abandoned = true
		return ResultGeneric, false
	}
}

// Open negotiates the host context and allocates the mixing buffer.
//
// Only S16LSB is accepted; any other format, like a failed context
// initialization, aborts. A mixing buffer that cannot be allocated is
// reported as ErrMixBufferAlloc.
func (dev *Device) Open(ctx context.Context, spec *audio.Spec) error {
	if spec.Format != audio.S16LSB {
		driver.Abort(DriverName, "open", fmt.Errorf("%w: %s", ErrUnsupportedFormat, spec.Format))
	}

	channelMap := ChannelMono
	if spec.Channels == 2 {
		channelMap = ChannelStereo
	}

	cfg := ContextConfig{
		SampleRate:       spec.Freq,
		SampleType:       SampleInt16,
		OutputChannelMap: channelMap,
		InputChannelMap:  ChannelNone,
		SampleFrameCount: spec.Samples,
		Flags:            0,
		Callback:         nil,
	}

	dev.logger.Debug("opening pepper audio", "freq", spec.Freq, "samples", spec.Samples)

	res, err := dev.initializeContext(ctx, cfg)
	if err != nil {
		return err
	}
	if res != ResultOK {
		driver.Abort(DriverName, "initialize context", res)
	}
	dev.initialized = true

	if spec.Size <= 0 || spec.Size > MaxMixBuffer {
		dev.logger.Error("cannot allocate mixing buffer", "size", spec.Size)
		return fmt.Errorf("%w: %d bytes", ErrMixBufferAlloc, spec.Size)
	}
	dev.mixlen = spec.Size
	dev.mixbuf = bytes.Repeat([]byte{spec.Silence}, spec.Size)

	dev.logger.Info("pepper audio opened", "freq", spec.Freq, "channels", spec.Channels,
		"samples", spec.Samples, "mixlen", dev.mixlen)

	return nil
}

// initializeContext posts the initialization to the plugin thread and
// blocks until it has run.
func (dev *Device) initializeContext(ctx context.Context, cfg ContextConfig) (Result, error) {
	call := newInitCall(dev, cfg)

	dev.logger.Debug("starting async context initialization")
	dev.session.Host.PluginThreadAsyncCall(dev.session.Instance, call.run)

	select {
	case res := <-call.done:
		dev.logger.Debug("host context initialized", "result", int(res))
		dev.context = &call.context
		return res, nil
	case <-ctx.Done():
		if res, ok := call.abandon(); ok {
			dev.logger.Debug("host context initialized", "result", int(res))
			dev.context = &call.context
			return res, nil
		}
		dev.logger.Warn("gave up waiting for host context", "err", ctx.Err())
		return ResultGeneric, fmt.Errorf("initialize context: %w", ctx.Err())
	}
}

// Wait is a no-op: Play blocks until the host is ready for the next buffer.
func (dev *Device) Wait(ctx context.Context) error {
	return nil
}

// Play copies the mixing buffer into the host output buffer and flushes it.
// The flush blocks until the host accepts the buffer.
func (dev *Device) Play(ctx context.Context) error {
	if dev.mixbuf == nil {
		return driver.ErrNotOpen
	}

	out, err := dev.waitOutBuffer(ctx)
	if err != nil {
		return err
	}
	if len(out) < dev.mixlen {
		driver.Abort(DriverName, "play", fmt.Errorf("%w: have %d, need %d",
			ErrHostBufferSize, len(out), dev.mixlen))
	}

	dev.logger.Debug("play", "size", dev.mixlen)
	copy(out, dev.mixbuf)

	if res := dev.hostDev.FlushContext(dev.session.Instance, dev.context, nil); res != ResultOK {
		dev.logger.Error("flush failed", "err", res)
		return fmt.Errorf("flush context: %w", res)
	}
	return nil
}

// waitOutBuffer polls for the host's first output buffer, which may lag
// behind context initialization during startup.
func (dev *Device) waitOutBuffer(ctx context.Context) ([]byte, error) {
	if out := dev.context.OutBuffer(); out != nil {
		return out, nil
	}

	dev.logger.Warn("host output buffer not ready, waiting")

	var deadline <-chan time.Time
	if dev.opts.BufferWait > 0 {
		timer := time.NewTimer(dev.opts.BufferWait)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(bufferPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w after %v", ErrHostBufferTimeout, dev.opts.BufferWait)
		case <-ticker.C:
			if out := dev.context.OutBuffer(); out != nil {
				return out, nil
			}
		}
	}
}

// MixBuffer returns the mixing buffer
func (dev *Device) MixBuffer() []byte {
	return dev.mixbuf
}

// Close releases the mixing buffer
func (dev *Device) Close() {
	if dev.mixbuf != nil {
		dev.mixbuf = nil
		dev.mixlen = 0
		dev.logger.Debug("mixing buffer released")
	}
}

// Delete destroys the host context if one was initialized
func (dev *Device) Delete() {
	if dev.initialized {
		if res := dev.hostDev.DestroyContext(dev.session.Instance, dev.context); res != ResultOK {
			dev.logger.Warn("failed to destroy host context", "err", res)
		}
		dev.initialized = false
	}
	dev.logger.Debug("pepper audio device deleted")
}
