// ABOUTME: Fake Pepper host for tests
// ABOUTME: Runs async calls on its own plugin goroutine and records flushed buffers
package peppertest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/pepper"
)

// Options control how the fake host behaves
type Options struct {
	// InitDelay is how long InitializeContext takes
	InitDelay time.Duration

	// BufferDelay is how long after initialization the output buffer appears
	BufferDelay time.Duration

	// InitResult is returned by InitializeContext (default ResultOK)
	InitResult pepper.Result

	// FlushResult is returned by FlushContext (default ResultOK)
	FlushResult pepper.Result

	// NoDevice makes AcquireDevice return nil
	NoDevice bool

	// OutBufferSize overrides the output buffer size derived from the config
	OutBufferSize int
}

// FakeHost implements pepper.Host. Async calls run in order on a single
// goroutine that stands in for the plugin thread.
type FakeHost struct {
	opts     Options
	instance pepper.Instance

	calls     chan func()
	done      chan struct{}
	closeOnce sync.Once
	onThread  atomic.Bool

	mu           sync.Mutex
	flushed      [][]byte
	configs      []pepper.ContextConfig
	initCount    int
	destroyCount int
	initOnThread bool
	initFinished time.Time
}

// New starts a fake host
func New(opts Options) *FakeHost {
	h := &FakeHost{
		opts:     opts,
		instance: pepper.NewInstance(),
		calls:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
	go h.pluginThread()
	return h
}

func (h *FakeHost) pluginThread() {
	for {
		select {
		case fn := <-h.calls:
			h.onThread.Store(true)
			fn()
			h.onThread.Store(false)
		case <-h.done:
			return
		}
	}
}

// Close stops the plugin thread
func (h *FakeHost) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// Session returns a session bound to this host's instance
func (h *FakeHost) Session() pepper.Session {
	return pepper.Session{Host: h, Instance: h.instance}
}

// AcquireDevice is part of the pepper.Host interface
func (h *FakeHost) AcquireDevice(inst pepper.Instance, id pepper.DeviceID) pepper.HostDevice {
	if h.opts.NoDevice || id != pepper.PepperAudioDevice || inst != h.instance {
		return nil
	}
	return &fakeDevice{host: h}
}

// PluginThreadAsyncCall is part of the pepper.Host interface
func (h *FakeHost) PluginThreadAsyncCall(inst pepper.Instance, fn func()) {
	select {
	case h.calls <- fn:
	case <-h.done:
	}
}

// Flushed returns copies of every buffer flushed so far
func (h *FakeHost) Flushed() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([][]byte, len(h.flushed))
	copy(out, h.flushed)
	return out
}

// Configs returns every config passed to InitializeContext
func (h *FakeHost) Configs() []pepper.ContextConfig {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]pepper.ContextConfig, len(h.configs))
	copy(out, h.configs)
	return out
}

// InitCount returns how many times InitializeContext ran
func (h *FakeHost) InitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initCount
}

// DestroyCount returns how many times DestroyContext ran
func (h *FakeHost) DestroyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyCount
}

// InitOnPluginThread reports whether InitializeContext ran on the plugin thread
func (h *FakeHost) InitOnPluginThread() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initOnThread
}

// InitFinished returns when the last InitializeContext call returned
func (h *FakeHost) InitFinished() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initFinished
}

type fakeDevice struct {
	host *FakeHost
}

func (d *fakeDevice) InitializeContext(inst pepper.Instance, cfg *pepper.ContextConfig, ctx *pepper.Context) pepper.Result {
	h := d.host
	onThread := h.onThread.Load()

	if h.opts.InitDelay > 0 {
		time.Sleep(h.opts.InitDelay)
	}

	h.mu.Lock()
	h.initCount++
	h.initOnThread = onThread
	h.configs = append(h.configs, *cfg)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.initFinished = time.Now()
		h.mu.Unlock()
	}()

	if h.opts.InitResult != pepper.ResultOK {
		return h.opts.InitResult
	}

	ctx.Config = *cfg
	size := h.opts.OutBufferSize
	if size == 0 {
		size = cfg.BufferSize()
	}
	buf := make([]byte, size)

	if h.opts.BufferDelay > 0 {
		time.AfterFunc(h.opts.BufferDelay, func() { ctx.SetOutBuffer(buf) })
	} else {
		ctx.SetOutBuffer(buf)
	}
	return pepper.ResultOK
}

func (d *fakeDevice) FlushContext(inst pepper.Instance, ctx *pepper.Context, done func(pepper.Result)) pepper.Result {
	h := d.host
	out := ctx.OutBuffer()

	h.mu.Lock()
	h.flushed = append(h.flushed, append([]byte(nil), out...))
	h.mu.Unlock()

	if done != nil {
		go done(h.opts.FlushResult)
	}
	return h.opts.FlushResult
}

func (d *fakeDevice) DestroyContext(inst pepper.Instance, ctx *pepper.Context) pepper.Result {
	h := d.host

	h.mu.Lock()
	h.destroyCount++
	h.mu.Unlock()

	ctx.SetOutBuffer(nil)
	return pepper.ResultOK
}
