// ABOUTME: Host-side interfaces consumed by the Pepper driver
// ABOUTME: Plugin instance handles, device acquisition, async calls and audio contexts
package pepper

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Instance is the host's opaque handle for one plugin instance. The zero
// value means there is no instance.
type Instance struct {
	id uuid.UUID
}

// NewInstance issues a fresh instance handle
func NewInstance() Instance {
	return Instance{id: uuid.New()}
}

// Valid reports whether the handle refers to an instance
func (i Instance) Valid() bool {
	return i.id != uuid.Nil
}

func (i Instance) String() string {
	return i.id.String()
}

// Session binds a host to the plugin instance the driver runs in.
type Session struct {
	Host     Host
	Instance Instance
}

// DeviceID identifies a class of host device
type DeviceID int

const (
	PepperAudioDevice DeviceID = 1
)

// Result is a host call status code
type Result int

const (
	ResultOK Result = iota
	ResultGeneric
	ResultInvalidInstance
	ResultInvalidParam
	ResultOutOfMemory
	ResultNotSupported
)

var resultNames = map[Result]string{
	ResultOK:              "ok",
	ResultGeneric:         "generic error",
	ResultInvalidInstance: "invalid instance",
	ResultInvalidParam:    "invalid parameter",
	ResultOutOfMemory:     "out of memory",
	ResultNotSupported:    "not supported",
}

func (r Result) Error() string {
	if name, ok := resultNames[r]; ok {
		return "host: " + name
	}
	return fmt.Sprintf("host: result %d", int(r))
}

// Err returns nil for ResultOK and r otherwise
func (r Result) Err() error {
	if r == ResultOK {
		return nil
	}
	return r
}

// SampleType is the host's sample encoding
type SampleType int

const (
	SampleInt16 SampleType = iota
	SampleFloat32
)

// ChannelMap is the host's channel layout
type ChannelMap int

const (
	ChannelNone ChannelMap = iota
	ChannelMono
	ChannelStereo
)

// Channels returns the number of channels in the layout
func (m ChannelMap) Channels() int {
	switch m {
	case ChannelMono:
		return 1
	case ChannelStereo:
		return 2
	default:
		return 0
	}
}

// ContextConfig is the stream requested from the host
type ContextConfig struct {
	SampleRate       int
	SampleType       SampleType
	OutputChannelMap ChannelMap
	InputChannelMap  ChannelMap
	SampleFrameCount int
	Flags            uint32

	// Callback selects pull mode when set. Nil means blocking push.
	Callback func(*Context)
}

// BufferSize returns the byte size of one output buffer for the config
func (c ContextConfig) BufferSize() int {
	bytesPerSample := 2
	if c.SampleType == SampleFloat32 {
		bytesPerSample = 4
	}
	return c.SampleFrameCount * c.OutputChannelMap.Channels() * bytesPerSample
}

// Context is a host-owned output stream. The host publishes the buffer the
// plugin writes into; it may do so from its own thread at any time.
type Context struct {
	Config ContextConfig

	outBuffer atomic.Pointer[[]byte]
}

// OutBuffer returns the host's current output buffer, or nil if the host
// has not produced one yet.
func (c *Context) OutBuffer() []byte {
	if p := c.outBuffer.Load(); p != nil {
		return *p
	}
	return nil
}

// SetOutBuffer publishes b as the output buffer. Called by hosts.
func (c *Context) SetOutBuffer(b []byte) {
	if b == nil {
		c.outBuffer.Store(nil)
		return
	}
	c.outBuffer.Store(&b)
}

// Host is the plugin runtime the driver talks to.
type Host interface {
	// AcquireDevice returns the device of the given class, or nil when the
	// host cannot provide one.
	AcquireDevice(inst Instance, id DeviceID) HostDevice

	// PluginThreadAsyncCall runs fn later on the host's plugin thread
	PluginThreadAsyncCall(inst Instance, fn func())
}

// HostDevice is an audio device handed out by a Host.
type HostDevice interface {
	// InitializeContext configures ctx for cfg. Only safe on the plugin thread.
	InitializeContext(inst Instance, cfg *ContextConfig, ctx *Context) Result

	// FlushContext submits ctx's output buffer. With a nil done callback
	// the call blocks until the host accepts the buffer.
	FlushContext(inst Instance, ctx *Context, done func(Result)) Result

	// DestroyContext releases the host resources behind ctx
	DestroyContext(inst Instance, ctx *Context) Result
}
