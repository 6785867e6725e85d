// ABOUTME: Host bridge client implementing pepper.Host over a websocket
// ABOUTME: Runs the plugin thread locally and forwards device calls to a remote host
package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/internal/version"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/pepper"
	"github.com/gorilla/websocket"
)

const (
	// DefaultRequestTimeout bounds a control request round trip
	DefaultRequestTimeout = 5 * time.Second

	writeDeadline = 10 * time.Second
)

var (
	ErrClosed     = errors.New("bridge connection closed")
	ErrHostError  = errors.New("host reported an error")
	ErrBadReply   = errors.New("unexpected reply")
	ErrNotRunning = errors.New("plugin thread stopped")
)

// ClientConfig holds client configuration
type ClientConfig struct {
	Addr           string
	Name           string
	Codec          string
	RequestTimeout time.Duration
}

// Client connects to a bridge host and implements pepper.Host
type Client struct {
	config   ClientConfig
	conn     *websocket.Conn
	instance pepper.Instance
	logger   *slog.Logger

	writeMu sync.Mutex
	reqMu   sync.Mutex
	replies chan envelope

	calls chan func()

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup

	hostName atomic.Value
}

// Dial connects to a bridge host
func Dial(ctx context.Context, config ClientConfig) (*Client, error) {
	if config.Name == "" {
		config.Name = version.String()
	}
	if config.Codec == "" {
		config.Codec = CodecPCM
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	u := url.URL{Scheme: "ws", Host: config.Addr, Path: Path}
	instance := pepper.NewInstance()
	logger := slog.Default().With("bridge client", instance)

	logger.Info("connecting to bridge host", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:   config,
		conn:     conn,
		instance: instance,
		logger:   logger,
		replies:  make(chan envelope, 1),
		calls:    make(chan func(), 64),
		ctx:      cctx,
		cancel:   cancel,
	}

	c.wg.Add(2)
	go c.readMessages()
	go c.pluginThread()

	return c, nil
}

// Session returns the session the pepper driver should use
func (c *Client) Session() pepper.Session {
	return pepper.Session{Host: c, Instance: c.instance}
}

// HostName returns the name the host reported when the device was acquired
func (c *Client) HostName() string {
	name, _ := c.hostName.Load().(string)
	return name
}

// Close disconnects from the host
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.wg.Wait()
		c.logger.Info("bridge client closed")
	})
	return err
}

// pluginThread runs async calls in order, standing in for the plugin's main thread
func (c *Client) pluginThread() {
	defer c.wg.Done()

	for {
		select {
		case fn := <-c.calls:
			fn()
		case <-c.ctx.Done():
			return
		}
	}
}

// readMessages routes replies to the pending request
func (c *Client) readMessages() {
	defer c.wg.Done()
	defer c.cancel()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Warn("bridge read error", "err", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("ignoring unexpected binary message from host")
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("failed to parse host message", "err", err)
			continue
		}

		select {
		case c.replies <- env:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(messageType, data)
}

// request sends one message and waits for the reply of type want
func (c *Client) request(messageType int, data []byte, want string) (envelope, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.ctx.Err(); err != nil {
		return envelope{}, ErrClosed
	}
	if err := c.writeMessage(messageType, data); err != nil {
		return envelope{}, fmt.Errorf("write failed: %w", err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case env := <-c.replies:
		if env.Type == MsgError {
			var msg ErrorMessage
			env.decode(&msg)
			return env, fmt.Errorf("%w: %s", ErrHostError, msg.Message)
		}
		if env.Type != want {
			return env, fmt.Errorf("%w: expected %s, got %s", ErrBadReply, want, env.Type)
		}
		return env, nil
	case <-timer.C:
		// The late reply would answer the next request, so the
		// connection cannot be trusted any more.
		err := fmt.Errorf("timed out waiting for %s", want)
		c.drop(err)
		return envelope{}, fmt.Errorf("%w: %v", ErrClosed, err)
	case <-c.ctx.Done():
		return envelope{}, ErrClosed
	}
}

// drop tears down the connection without waiting for the client goroutines,
// so it is safe to call from the plugin thread.
func (c *Client) drop(reason error) {
	c.logger.Error("dropping bridge connection", "err", reason)
	c.cancel()
	c.conn.Close()
}

func (c *Client) requestJSON(msgType string, payload interface{}, want string, reply interface{}) error {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	env, err := c.request(websocket.TextMessage, data, want)
	if err != nil {
		return err
	}
	if reply != nil {
		return env.decode(reply)
	}
	return nil
}

// AcquireDevice is part of the pepper.Host interface. It returns nil when
// the host does not hand out a device.
func (c *Client) AcquireDevice(inst pepper.Instance, id pepper.DeviceID) pepper.HostDevice {
	req := DeviceAcquire{
		Instance: inst.String(),
		Device:   int(id),
		Name:     c.config.Name,
		Version:  ProtocolVersion,
	}

	var reply DeviceAcquired
	if err := c.requestJSON(MsgDeviceAcquire, req, MsgDeviceAcquired, &reply); err != nil {
		c.logger.Error("failed to acquire host device", "err", err)
		return nil
	}

	c.hostName.Store(reply.HostName)
	c.logger.Info("acquired host device", "host", reply.HostName)

	return &remoteDevice{client: c}
}

// PluginThreadAsyncCall is part of the pepper.Host interface
func (c *Client) PluginThreadAsyncCall(inst pepper.Instance, fn func()) {
	select {
	case c.calls <- fn:
	case <-c.ctx.Done():
		c.logger.Warn("dropping async call", "err", ErrNotRunning)
	}
}

// remoteDevice forwards context calls to the host
type remoteDevice struct {
	client  *Client
	encoder *frameEncoder
	flushes uint64
}

func (d *remoteDevice) InitializeContext(inst pepper.Instance, cfg *pepper.ContextConfig, ctx *pepper.Context) pepper.Result {
	c := d.client
	channels := cfg.OutputChannelMap.Channels()

	if cfg.SampleType != pepper.SampleInt16 || channels == 0 {
		return pepper.ResultNotSupported
	}

	req := ContextInitialize{
		SampleRate:       cfg.SampleRate,
		SampleType:       int(cfg.SampleType),
		Channels:         channels,
		SampleFrameCount: cfg.SampleFrameCount,
		Codec:            negotiateCodec(c.config.Codec, cfg.SampleRate, cfg.SampleFrameCount),
	}

	var reply ContextInitialized
	if err := c.requestJSON(MsgContextInitialize, req, MsgContextInitialized, &reply); err != nil {
		c.logger.Error("context initialization failed", "err", err)
		return pepper.ResultGeneric
	}
	if res := pepper.Result(reply.Result); res != pepper.ResultOK {
		return res
	}
	if reply.BufferSize < cfg.BufferSize() {
		c.logger.Error("host buffer too small", "have", reply.BufferSize, "need", cfg.BufferSize())
		return pepper.ResultInvalidParam
	}

	enc, err := newFrameEncoder(reply.Codec, cfg.SampleRate, channels)
	if err != nil {
		c.logger.Error("cannot encode for host", "codec", reply.Codec, "err", err)
		return pepper.ResultNotSupported
	}
	if d.encoder != nil {
		d.encoder.Close()
	}
	d.encoder = enc
	d.flushes = 0

	ctx.Config = *cfg
	ctx.SetOutBuffer(make([]byte, reply.BufferSize))

	c.logger.Info("host context initialized", "codec", reply.Codec,
		"driver", reply.Driver, "buffer", reply.BufferSize)
	return pepper.ResultOK
}

func (d *remoteDevice) FlushContext(inst pepper.Instance, ctx *pepper.Context, done func(pepper.Result)) pepper.Result {
	res := d.flush(ctx)
	if done != nil {
		done(res)
	}
	return res
}

func (d *remoteDevice) flush(ctx *pepper.Context) pepper.Result {
	c := d.client

	out := ctx.OutBuffer()
	if out == nil || d.encoder == nil {
		return pepper.ResultInvalidParam
	}

	frame, err := d.encoder.Encode(out[:ctx.Config.BufferSize()])
	if err != nil {
		c.logger.Error("failed to encode buffer", "err", err)
		return pepper.ResultGeneric
	}

	env, err := c.request(websocket.BinaryMessage, frame, MsgContextFlushed)
	if err != nil {
		c.logger.Error("flush failed", "err", err)
		return pepper.ResultGeneric
	}

	var reply ContextFlushed
	if err := env.decode(&reply); err != nil {
		return pepper.ResultGeneric
	}

	d.flushes++
	if reply.Sequence != d.flushes {
		c.drop(fmt.Errorf("%w: flush %d acked as %d", ErrBadReply, d.flushes, reply.Sequence))
		return pepper.ResultGeneric
	}
	c.logger.Debug("buffer flushed", "sequence", reply.Sequence)
	return pepper.Result(reply.Result)
}

func (d *remoteDevice) DestroyContext(inst pepper.Instance, ctx *pepper.Context) pepper.Result {
	c := d.client

	if d.encoder != nil {
		d.encoder.Close()
		d.encoder = nil
	}
	ctx.SetOutBuffer(nil)

	data, err := json.Marshal(Message{Type: MsgContextDestroy})
	if err != nil {
		return pepper.ResultGeneric
	}
	if err := c.writeMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("failed to send context destroy", "err", err)
		return pepper.ResultGeneric
	}
	return pepper.ResultOK
}
