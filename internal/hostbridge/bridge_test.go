// ABOUTME: Tests for the host bridge client and server
// ABOUTME: Runs the pepper driver end to end against an httptest bridge host
package hostbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/pepper"
	"github.com/gorilla/websocket"
)

// recordDriver keeps every buffer played through it
type recordDriver struct {
	mu      sync.Mutex
	buffers [][]byte
	specs   []audio.Spec
}

func (r *recordDriver) Name() string        { return "record" }
func (r *recordDriver) Description() string { return "records played buffers" }

func (r *recordDriver) Available(getenv func(string) string) bool {
	return driver.Requested(getenv, "record")
}

func (r *recordDriver) CreateDevice() (driver.Device, error) {
	return &recordDevice{drv: r}, nil
}

func (r *recordDriver) Buffers() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.buffers...)
}

type recordDevice struct {
	drv    *recordDriver
	mixbuf []byte
}

func (d *recordDevice) Open(ctx context.Context, spec *audio.Spec) error {
	d.drv.mu.Lock()
	d.drv.specs = append(d.drv.specs, *spec)
	d.drv.mu.Unlock()
	d.mixbuf = make([]byte, spec.Size)
	return nil
}

func (d *recordDevice) Wait(ctx context.Context) error { return nil }

func (d *recordDevice) Play(ctx context.Context) error {
	d.drv.mu.Lock()
	d.drv.buffers = append(d.drv.buffers, append([]byte(nil), d.mixbuf...))
	d.drv.mu.Unlock()
	return nil
}

func (d *recordDevice) MixBuffer() []byte { return d.mixbuf }
func (d *recordDevice) Close()            { d.mixbuf = nil }
func (d *recordDevice) Delete()           {}

// exclusiveDriver refuses a second open while a device is live, like a
// backend that owns the sound card.
type exclusiveDriver struct {
	mu     sync.Mutex
	open   bool
	opened int
}

var errDeviceBusy = errors.New("device busy")

func (e *exclusiveDriver) Name() string        { return "exclusive" }
func (e *exclusiveDriver) Description() string { return "allows one open device" }

func (e *exclusiveDriver) Available(getenv func(string) string) bool {
	return driver.Requested(getenv, "exclusive")
}

func (e *exclusiveDriver) CreateDevice() (driver.Device, error) {
	return &exclusiveDevice{drv: e}, nil
}

func (e *exclusiveDriver) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

type exclusiveDevice struct {
	drv    *exclusiveDriver
	held   bool
	mixbuf []byte
}

func (d *exclusiveDevice) Open(ctx context.Context, spec *audio.Spec) error {
	d.drv.mu.Lock()
	defer d.drv.mu.Unlock()
	if d.drv.open {
		return errDeviceBusy
	}
	d.drv.open = true
	d.drv.opened++
	d.held = true
	d.mixbuf = make([]byte, spec.Size)
	return nil
}

func (d *exclusiveDevice) Wait(ctx context.Context) error { return nil }
func (d *exclusiveDevice) Play(ctx context.Context) error { return nil }
func (d *exclusiveDevice) MixBuffer() []byte              { return d.mixbuf }
func (d *exclusiveDevice) Close()                         { d.mixbuf = nil }

func (d *exclusiveDevice) Delete() {
	if !d.held {
		return
	}
	d.drv.mu.Lock()
	d.drv.open = false
	d.drv.mu.Unlock()
	d.held = false
}

func noEnv(string) string { return "" }

func startBridge(t *testing.T, drivers ...driver.Bootstrap) (*Server, string) {
	t.Helper()

	srv := NewServer(ServerConfig{
		Name:     "test host",
		Registry: driver.NewRegistry(drivers...),
		Getenv:   noEnv,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func dialBridge(t *testing.T, addr, codec string) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, ClientConfig{Addr: addr, Name: "test plugin", Codec: codec})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func playThrough(t *testing.T, client *Client, spec audio.Spec, buffers int) [][]byte {
	t.Helper()

	drv := pepper.New(client.Session(), pepper.Options{BlockingPush: true})
	if !drv.Available(noEnv) {
		t.Fatal("expected pepper driver available over the bridge")
	}

	stream, err := driver.OpenStream(context.Background(), drv, spec)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}

	var sent [][]byte
	fill := func(buf []byte) (int, error) {
		if len(sent) == buffers {
			return 0, io.EOF
		}
		for i := range buf {
			buf[i] = byte(len(sent)*16 + i%16)
		}
		sent = append(sent, append([]byte(nil), buf...))
		return len(buf), nil
	}

	if err := stream.Run(context.Background(), fill); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	stream.Close()
	return sent
}

func TestBridgePCM(t *testing.T) {
	rec := &recordDriver{}
	srv, addr := startBridge(t, rec)
	client := dialBridge(t, addr, CodecPCM)

	spec := audio.Spec{Freq: 44100, Format: audio.S16LSB, Channels: 2, Samples: 256}
	sent := playThrough(t, client, spec, 3)

	got := rec.Buffers()
	if len(got) != len(sent) {
		t.Fatalf("host played %d buffers, want %d", len(got), len(sent))
	}
	for i := range sent {
		if !bytes.Equal(got[i], sent[i]) {
			t.Errorf("buffer %d differs", i)
		}
	}

	if client.HostName() != "test host" {
		t.Errorf("expected host name 'test host', got %q", client.HostName())
	}

	stats := srv.Stats()
	if stats.BuffersPlayed != 3 || stats.Driver != "record" || stats.Sessions != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestBridgeOpus(t *testing.T) {
	rec := &recordDriver{}
	_, addr := startBridge(t, rec)
	client := dialBridge(t, addr, CodecOpus)

	// 10ms at 48kHz is a legal Opus frame
	spec := audio.Spec{Freq: 48000, Format: audio.S16LSB, Channels: 2, Samples: 480}
	playThrough(t, client, spec, 4)

	got := rec.Buffers()
	if len(got) != 4 {
		t.Fatalf("host played %d buffers, want 4", len(got))
	}
	for i, buf := range got {
		if len(buf) != 480*2*2 {
			t.Errorf("buffer %d has %d bytes", i, len(buf))
		}
	}
}

func TestBridgeNoLocalDriver(t *testing.T) {
	_, addr := startBridge(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+Path, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	send := func(msgType string, payload interface{}) {
		if err := conn.WriteJSON(Message{Type: msgType, Payload: payload}); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	recv := func() envelope {
		var env envelope
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		return env
	}

	send(MsgContextInitialize, ContextInitialize{SampleRate: 48000, Channels: 2, SampleFrameCount: 480})
	if env := recv(); env.Type != MsgError {
		t.Errorf("expected error before acquire, got %s", env.Type)
	}

	send(MsgDeviceAcquire, DeviceAcquire{Instance: "x", Device: int(pepper.PepperAudioDevice)})
	if env := recv(); env.Type != MsgDeviceAcquired {
		t.Fatalf("expected %s, got %s", MsgDeviceAcquired, env.Type)
	}

	send(MsgContextInitialize, ContextInitialize{SampleRate: 48000, Channels: 2, SampleFrameCount: 480})
	env := recv()
	var reply ContextInitialized
	if err := env.decode(&reply); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if pepper.Result(reply.Result) == pepper.ResultOK {
		t.Error("expected initialization to fail without a local driver")
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{tagPCM, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if env := recv(); env.Type != MsgError {
		t.Errorf("expected error for buffer without context, got %s", env.Type)
	}
}

func TestAcquireUnknownDevice(t *testing.T) {
	rec := &recordDriver{}
	_, addr := startBridge(t, rec)
	client := dialBridge(t, addr, CodecPCM)

	if dev := client.AcquireDevice(client.Session().Instance, pepper.DeviceID(7)); dev != nil {
		t.Error("expected no device for an unknown device id")
	}
}

func TestRequestAfterClose(t *testing.T) {
	_, addr := startBridge(t, &recordDriver{})
	client := dialBridge(t, addr, CodecPCM)
	client.Close()

	err := client.requestJSON(MsgDeviceAcquire, DeviceAcquire{}, MsgDeviceAcquired, nil)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestReinitializeExclusiveDriver(t *testing.T) {
	excl := &exclusiveDriver{}
	_, addr := startBridge(t, excl)
	client := dialBridge(t, addr, CodecPCM)

	dev := client.AcquireDevice(client.Session().Instance, pepper.PepperAudioDevice)
	if dev == nil {
		t.Fatal("expected a host device")
	}

	configs := []pepper.ContextConfig{
		{SampleRate: 48000, SampleType: pepper.SampleInt16, OutputChannelMap: pepper.ChannelStereo, SampleFrameCount: 480},
		{SampleRate: 22050, SampleType: pepper.SampleInt16, OutputChannelMap: pepper.ChannelMono, SampleFrameCount: 256},
	}
	for i, cfg := range configs {
		var pctx pepper.Context
		if res := dev.InitializeContext(client.Session().Instance, &cfg, &pctx); res != pepper.ResultOK {
			t.Fatalf("initialize %d: got %v", i, res)
		}
	}

	if got := excl.Opened(); got != len(configs) {
		t.Errorf("opened %d local streams, want %d", got, len(configs))
	}
}

// startScriptedHost serves a minimal bridge host whose flush acks are
// shaped by ack, which maps the nth buffer to its reported sequence and
// the delay before the reply.
func startScriptedHost(t *testing.T, ack func(n uint64) (uint64, time.Duration)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var buffers uint64
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if messageType == websocket.BinaryMessage {
				buffers++
				seq, delay := ack(buffers)
				time.Sleep(delay)
				conn.WriteJSON(Message{Type: MsgContextFlushed,
					Payload: ContextFlushed{Result: int(pepper.ResultOK), Sequence: seq}})
				continue
			}

			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				return
			}
			switch env.Type {
			case MsgDeviceAcquire:
				conn.WriteJSON(Message{Type: MsgDeviceAcquired, Payload: DeviceAcquired{HostName: "scripted"}})
			case MsgContextInitialize:
				var req ContextInitialize
				env.decode(&req)
				conn.WriteJSON(Message{Type: MsgContextInitialized, Payload: ContextInitialized{
					Result:     int(pepper.ResultOK),
					BufferSize: req.SampleFrameCount * req.Channels * 2,
					Codec:      CodecPCM,
				}})
			}
		}
	}))
	t.Cleanup(ts.Close)

	return strings.TrimPrefix(ts.URL, "http://")
}

func TestFlushAckMismatchDropsConnection(t *testing.T) {
	const timeout = 30 * time.Millisecond

	tests := []struct {
		name string
		ack  func(n uint64) (uint64, time.Duration)
	}{
		{"late ack", func(n uint64) (uint64, time.Duration) {
			if n == 1 {
				return n, 4 * timeout
			}
			return n, 0
		}},
		{"wrong sequence", func(n uint64) (uint64, time.Duration) {
			return n + 1, 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startScriptedHost(t, tt.ack)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client, err := Dial(ctx, ClientConfig{Addr: addr, Name: "test plugin", RequestTimeout: timeout})
			if err != nil {
				t.Fatalf("Dial failed: %v", err)
			}
			defer client.Close()

			inst := client.Session().Instance
			dev := client.AcquireDevice(inst, pepper.PepperAudioDevice)
			if dev == nil {
				t.Fatal("expected a host device")
			}

			cfg := pepper.ContextConfig{SampleRate: 48000, SampleType: pepper.SampleInt16,
				OutputChannelMap: pepper.ChannelStereo, SampleFrameCount: 480}
			var pctx pepper.Context
			if res := dev.InitializeContext(inst, &cfg, &pctx); res != pepper.ResultOK {
				t.Fatalf("InitializeContext: got %v", res)
			}

			if res := dev.FlushContext(inst, &pctx, nil); res == pepper.ResultOK {
				t.Fatal("expected the first flush to fail")
			}

			// Give a late ack time to arrive; it must not answer a later flush.
			time.Sleep(8 * timeout)
			if res := dev.FlushContext(inst, &pctx, nil); res == pepper.ResultOK {
				t.Error("later flush succeeded on a desynchronized connection")
			}

			err = client.requestJSON(MsgDeviceAcquire, DeviceAcquire{}, MsgDeviceAcquired, nil)
			if !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestNegotiateCodec(t *testing.T) {
	tests := []struct {
		requested    string
		rate, frames int
		want         string
	}{
		{CodecOpus, 48000, 960, CodecOpus},
		{CodecOpus, 48000, 1024, CodecPCM},
		{CodecOpus, 44100, 441, CodecPCM},
		{CodecPCM, 48000, 960, CodecPCM},
		{"", 48000, 960, CodecPCM},
	}

	for _, tt := range tests {
		if got := negotiateCodec(tt.requested, tt.rate, tt.frames); got != tt.want {
			t.Errorf("negotiateCodec(%q, %d, %d) = %q, want %q",
				tt.requested, tt.rate, tt.frames, got, tt.want)
		}
	}
}

func TestFramePCMRoundTrip(t *testing.T) {
	enc, err := newFrameEncoder(CodecPCM, 48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	dec := newFrameDecoder(48000, 2)

	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	frame, err := enc.Encode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if frame[0] != tagPCM {
		t.Errorf("expected pcm tag, got %d", frame[0])
	}

	out, err := dec.Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, buf) {
		t.Errorf("got %v, want %v", out, buf)
	}
}

func TestFrameDecodeErrors(t *testing.T) {
	dec := newFrameDecoder(48000, 2)

	if _, err := dec.Decode(nil); !errors.Is(err, ErrShortFrame) {
		t.Errorf("expected ErrShortFrame, got %v", err)
	}
	if _, err := dec.Decode([]byte{9, 0}); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
	if _, err := newFrameEncoder("flac", 48000, 2); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestMessageEncoding(t *testing.T) {
	data, err := json.Marshal(Message{Type: MsgContextFlushed, Payload: ContextFlushed{Sequence: 3}})
	if err != nil {
		t.Fatal(err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	var flushed ContextFlushed
	if err := env.decode(&flushed); err != nil {
		t.Fatal(err)
	}
	if env.Type != MsgContextFlushed || flushed.Sequence != 3 {
		t.Errorf("unexpected message %s %+v", env.Type, flushed)
	}

	if err := (envelope{Type: MsgContextDestroy}).decode(&flushed); err == nil {
		t.Error("expected error for missing payload")
	}
}
