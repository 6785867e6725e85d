// ABOUTME: Host bridge server playing remote plugin buffers on a local driver
// ABOUTME: Accepts websocket sessions, negotiates a stream and acks each played buffer
package hostbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/internal/discovery"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/pepper"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port       int
	Name       string
	EnableMDNS bool

	// Driver names the local output driver; empty selects the first available
	Driver   string
	Registry *driver.Registry
	Getenv   func(string) string
}

// Stats summarizes server activity
type Stats struct {
	Sessions       int
	ActiveSessions int
	BuffersPlayed  int64
	Driver         string
	Spec           string
}

// Server plays buffers flushed by bridge clients
type Server struct {
	config   ServerConfig
	serverID string
	logger   *slog.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	mdnsManager *discovery.Manager

	sessions       atomic.Int64
	activeSessions atomic.Int64
	played         atomic.Int64
	statsMu        sync.RWMutex
	lastDriver     string
	lastSpec       string

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a server instance
func NewServer(config ServerConfig) *Server {
	if config.Getenv == nil {
		config.Getenv = os.Getenv
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	s := &Server{
		config:   config,
		serverID: id,
		logger:   slog.Default().With("bridge server", id),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Bridge hosts live on trusted local networks
				return true
			},
		},
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(Path, s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler serving the bridge endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Stats returns a snapshot of server activity
func (s *Server) Stats() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	return Stats{
		Sessions:       int(s.sessions.Load()),
		ActiveSessions: int(s.activeSessions.Load()),
		BuffersPlayed:  s.played.Load(),
		Driver:         s.lastDriver,
		Spec:           s.lastSpec,
	}
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	s.logger.Info("bridge host starting", "name", s.config.Name, "port", s.config.Port)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn("failed to start mdns advertisement", "err", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info("bridge host shutting down")
	case err := <-errChan:
		s.logger.Error("http server error", "err", err)
		serverErr = err
	}

	s.cancel()
	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "err", err)
	}

	s.wg.Wait()
	s.logger.Info("bridge host stopped")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "err", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	sess := &session{
		server: s,
		conn:   conn,
		logger: s.logger.With("remote", r.RemoteAddr),
	}
	sess.run()
}

// session is one connected plugin
type session struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	acquired bool
	stream   *driver.Stream
	decoder  *frameDecoder
	sequence uint64
}

func (sess *session) run() {
	s := sess.server
	s.sessions.Add(1)
	s.activeSessions.Add(1)

	defer func() {
		sess.closeStream()
		sess.conn.Close()
		s.activeSessions.Add(-1)
		sess.logger.Info("bridge session ended", "buffers", sess.sequence)
	}()

	// Unblock the reader on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			sess.conn.Close()
		case <-done:
		}
	}()

	sess.logger.Info("bridge session started")

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				s.ctx.Err() == nil {
				sess.logger.Warn("read error", "err", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			err = sess.handleControl(data)
		case websocket.BinaryMessage:
			err = sess.handleBuffer(data)
		}
		if err != nil {
			sess.logger.Error("session error", "err", err)
			sess.sendError(err)
		}
	}
}

func (sess *session) send(msgType string, payload interface{}) error {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}
	sess.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return sess.conn.WriteMessage(websocket.TextMessage, data)
}

func (sess *session) sendError(err error) {
	if werr := sess.send(MsgError, ErrorMessage{Message: err.Error()}); werr != nil {
		sess.logger.Warn("failed to send error", "err", werr)
	}
}

func (sess *session) handleControl(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}

	switch env.Type {
	case MsgDeviceAcquire:
		var req DeviceAcquire
		if err := env.decode(&req); err != nil {
			return err
		}
		return sess.acquire(req)
	case MsgContextInitialize:
		var req ContextInitialize
		if err := env.decode(&req); err != nil {
			return err
		}
		return sess.initialize(req)
	case MsgContextDestroy:
		sess.closeStream()
		return nil
	default:
		return fmt.Errorf("unknown message type: %s", env.Type)
	}
}

func (sess *session) acquire(req DeviceAcquire) error {
	if pepper.DeviceID(req.Device) != pepper.PepperAudioDevice {
		return fmt.Errorf("unknown device %d", req.Device)
	}

	sess.acquired = true
	sess.logger = sess.logger.With("instance", req.Instance)
	sess.logger.Info("device acquired", "client", req.Name, "version", req.Version)

	return sess.send(MsgDeviceAcquired, DeviceAcquired{
		Instance: req.Instance,
		Device:   req.Device,
		HostName: sess.server.config.Name,
	})
}

func (sess *session) initialize(req ContextInitialize) error {
	if !sess.acquired {
		return errors.New("context initialize before device acquire")
	}

	reply := ContextInitialized{Result: int(pepper.ResultOK)}

	// Local backends may be exclusive, so the old stream goes first.
	sess.closeStream()
	sess.sequence = 0

	stream, err := sess.openStream(req)
	if err != nil {
		sess.logger.Error("failed to open local stream", "err", err)
		reply.Result = int(pepper.ResultGeneric)
		if errors.Is(err, audio.ErrInvalidChannels) || errors.Is(err, audio.ErrInvalidFrequency) ||
			errors.Is(err, audio.ErrInvalidSamples) {
			reply.Result = int(pepper.ResultInvalidParam)
		}
		return sess.send(MsgContextInitialized, reply)
	}

	sess.stream = stream
	sess.decoder = newFrameDecoder(req.SampleRate, req.Channels)

	spec := stream.Spec()
	reply.BufferSize = spec.Size
	reply.Codec = negotiateCodec(req.Codec, req.SampleRate, req.SampleFrameCount)
	reply.Driver = stream.Driver()

	s := sess.server
	s.statsMu.Lock()
	s.lastDriver = stream.Driver()
	s.lastSpec = spec.String()
	s.statsMu.Unlock()

	return sess.send(MsgContextInitialized, reply)
}

func (sess *session) openStream(req ContextInitialize) (*driver.Stream, error) {
	if pepper.SampleType(req.SampleType) != pepper.SampleInt16 {
		return nil, fmt.Errorf("unsupported sample type %d", req.SampleType)
	}

	s := sess.server
	if s.config.Registry == nil {
		return nil, driver.ErrNoDriver
	}

	bootstrap, err := s.config.Registry.Select(s.config.Driver, s.config.Getenv)
	if err != nil {
		return nil, err
	}

	spec := audio.Spec{
		Freq:     req.SampleRate,
		Format:   audio.S16LSB,
		Channels: req.Channels,
		Samples:  req.SampleFrameCount,
	}
	return driver.OpenStream(s.ctx, bootstrap, spec)
}

func (sess *session) handleBuffer(frame []byte) error {
	if sess.stream == nil {
		return errors.New("buffer flushed without an initialized context")
	}

	pcm, err := sess.decoder.Decode(frame)
	if err != nil {
		return fmt.Errorf("decode buffer: %w", err)
	}

	fill := func(buf []byte) (int, error) {
		return copy(buf, pcm), nil
	}

	reply := ContextFlushed{Result: int(pepper.ResultOK)}
	if err := sess.stream.PlayBuffer(sess.server.ctx, fill); err != nil {
		sess.logger.Error("local play failed", "err", err)
		reply.Result = int(pepper.ResultGeneric)
	} else {
		sess.server.played.Add(1)
	}

	sess.sequence++
	reply.Sequence = sess.sequence
	return sess.send(MsgContextFlushed, reply)
}

func (sess *session) closeStream() {
	if sess.stream != nil {
		sess.stream.Close()
		sess.stream = nil
	}
	if sess.decoder != nil {
		sess.decoder.Close()
		sess.decoder = nil
	}
}
