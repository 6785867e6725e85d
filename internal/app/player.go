// ABOUTME: Main player application orchestration
// ABOUTME: Connects to a bridge host, picks a driver and pumps a source into the stream
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/internal/config"
	"github.com/Resonate-Protocol/pepperaudio/internal/discovery"
	"github.com/Resonate-Protocol/pepperaudio/internal/hostbridge"
	"github.com/Resonate-Protocol/pepperaudio/internal/ui"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/decode"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/disk"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/dummy"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/malgoaudio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/otoaudio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/pepper"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/encode"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/resample"
)

const (
	statusInterval = 500 * time.Millisecond

	// discoveryTimeout bounds the mDNS search for a bridge host
	discoveryTimeout = 10 * time.Second
)

// Config holds player configuration
type Config struct {
	Settings *config.Config

	// Source is the file to play; empty plays a test tone
	Source string
	Name   string

	// Status receives progress updates. May be nil.
	Status func(ui.StatusMsg)

	Getenv func(string) string

	// Registry replaces the default driver table when set
	Registry *driver.Registry
}

// Stats is a snapshot of playback progress
type Stats struct {
	State   string
	Driver  string
	Spec    audio.Spec
	Played  int64
	Elapsed time.Duration
}

// Player represents the main player application
type Player struct {
	config   Config
	settings *config.Config
	logger   *slog.Logger

	bridge *hostbridge.Client
	oto    *otoaudio.Driver

	volume atomic.Int32
	muted  atomic.Bool

	mu          sync.Mutex
	playerState string
	stream      *driver.Stream
	cancel      context.CancelFunc
}

// New creates a new player
func New(cfg Config) (*Player, error) {
	if cfg.Settings == nil {
		return nil, errors.New("player settings missing")
	}
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}

	p := &Player{
		config:      cfg,
		settings:    cfg.Settings,
		logger:      slog.Default().With("player", cfg.Name),
		oto:         otoaudio.New(),
		playerState: ui.StateIdle,
	}
	p.volume.Store(100)
	return p, nil
}

// Connect dials the bridge host when one is configured. With the Pepper
// driver requested and no address, the host is found over mDNS.
func (p *Player) Connect(ctx context.Context) error {
	addr := p.settings.BridgeAddr
	if addr == "" {
		if p.settings.Driver != pepper.DriverName {
			return nil
		}

		p.logger.Info("searching for a bridge host")
		dctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
		host, err := discovery.Discover(dctx)
		cancel()
		if err != nil {
			return err
		}
		addr = host.Addr()
		p.logger.Info("discovered bridge host", "name", host.Name, "addr", addr)
	}

	client, err := hostbridge.Dial(ctx, hostbridge.ClientConfig{
		Addr:  addr,
		Name:  p.config.Name,
		Codec: p.settings.BridgeCodec,
	})
	if err != nil {
		return fmt.Errorf("connect to bridge host: %w", err)
	}
	p.bridge = client

	p.report(ui.StatusMsg{HostName: addr})
	return nil
}

// Registry returns the driver table in preference order
func (p *Player) Registry() *driver.Registry {
	if p.config.Registry != nil {
		return p.config.Registry
	}

	var session pepper.Session
	if p.bridge != nil {
		session = p.bridge.Session()
	}

	s := p.settings
	return driver.NewRegistry(
		pepper.New(session, pepper.Options{
			BlockingPush: s.BlockingPush,
			BufferWait:   s.BufferWait,
		}),
		p.oto,
		malgoaudio.New(),
		disk.New(disk.Options{Path: s.DiskPath}),
		dummy.New(dummy.Options{}),
	)
}

// Play streams the source to the selected driver until the source ends,
// ctx is canceled or Stop is called.
func (p *Player) Play(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.setState(ui.StateOpening)

	err := p.play(ctx)
	switch {
	case err == nil:
		p.setState(ui.StateFinished)
	case errors.Is(err, context.Canceled):
		p.setState(ui.StateIdle)
		err = nil
	default:
		p.setState(ui.StateFailed)
		p.report(ui.StatusMsg{Err: err})
	}
	return err
}

func (p *Player) play(ctx context.Context) error {
	src, err := decode.Open(p.config.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	p.report(ui.StatusMsg{
		Source:     sourceName(p.config.Source),
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
	})

	bootstrap, err := p.Registry().Select(p.settings.Driver, p.config.Getenv)
	if err != nil {
		return err
	}

	spec := p.settings.Spec(src.SampleRate(), src.Channels())
	if spec.Freq != src.SampleRate() {
		p.logger.Info("resampling source", "from", src.SampleRate(), "to", spec.Freq)
	}
	rs := resample.NewSource(src, spec.Freq)

	writer, err := encode.NewWriter(spec.Format)
	if err != nil {
		return err
	}

	stream, err := driver.OpenStream(ctx, bootstrap, spec)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.stream = nil
		p.mu.Unlock()
	}()

	spec = stream.Spec()
	p.report(ui.StatusMsg{Driver: stream.Driver(), Spec: spec.String()})
	p.setState(ui.StatePlaying)

	pump := &pump{
		src:         rs,
		writer:      writer,
		srcChannels: rs.Channels(),
		dstChannels: spec.Channels,
		gain:        p.softwareGain(stream.Driver()),
	}

	done := make(chan struct{})
	defer close(done)
	go p.statusLoop(stream, done)

	if err := stream.Run(ctx, pump.fill); err != nil {
		return err
	}
	p.reportProgress(stream)
	return nil
}

// softwareGain returns the volume applied to samples before they reach the
// driver. oto scales volume itself.
func (p *Player) softwareGain(driverName string) func() (int, bool) {
	if driverName == otoaudio.DriverName {
		p.oto.SetVolume(int(p.volume.Load()))
		p.oto.SetMuted(p.muted.Load())
		return nil
	}
	return func() (int, bool) {
		return int(p.volume.Load()), p.muted.Load()
	}
}

// SetVolume sets playback volume (0-100)
func (p *Player) SetVolume(volume int) {
	volume = max(0, min(volume, 100))
	p.volume.Store(int32(volume))
	p.oto.SetVolume(volume)
	p.report(ui.StatusMsg{Volume: volume})
}

// SetMuted mutes or unmutes playback
func (p *Player) SetMuted(muted bool) {
	p.muted.Store(muted)
	p.oto.SetMuted(muted)
}

// Stats returns current playback progress
func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{State: p.playerState}
	if p.stream != nil {
		stats.Driver = p.stream.Driver()
		stats.Spec = p.stream.Spec()
		stats.Played = p.stream.Played()
		stats.Elapsed = time.Duration(stats.Played) * stats.Spec.BufferDuration()
	}
	return stats
}

func (p *Player) statusLoop(stream *driver.Stream, done <-chan struct{}) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reportProgress(stream)
		case <-done:
			return
		}
	}
}

func (p *Player) reportProgress(stream *driver.Stream) {
	played := stream.Played()
	if played == 0 {
		return
	}
	p.report(ui.StatusMsg{
		Played:     played,
		Elapsed:    time.Duration(played) * stream.Spec().BufferDuration(),
		Goroutines: runtime.NumGoroutine(),
	})
}

func (p *Player) setState(state string) {
	p.mu.Lock()
	p.playerState = state
	p.mu.Unlock()

	p.logger.Debug("player state", "state", state)
	p.report(ui.StatusMsg{State: state})
}

func (p *Player) report(msg ui.StatusMsg) {
	if p.config.Status != nil {
		p.config.Status(msg)
	}
}

// Stop stops playback and disconnects from the bridge host
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p.bridge != nil {
		p.bridge.Close()
	}
}

func sourceName(path string) string {
	if path == "" {
		return fmt.Sprintf("%.0fHz test tone", decode.DefaultToneFrequency)
	}
	return path
}

// pump reads the source into mixing buffers
type pump struct {
	src         decode.Source
	writer      *encode.Writer
	srcChannels int
	dstChannels int
	gain        func() (int, bool)

	in  []int16
	out []int16
}

func (p *pump) fill(buf []byte) (int, error) {
	frames := p.writer.Samples(len(buf)) / p.dstChannels
	need := frames * p.srcChannels
	if cap(p.in) < need {
		p.in = make([]int16, need)
	}
	in := p.in[:need]

	n := 0
	var err error
	for n < need {
		var m int
		m, err = p.src.Read(in[n:])
		n += m
		if err != nil {
			break
		}
		if m == 0 {
			break
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}

	got := n / p.srcChannels
	p.out = remix(p.out[:0], in[:got*p.srcChannels], p.srcChannels, p.dstChannels)
	if p.gain != nil {
		volume, muted := p.gain()
		audio.ApplyVolume(p.out, volume, muted)
	}

	return p.writer.Write(buf, p.out), err
}

// remix converts interleaved samples between mono and stereo
func remix(dst, src []int16, srcChannels, dstChannels int) []int16 {
	switch {
	case srcChannels == dstChannels:
		return append(dst, src...)
	case srcChannels == 1 && dstChannels == 2:
		for _, s := range src {
			dst = append(dst, s, s)
		}
	case srcChannels == 2 && dstChannels == 1:
		for i := 0; i+1 < len(src); i += 2 {
			dst = append(dst, int16((int32(src[i])+int32(src[i+1]))/2))
		}
	default:
		// Keep the first dstChannels of each frame, padding with silence
		for i := 0; i+srcChannels <= len(src); i += srcChannels {
			for c := 0; c < dstChannels; c++ {
				if c < srcChannels {
					dst = append(dst, src[i+c])
				} else {
					dst = append(dst, 0)
				}
			}
		}
	}
	return dst
}
