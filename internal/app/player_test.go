// ABOUTME: Tests for player application orchestration
// ABOUTME: Plays sources through the disk, dummy and bridged pepper drivers
package app

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/pepperaudio/internal/config"
	"github.com/Resonate-Protocol/pepperaudio/internal/hostbridge"
	"github.com/Resonate-Protocol/pepperaudio/internal/ui"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/decode"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/dummy"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver/pepper"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/encode"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func noEnv(string) string { return "" }

func settings(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromViper(config.New())
	if err != nil {
		t.Fatal(err)
	}
	cfg.Driver = ""
	cfg.BridgeAddr = ""
	return cfg
}

// writePCM writes frames of a stereo ramp as a 48kHz raw PCM file
func writePCM(t *testing.T, frames int) string {
	t.Helper()

	data := make([]byte, frames*4)
	for i := 0; i < frames*2; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(i%1000)))
	}

	path := filepath.Join(t.TempDir(), "ramp.pcm")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

type statusRecorder struct {
	mu   sync.Mutex
	msgs []ui.StatusMsg
}

func (r *statusRecorder) record(msg ui.StatusMsg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *statusRecorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var states []string
	for _, m := range r.msgs {
		if m.State != "" {
			states = append(states, m.State)
		}
	}
	return states
}

func TestNewRequiresSettings(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without settings")
	}
}

func TestNewPlayer(t *testing.T) {
	p, err := New(Config{Settings: settings(t), Name: "test-player"})
	if err != nil {
		t.Fatal(err)
	}

	stats := p.Stats()
	if stats.State != ui.StateIdle {
		t.Errorf("expected initial state idle, got %q", stats.State)
	}
	if stats.Played != 0 || stats.Driver != "" {
		t.Errorf("unexpected initial stats %+v", stats)
	}
}

func TestConnectWithoutBridge(t *testing.T) {
	p, err := New(Config{Settings: settings(t)})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Connect(context.Background()); err != nil {
		t.Errorf("Connect without bridge should be a no-op: %v", err)
	}
	if p.bridge != nil {
		t.Error("expected no bridge client")
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	p, err := New(Config{Settings: settings(t)})
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, d := range p.Registry().Drivers() {
		names = append(names, d.Name())
	}

	want := "nacl,oto,malgo,disk,dummy"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("expected drivers %s, got %s", want, got)
	}
}

func TestPlayToDisk(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.wav")
	cfg := settings(t)
	cfg.Driver = "disk"
	cfg.DiskPath = out
	cfg.Samples = 1024

	rec := &statusRecorder{}
	p, err := New(Config{
		Settings: cfg,
		Source:   writePCM(t, 4800),
		Status:   rec.record,
		Getenv:   noEnv,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	states := rec.states()
	if len(states) == 0 || states[len(states)-1] != ui.StateFinished {
		t.Errorf("expected to finish, got states %v", states)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("output is not a valid wav file")
	}
	if dec.SampleRate != 48000 || dec.NumChans != 2 {
		t.Errorf("unexpected wav format %dHz %dch", dec.SampleRate, dec.NumChans)
	}

	// 4800 frames round up to five 1024-frame buffers
	buf := &goaudio.IntBuffer{Data: make([]int, 5*1024*2+16)}
	n, err := dec.PCMBuffer(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("PCMBuffer failed: %v", err)
	}
	if n != 5*1024*2 {
		t.Fatalf("expected %d samples, got %d", 5*1024*2, n)
	}
	for i := 0; i < 10; i++ {
		if buf.Data[i] != i {
			t.Errorf("sample %d: got %d", i, buf.Data[i])
		}
	}
	for i := 4800 * 2; i < n; i++ {
		if buf.Data[i] != 0 {
			t.Fatalf("expected silence padding at %d, got %d", i, buf.Data[i])
		}
	}
}

func TestPlayResampledMono(t *testing.T) {
	drv := dummy.New(dummy.Options{Delay: -1})
	cfg := settings(t)
	cfg.Driver = dummy.DriverName
	cfg.Frequency = 24000
	cfg.Channels = 1
	cfg.Samples = 256

	p, err := New(Config{
		Settings: cfg,
		Source:   writePCM(t, 4800),
		Getenv:   noEnv,
		Registry: driver.NewRegistry(drv),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	// About 2400 output frames at 24kHz
	if played := drv.Played(); played < 9 || played > 10 {
		t.Errorf("expected 9-10 buffers, got %d", played)
	}
	if p.Stats().State != ui.StateFinished {
		t.Errorf("expected finished, got %q", p.Stats().State)
	}
}

func TestPlayUnknownDriver(t *testing.T) {
	cfg := settings(t)
	cfg.Driver = "nope"

	rec := &statusRecorder{}
	p, err := New(Config{Settings: cfg, Source: writePCM(t, 100), Getenv: noEnv, Status: rec.record})
	if err != nil {
		t.Fatal(err)
	}

	err = p.Play(context.Background())
	if !errors.Is(err, driver.ErrNoDriver) {
		t.Errorf("expected ErrNoDriver, got %v", err)
	}
	if p.Stats().State != ui.StateFailed {
		t.Errorf("expected failed, got %q", p.Stats().State)
	}
}

func TestStopEndsTone(t *testing.T) {
	drv := dummy.New(dummy.Options{Delay: time.Millisecond})
	cfg := settings(t)
	cfg.Driver = dummy.DriverName
	cfg.Samples = 128

	p, err := New(Config{Settings: cfg, Getenv: noEnv, Registry: driver.NewRegistry(drv)})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background()) }()

	deadline := time.Now().Add(5 * time.Second)
	for p.Stats().Played < 3 {
		if time.Now().After(deadline) {
			t.Fatal("tone never started playing")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Play did not return after Stop")
	}
	if p.Stats().State != ui.StateIdle {
		t.Errorf("expected idle after stop, got %q", p.Stats().State)
	}
}

func TestPlayThroughBridge(t *testing.T) {
	hostDriver := dummy.New(dummy.Options{Delay: -1})
	srv := hostbridge.NewServer(hostbridge.ServerConfig{
		Name:     "test host",
		Driver:   dummy.DriverName,
		Registry: driver.NewRegistry(hostDriver),
		Getenv:   noEnv,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := settings(t)
	cfg.BridgeAddr = strings.TrimPrefix(ts.URL, "http://")
	cfg.Driver = pepper.DriverName
	cfg.BlockingPush = true
	cfg.Samples = 1024

	rec := &statusRecorder{}
	p, err := New(Config{
		Settings: cfg,
		Source:   writePCM(t, 4800),
		Name:     "bridge-test",
		Getenv:   noEnv,
		Status:   rec.record,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if played := hostDriver.Played(); played != 5 {
		t.Errorf("expected host to play 5 buffers, got %d", played)
	}
	if stats := srv.Stats(); stats.BuffersPlayed != 5 {
		t.Errorf("expected server stats 5 buffers, got %+v", stats)
	}
}

func TestPumpAppliesVolume(t *testing.T) {
	data := make([]byte, 64)
	for i := 0; i < 32; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], 1000)
	}
	writer, err := encode.NewWriter(audio.S16LSB)
	if err != nil {
		t.Fatal(err)
	}

	pump := &pump{
		src:         decode.NewPCMSource(bytes.NewReader(data), 48000, 2),
		writer:      writer,
		srcChannels: 2,
		dstChannels: 2,
		gain:        func() (int, bool) { return 50, false },
	}

	buf := make([]byte, 32)
	n, err := pump.fill(buf)
	if err != nil {
		t.Fatalf("fill failed: %v", err)
	}
	if n != 32 {
		t.Fatalf("expected 32 bytes, got %d", n)
	}
	if got := int16(binary.LittleEndian.Uint16(buf)); got != 500 {
		t.Errorf("expected half volume sample 500, got %d", got)
	}

	pump.gain = func() (int, bool) { return 100, true }
	n, _ = pump.fill(buf)
	if n != 32 || !bytes.Equal(buf, make([]byte, 32)) {
		t.Errorf("expected muted silence, got %v", buf)
	}

	if n, err := pump.fill(buf); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF once drained, got %d %v", n, err)
	}
}

func TestRemix(t *testing.T) {
	tests := []struct {
		name     string
		src      []int16
		from, to int
		want     []int16
	}{
		{"same", []int16{1, 2, 3, 4}, 2, 2, []int16{1, 2, 3, 4}},
		{"mono to stereo", []int16{1, 2}, 1, 2, []int16{1, 1, 2, 2}},
		{"stereo to mono", []int16{10, 20, -4, 4}, 2, 1, []int16{15, 0}},
		{"extreme values", []int16{32767, 32767}, 2, 1, []int16{32767}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := remix(nil, tt.src, tt.from, tt.to)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestSetVolumeClamps(t *testing.T) {
	p, err := New(Config{Settings: settings(t)})
	if err != nil {
		t.Fatal(err)
	}

	p.SetVolume(150)
	if vol, _ := p.softwareGain(dummy.DriverName)(); vol != 100 {
		t.Errorf("expected volume clamped to 100, got %d", vol)
	}

	p.SetVolume(-5)
	p.SetMuted(true)
	vol, muted := p.softwareGain(dummy.DriverName)()
	if vol != 0 || !muted {
		t.Errorf("expected 0 muted, got %d %v", vol, muted)
	}

	if p.softwareGain("oto") != nil {
		t.Error("oto should scale volume itself")
	}
	if p.oto.Volume() != 0 || !p.oto.IsMuted() {
		t.Error("expected oto driver to track volume")
	}
}
