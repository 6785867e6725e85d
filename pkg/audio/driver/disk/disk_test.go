// ABOUTME: Tests for the disk output driver
// ABOUTME: Writes streams to temporary WAV files and reads them back
package disk

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestAvailableOnlyWhenNamed(t *testing.T) {
	d := New(Options{})

	if d.Available(func(string) string { return "" }) {
		t.Error("disk should not be available by default")
	}
	if !d.Available(func(string) string { return DriverName }) {
		t.Error("disk should be available when named")
	}
}

func TestDefaultPath(t *testing.T) {
	if New(Options{}).opts.Path != DefaultPath {
		t.Errorf("expected default path %q", DefaultPath)
	}
}

func TestWritesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	d := New(Options{Path: path, Delay: -1})

	stream, err := driver.OpenStream(context.Background(), d,
		audio.Spec{Freq: 8000, Format: audio.S16LSB, Channels: 2, Samples: 4})
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}

	want := []int{100, -100, 200, -200, 300, -300, 400, -400}
	fill := func(buf []byte) (int, error) {
		for i, v := range want {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v)))
		}
		return len(buf), nil
	}

	for i := 0; i < 2; i++ {
		if err := stream.PlayBuffer(context.Background(), fill); err != nil {
			t.Fatalf("PlayBuffer failed: %v", err)
		}
	}
	stream.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("output is not a valid wav file")
	}

	buf := &goaudio.IntBuffer{Data: make([]int, 32)}
	n, err := dec.PCMBuffer(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("PCMBuffer failed: %v", err)
	}
	if n != 16 {
		t.Fatalf("expected 16 samples, got %d", n)
	}
	if dec.SampleRate != 8000 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Errorf("unexpected header: %dHz %dch %dbit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	for i := 0; i < n; i++ {
		if buf.Data[i] != want[i%len(want)] {
			t.Errorf("sample %d = %d, want %d", i, buf.Data[i], want[i%len(want)])
		}
	}
}

func TestRejectsUnsupportedFormat(t *testing.T) {
	d := New(Options{Path: filepath.Join(t.TempDir(), "out.wav"), Delay: -1})
	dev, _ := d.CreateDevice()

	spec := audio.Spec{Freq: 8000, Format: audio.F32LSB, Channels: 1, Samples: 4}
	spec.Calculate()

	if err := dev.Open(context.Background(), &spec); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	d := New(Options{Path: filepath.Join(t.TempDir(), "out.wav"), Delay: -1})
	dev, _ := d.CreateDevice()

	spec := audio.Spec{Freq: 8000, Format: audio.U8, Channels: 1, Samples: 4}
	spec.Calculate()
	if err := dev.Open(context.Background(), &spec); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	dev.Close()
	dev.Close()

	if err := dev.Play(context.Background()); !errors.Is(err, driver.ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}
