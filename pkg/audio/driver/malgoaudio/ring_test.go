// ABOUTME: Tests for the playback ring buffer
// ABOUTME: Covers wraparound, underrun silence and waiting for space
package malgoaudio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestRingBufferWrap(t *testing.T) {
	rb := NewRingBuffer(6, 0)

	if n := rb.Write([]byte{1, 2, 3, 4}); n != 4 {
		t.Fatalf("expected 4 written, got %d", n)
	}

	out := make([]byte, 3)
	rb.Read(out)
	if !bytes.Equal(out, []byte{1, 2, 3}) {
		t.Fatalf("unexpected read %v", out)
	}

	if n := rb.Write([]byte{5, 6, 7, 8, 9, 10}); n != 5 {
		t.Fatalf("expected 5 written, got %d", n)
	}
	if rb.Free() != 0 {
		t.Errorf("expected full buffer, %d free", rb.Free())
	}

	out = make([]byte, 6)
	if n := rb.Read(out); n != 6 {
		t.Fatalf("expected 6 read, got %d", n)
	}
	if !bytes.Equal(out, []byte{4, 5, 6, 7, 8, 9}) {
		t.Errorf("unexpected read %v", out)
	}
}

func TestRingBufferUnderrunSilence(t *testing.T) {
	rb := NewRingBuffer(8, 0x80)
	rb.Write([]byte{1, 2})

	out := make([]byte, 4)
	if n := rb.Read(out); n != 2 {
		t.Fatalf("expected 2 read, got %d", n)
	}
	if !bytes.Equal(out, []byte{1, 2, 0x80, 0x80}) {
		t.Errorf("expected silence padding, got %v", out)
	}
}

func TestRingBufferWaitFree(t *testing.T) {
	rb := NewRingBuffer(4, 0)
	rb.Write([]byte{1, 2, 3, 4})

	go func() {
		time.Sleep(10 * time.Millisecond)
		rb.Read(make([]byte, 2))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rb.WaitFree(ctx, 2); err != nil {
		t.Fatalf("WaitFree failed: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rb.WaitFree(ctx, 4); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
