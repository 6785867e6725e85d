// ABOUTME: Stream runner driving a Device through its lifecycle
// ABOUTME: Implements the open -> {wait, fill, play}* -> close -> delete order
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
)

// FillFunc writes mixed audio into buf and returns the number of bytes
// written. Returning io.EOF ends the stream after the buffer is played.
type FillFunc func(buf []byte) (int, error)

// Stream is an opened device plus the spec it was opened with.
type Stream struct {
	name   string
	dev    Device
	spec   audio.Spec
	logger *slog.Logger

	played    atomic.Int64
	closeOnce sync.Once
}

// OpenStream creates a device from d and opens it with spec. The spec's
// derived fields are recalculated before the device sees it.
func OpenStream(ctx context.Context, d Bootstrap, spec audio.Spec) (*Stream, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	spec.Calculate()

	logger := slog.Default().With("driver", d.Name())

	dev, err := d.CreateDevice()
	if err != nil {
		logger.Error("failed to create device", "err", err)
		return nil, fmt.Errorf("create %s device: %w", d.Name(), err)
	}

	if err := dev.Open(ctx, &spec); err != nil {
		dev.Delete()
		logger.Error("failed to open device", "spec", spec.String(), "err", err)
		return nil, fmt.Errorf("open %s device: %w", d.Name(), err)
	}

	logger.Info("audio stream opened", "spec", spec.String())

	return &Stream{
		name:   d.Name(),
		dev:    dev,
		spec:   spec,
		logger: logger,
	}, nil
}

// Driver returns the name of the driver backing the stream
func (s *Stream) Driver() string {
	return s.name
}

// Spec returns the spec the device was opened with
func (s *Stream) Spec() audio.Spec {
	return s.spec
}

// Played returns the number of buffers submitted so far
func (s *Stream) Played() int64 {
	return s.played.Load()
}

// PlayBuffer runs one cycle: wait for the device, fill the mixing buffer and
// play it. Unfilled bytes are set to silence. It returns io.EOF once fill
// reports the end of the audio; a final partial buffer is still played.
func (s *Stream) PlayBuffer(ctx context.Context, fill FillFunc) error {
	if err := s.dev.Wait(ctx); err != nil {
		return err
	}

	buf := s.dev.MixBuffer()
	if buf == nil {
		return ErrNotOpen
	}

	n, fillErr := fill(buf)
	if fillErr != nil && !errors.Is(fillErr, io.EOF) {
		return fmt.Errorf("fill: %w", fillErr)
	}
	if n == 0 && fillErr != nil {
		return io.EOF
	}
	for i := n; i < len(buf); i++ {
		buf[i] = s.spec.Silence
	}

	if err := s.dev.Play(ctx); err != nil {
		return err
	}
	s.played.Add(1)

	return fillErr
}

// Run cycles PlayBuffer until fill reports io.EOF (returns nil), the context
// ends, or the device fails.
func (s *Stream) Run(ctx context.Context, fill FillFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.PlayBuffer(ctx, fill)
		if errors.Is(err, io.EOF) {
			s.logger.Debug("stream drained", "buffers", s.Played())
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close closes and deletes the device. Later calls are no-ops.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.dev.Close()
		s.dev.Delete()
		s.logger.Info("audio stream closed", "buffers", s.Played())
	})
}
