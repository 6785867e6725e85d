// ABOUTME: Output driver contract
// ABOUTME: Bootstrap and Device interfaces every audio backend implements
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
)

// EnvDriver is the environment variable that forces a driver by name.
const EnvDriver = "AUDIODRIVER"

var (
	ErrNoDriver          = errors.New("no audio driver available")
	ErrDriverUnavailable = errors.New("audio driver not available")
	ErrDuplicateDriver   = errors.New("audio driver already registered")
	ErrNotOpen           = errors.New("audio device not open")
)

// Bootstrap is one entry of the driver table: it names a backend, checks
// whether it can run in this process and creates devices for it.
type Bootstrap interface {
	// Name is the short tag used for selection (e.g. "nacl", "disk")
	Name() string

	// Description is a human-readable summary
	Description() string

	// Available reports whether the backend can be used. getenv is the
	// environment lookup used to honour an AUDIODRIVER override.
	Available(getenv func(string) string) bool

	// CreateDevice allocates a device that is ready to be opened
	CreateDevice() (Device, error)
}

// Device is one output stream of a backend.
//
// The audio layer drives it in a fixed order:
//
//	Open -> { Wait -> MixBuffer -> Play }* -> Close -> Delete
//
// All calls come from the same goroutine.
type Device interface {
	// Open negotiates the stream with the backend and allocates the
	// mixing buffer. spec.Size and spec.Silence must be calculated.
	Open(ctx context.Context, spec *audio.Spec) error

	// Wait blocks until the backend can accept another full buffer
	Wait(ctx context.Context) error

	// Play submits the mixing buffer
	Play(ctx context.Context) error

	// MixBuffer returns the buffer the audio layer mixes into
	MixBuffer() []byte

	// Close releases the mixing buffer. Safe to call more than once.
	Close()

	// Delete releases the device itself
	Delete()
}

// Requested reports whether getenv leaves the driver choice open or
// selects name explicitly.
func Requested(getenv func(string) string, name string) bool {
	if getenv == nil {
		return true
	}
	v := getenv(EnvDriver)
	return v == "" || v == name
}

// Explicit reports whether getenv selects exactly name.
func Explicit(getenv func(string) string, name string) bool {
	return getenv != nil && getenv(EnvDriver) == name
}

// FatalError reports a host contract violation a driver cannot recover from.
// Drivers panic with it through Abort; the audio layer never recovers it.
type FatalError struct {
	Driver string
	Op     string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s: fatal: %v", e.Driver, e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Abort panics with a *FatalError.
func Abort(driverName, op string, err error) {
	panic(&FatalError{Driver: driverName, Op: op, Err: err})
}
