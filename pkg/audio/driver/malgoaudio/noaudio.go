//go:build !cgo || noaudio

// ABOUTME: Malgo driver placeholder for cgo-less and noaudio builds
// ABOUTME: Registers under the same name but never reports itself available
package malgoaudio

import (
	"errors"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/driver"
)

var errAudioDisabledCompilation = errors.New("audio was disabled during compilation")

type Driver struct{}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string                       { return DriverName }
func (d *Driver) Description() string                { return "miniaudio playback device (disabled)" }
func (d *Driver) Available(func(string) string) bool { return false }

func (d *Driver) CreateDevice() (driver.Device, error) {
	return nil, errAudioDisabledCompilation
}
