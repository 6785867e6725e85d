// ABOUTME: Malgo driver package documentation and shared definitions
// ABOUTME: Names the driver and its errors for both cgo and noaudio builds
// Package malgoaudio adapts miniaudio's callback-driven playback device to
// the push model: Play copies the mixing buffer into a ring buffer and Wait
// blocks until the device callback has drained enough of it.
//
// Builds without cgo, or with the noaudio tag, get a driver that is never
// available.
package malgoaudio

import "errors"

const DriverName = "malgo"

var ErrUnsupportedFormat = errors.New("malgo supports U8, S16LSB, S32LSB and F32LSB")
