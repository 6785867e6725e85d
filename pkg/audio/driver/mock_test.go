package driver

import (
	"context"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio"
)

// mockBootstrap is a driver entry whose availability and devices are
// controlled by the test.
type mockBootstrap struct {
	name      string
	available bool
	explicit  bool // only available when requested by name
	openErr   error
	devices   []*mockDevice
}

func (m *mockBootstrap) Name() string        { return m.name }
func (m *mockBootstrap) Description() string { return "mock " + m.name }

func (m *mockBootstrap) Available(getenv func(string) string) bool {
	if m.explicit {
		return Explicit(getenv, m.name)
	}
	return m.available && Requested(getenv, m.name)
}

func (m *mockBootstrap) CreateDevice() (Device, error) {
	d := &mockDevice{openErr: m.openErr}
	m.devices = append(m.devices, d)
	return d, nil
}

// mockDevice records the calls made on it and keeps every played buffer.
type mockDevice struct {
	openErr error
	spec    audio.Spec
	mixbuf  []byte
	calls   []string
	played  [][]byte
	deleted bool
}

func (d *mockDevice) Open(ctx context.Context, spec *audio.Spec) error {
	d.calls = append(d.calls, "open")
	if d.openErr != nil {
		return d.openErr
	}
	d.spec = *spec
	d.mixbuf = make([]byte, spec.Size)
	return nil
}

func (d *mockDevice) Wait(ctx context.Context) error {
	d.calls = append(d.calls, "wait")
	return ctx.Err()
}

func (d *mockDevice) Play(ctx context.Context) error {
	d.calls = append(d.calls, "play")
	d.played = append(d.played, append([]byte(nil), d.mixbuf...))
	return nil
}

func (d *mockDevice) MixBuffer() []byte {
	d.calls = append(d.calls, "buf")
	return d.mixbuf
}

func (d *mockDevice) Close() {
	d.calls = append(d.calls, "close")
	d.mixbuf = nil
}

func (d *mockDevice) Delete() {
	d.calls = append(d.calls, "delete")
	d.deleted = true
}

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}
