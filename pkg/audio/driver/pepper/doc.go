// ABOUTME: Pepper driver package documentation
// ABOUTME: Describes the host handshake and blocking push model
// Package pepper is an output driver for a sandboxed browser-plugin host
// ("Pepper") audio device.
//
// The host owns the real audio hardware. The driver acquires the host's
// audio device, asks it to initialize an output context and then pushes
// one mixing buffer at a time: Play copies the buffer into the host's
// output buffer and flushes it, blocking until the host takes it.
//
// Context initialization may only run on the host's plugin thread while
// Open runs on the audio goroutine, so Open posts the request through
// Host.PluginThreadAsyncCall and waits for a single-use result channel.
//
// Hosts that do not implement blocking push mode cannot run this driver;
// it reports itself unavailable unless Options.BlockingPush is set.
//
// Host contract violations (no device, a format other than S16LSB, a
// failed context initialization) panic with a *driver.FatalError.
package pepper
