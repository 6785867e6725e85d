// ABOUTME: Output driver package
// ABOUTME: Driver contract, registry and stream runner
// Package driver defines the contract between the audio layer and its
// output backends.
//
// A backend registers a Bootstrap (name, description, availability check
// and device factory). The Registry picks one, honouring the AUDIODRIVER
// environment variable, and a Stream drives the resulting Device:
//
//	reg := driver.NewRegistry(dummy.New(), disk.New(disk.Options{}))
//	b, err := reg.Select("", os.Getenv)
//	stream, err := driver.OpenStream(ctx, b, audio.Spec{
//	    Freq: 48000, Format: audio.S16LSB, Channels: 2, Samples: 1024,
//	})
//	defer stream.Close()
//	err = stream.Run(ctx, fill)
//
// Host contract violations inside a driver are not errors: drivers panic
// with a *FatalError via Abort.
package driver
