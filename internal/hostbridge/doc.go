// ABOUTME: Package documentation for the host bridge
// ABOUTME: Describes the websocket link between a remote plugin and a playing host

// Package hostbridge carries Pepper device calls over a websocket so a
// plugin can play through a host running on another machine.
//
// The Client implements pepper.Host. Async calls run in order on a local
// goroutine standing in for the plugin thread, and each device call becomes
// a JSON control request answered by the host. Flushed buffers travel as
// binary frames: one codec tag byte followed by little-endian PCM or a
// single Opus packet.
//
// The Server accepts one session per connection, opens a local stream from
// its driver registry when the plugin initializes a context, and acks every
// buffer once the local driver has played it. Hosts can advertise
// themselves over mDNS.
package hostbridge
