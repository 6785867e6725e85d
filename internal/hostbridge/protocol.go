// ABOUTME: Host bridge message definitions
// ABOUTME: JSON control messages and binary buffer frames exchanged over the websocket
package hostbridge

import (
	"encoding/json"
	"fmt"
)

const (
	// Path is the websocket endpoint served by bridge hosts
	Path = "/pepper"

	ProtocolVersion = 1
)

// Control message types
const (
	MsgDeviceAcquire      = "device/acquire"
	MsgDeviceAcquired     = "device/acquired"
	MsgContextInitialize  = "context/initialize"
	MsgContextInitialized = "context/initialized"
	MsgContextFlushed     = "context/flushed"
	MsgContextDestroy     = "context/destroy"
	MsgError              = "error"
)

// Message is the top-level wrapper for outgoing control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// envelope is an incoming control message with its payload left raw
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e envelope) decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// DeviceAcquire asks the host for its audio device
type DeviceAcquire struct {
	Instance string `json:"instance"`
	Device   int    `json:"device"`
	Name     string `json:"name,omitempty"`
	Version  int    `json:"version"`
}

// DeviceAcquired answers DeviceAcquire
type DeviceAcquired struct {
	Instance string `json:"instance"`
	Device   int    `json:"device"`
	HostName string `json:"host_name"`
}

// ContextInitialize carries the plugin's context configuration
type ContextInitialize struct {
	SampleRate       int    `json:"sample_rate"`
	SampleType       int    `json:"sample_type"`
	Channels         int    `json:"channels"`
	SampleFrameCount int    `json:"sample_frame_count"`
	Codec            string `json:"codec"`
}

// ContextInitialized answers ContextInitialize
type ContextInitialized struct {
	Result     int    `json:"result"`
	BufferSize int    `json:"buffer_size"`
	Codec      string `json:"codec"`
	Driver     string `json:"driver,omitempty"`
}

// ContextFlushed acknowledges one played buffer
type ContextFlushed struct {
	Result   int    `json:"result"`
	Sequence uint64 `json:"sequence"`
}

// ErrorMessage reports a failure that ends the request
type ErrorMessage struct {
	Message string `json:"message"`
}
