// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for packet encoders used on the host bridge
package encode

// Encoder encodes int16 PCM samples to packets
type Encoder interface {
	// Encode converts PCM samples to encoded audio data
	Encode(samples []int16) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
