// ABOUTME: Buffer codecs for the host bridge
// ABOUTME: Frames flushed buffers as a codec tag byte plus PCM or Opus payload
package hostbridge

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/decode"
	"github.com/Resonate-Protocol/pepperaudio/pkg/audio/encode"
)

const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Binary frame codec tags
const (
	tagPCM  byte = 0
	tagOpus byte = 1
)

var (
	ErrShortFrame   = errors.New("binary frame too short")
	ErrUnknownCodec = errors.New("unknown codec")
)

// negotiateCodec falls back to PCM when Opus cannot carry the buffer size
func negotiateCodec(requested string, sampleRate, frames int) string {
	if requested == CodecOpus && encode.ValidOpusFrame(sampleRate, frames) {
		return CodecOpus
	}
	return CodecPCM
}

func codecTag(codec string) (byte, error) {
	switch codec {
	case CodecPCM:
		return tagPCM, nil
	case CodecOpus:
		return tagOpus, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}
}

// frameEncoder turns S16LE buffers into binary frames
type frameEncoder struct {
	tag     byte
	encoder encode.Encoder
	samples []int16
}

func newFrameEncoder(codec string, sampleRate, channels int) (*frameEncoder, error) {
	tag, err := codecTag(codec)
	if err != nil {
		return nil, err
	}

	var enc encode.Encoder = encode.NewPCM()
	if codec == CodecOpus {
		opusEnc, err := encode.NewOpus(sampleRate, channels)
		if err != nil {
			return nil, err
		}
		enc = opusEnc
	}

	return &frameEncoder{tag: tag, encoder: enc}, nil
}

func (e *frameEncoder) Encode(buf []byte) ([]byte, error) {
	if cap(e.samples) < len(buf)/2 {
		e.samples = make([]int16, len(buf)/2)
	}
	samples := e.samples[:len(buf)/2]
	decode.PCMToSamples(buf, samples)

	payload, err := e.encoder.Encode(samples)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 1+len(payload))
	frame[0] = e.tag
	copy(frame[1:], payload)
	return frame, nil
}

func (e *frameEncoder) Close() error {
	return e.encoder.Close()
}

// frameDecoder turns binary frames back into S16LE buffers
type frameDecoder struct {
	sampleRate int
	channels   int
	pcm        *encode.PCMEncoder
	opus       decode.Decoder
}

func newFrameDecoder(sampleRate, channels int) *frameDecoder {
	return &frameDecoder{
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        encode.NewPCM(),
	}
}

func (d *frameDecoder) Decode(frame []byte) ([]byte, error) {
	if len(frame) < 1 {
		return nil, ErrShortFrame
	}

	switch frame[0] {
	case tagPCM:
		return frame[1:], nil
	case tagOpus:
		if d.opus == nil {
			dec, err := decode.NewOpus(d.sampleRate, d.channels)
			if err != nil {
				return nil, err
			}
			d.opus = dec
		}
		samples, err := d.opus.Decode(frame[1:])
		if err != nil {
			return nil, err
		}
		return d.pcm.Encode(samples)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownCodec, frame[0])
	}
}

func (d *frameDecoder) Close() error {
	if d.opus != nil {
		return d.opus.Close()
	}
	return nil
}
