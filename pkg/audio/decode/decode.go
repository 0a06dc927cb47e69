// Package decode turns self-describing audio files into normalised float
// buffers. [Chain] is the container-aware decoder used by playback: it tries
// every format it knows regardless of what the byte classifier said, so a
// mislabelled payload still has a chance to decode.
package decode

import (
	"errors"
	"fmt"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// ErrUnsupported is returned when no decoder in a [Chain] accepts the data.
var ErrUnsupported = errors.New("decode: unsupported or malformed audio container")

// Decoder decodes a complete in-memory audio file.
type Decoder interface {
	Decode(data []byte) (*audio.Buffer, error)
}

// Func adapts an ordinary function to the [Decoder] interface.
type Func func(data []byte) (*audio.Buffer, error)

// Decode implements [Decoder].
func (f Func) Decode(data []byte) (*audio.Buffer, error) { return f(data) }

// named pairs a decoder with the label used in error messages.
type named struct {
	name string
	dec  Decoder
}

// Chain tries each registered decoder in order and returns the first
// successful result.
type Chain struct {
	decoders []named
}

// NewChain returns a chain of WAV, MP3, Ogg Vorbis and Ogg Opus decoders.
func NewChain() *Chain {
	c := &Chain{}
	c.Add("wav", WAV{})
	c.Add("mp3", MP3{})
	c.Add("ogg", Ogg{})
	c.Add("opus", Opus{})
	return c
}

// Add appends a decoder to the chain.
func (c *Chain) Add(name string, d Decoder) {
	c.decoders = append(c.decoders, named{name: name, dec: d})
}

// Decode implements [Decoder]. On failure the returned error wraps
// [ErrUnsupported] and lists each decoder's reason.
func (c *Chain) Decode(data []byte) (*audio.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupported)
	}
	errs := []error{ErrUnsupported}
	for _, n := range c.decoders {
		buf, err := n.dec.Decode(data)
		if err == nil && buf.Frames() > 0 {
			return buf, nil
		}
		if err == nil {
			err = errors.New("no samples")
		}
		errs = append(errs, fmt.Errorf("%s: %w", n.name, err))
	}
	return nil, errors.Join(errs...)
}
