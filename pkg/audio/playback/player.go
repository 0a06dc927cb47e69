// Package playback implements decode-and-play: a base64 [audio.Payload] is
// decoded by a container-aware decoder, falling back to headerless 16-bit
// PCM, and pushed to a freshly acquired output on a caller-supplied
// [Device].
//
// Playback is fire-and-forget. [Player.DecodeAndPlay] returns once the
// output is open and the writer goroutine has started; the output is
// released when the write finishes. There is no cancellation and no
// position reporting. Concurrent calls each hold their own output, so
// overlapping payloads are mixed by the device.
package playback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/audio/decode"
)

// Device is a caller-owned factory for audio outputs. Each call to Open
// acquires a new output for a single playback.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open acquires an output configured for format.
	Open(format audio.Format) (Output, error)
}

// Output is one acquired audio sink. It is owned by exactly one playback
// and is never shared.
type Output interface {
	// Write blocks until samples (interleaved, normalised float32) have been
	// handed to the device.
	Write(samples []float32) error

	// Close releases the output.
	Close() error
}

// Path reports which decode stage produced the played buffer.
type Path string

const (
	// PathContainer means the container-aware decoder succeeded.
	PathContainer Path = "container"

	// PathRawPCM means the payload was interpreted as headerless PCM.
	PathRawPCM Path = "raw_pcm"

	// PathNone means nothing could be played.
	PathNone Path = "none"
)

// Option configures a [Player].
type Option func(*Player)

// WithDecoder replaces the container decoder. Defaults to [decode.NewChain].
func WithDecoder(d decode.Decoder) Option {
	return func(p *Player) {
		p.decoder = d
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) {
		p.log = l
	}
}

// Player decodes payloads and plays them on a [Device].
// It is safe for concurrent use.
type Player struct {
	device  Device
	decoder decode.Decoder
	log     *slog.Logger
}

// NewPlayer returns a Player that acquires outputs from device.
func NewPlayer(device Device, opts ...Option) (*Player, error) {
	if device == nil {
		return nil, fmt.Errorf("playback: device must not be nil")
	}
	p := &Player{
		device:  device,
		decoder: decode.NewChain(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// DecodeAndPlay decodes payload and starts playing it. sampleRate is the
// nominal rate used only when the payload turns out to be headerless PCM;
// values <= 0 select [audio.DefaultSampleRate].
//
// Malformed base64 is returned as an error. Every other failure degrades
// silently: it is logged and a finished [Playback] with [PathNone] is
// returned together with a nil error.
func (p *Player) DecodeAndPlay(ctx context.Context, payload audio.Payload, sampleRate int) (*Playback, error) {
	data, err := payload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}

	res := p.decode(data, sampleRate)
	if res.err != nil {
		p.log.WarnContext(ctx, "playback: payload could not be decoded, skipping",
			"bytes", len(data),
			"err", res.err,
		)
		return finished(PathNone, audio.Format{}, res.err), nil
	}

	out, err := p.device.Open(res.buf.Format)
	if err != nil {
		p.log.WarnContext(ctx, "playback: could not acquire audio output",
			"format", res.buf.Format.String(),
			"err", err,
		)
		return finished(PathNone, res.buf.Format, err), nil
	}

	pb := &Playback{
		Path:   res.path,
		Format: res.buf.Format,
		Frames: res.buf.Frames(),
		done:   make(chan struct{}),
	}
	p.log.DebugContext(ctx, "playback started",
		"path", res.path,
		"format", res.buf.Format.String(),
		"frames", pb.Frames,
	)
	go pb.run(out, res.buf.Samples, p.log)
	return pb, nil
}

// decodeResult is the outcome of one decode stage.
type decodeResult struct {
	buf  *audio.Buffer
	path Path
	err  error
}

// decode runs the container stage and, if it fails, the raw PCM stage.
func (p *Player) decode(data []byte, sampleRate int) decodeResult {
	res := p.decodeContainer(data)
	if res.err == nil {
		return res
	}
	p.log.Debug("playback: container decode failed, trying raw PCM", "err", res.err)
	return decodeRawPCM(data, sampleRate)
}

func (p *Player) decodeContainer(data []byte) decodeResult {
	buf, err := p.decoder.Decode(data)
	if err != nil {
		return decodeResult{path: PathContainer, err: err}
	}
	if buf == nil || buf.Frames() == 0 || buf.Format.SampleRate <= 0 {
		return decodeResult{path: PathContainer, err: decode.ErrUnsupported}
	}
	return decodeResult{buf: buf, path: PathContainer}
}

func decodeRawPCM(data []byte, sampleRate int) decodeResult {
	buf, err := audio.RawPCMBuffer(data, audio.Format{SampleRate: sampleRate, Channels: 1})
	if err != nil {
		return decodeResult{path: PathRawPCM, err: fmt.Errorf("raw PCM fallback: %w", err)}
	}
	return decodeResult{buf: buf, path: PathRawPCM}
}
