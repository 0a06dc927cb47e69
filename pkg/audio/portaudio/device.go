// Package portaudio provides a [playback.Device] backed by the system's
// default PortAudio output. It requires cgo and the PortAudio C library.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/audio/playback"
)

// DefaultFramesPerBuffer is used when NewDevice is given a non-positive size.
const DefaultFramesPerBuffer = 1024

// ErrClosed is returned by Open once shutdown has begun.
var ErrClosed = errors.New("portaudio: device closed")

var _ playback.Device = (*Device)(nil)

// stream is the part of *portaudio.Stream an output drives.
type stream interface {
	Start() error
	Write() error
	Stop() error
	Close() error
}

type openFunc func(channels int, sampleRate float64, framesPerBuffer int, buf []float32) (stream, error)

// Device opens one blocking PortAudio stream per playback. Concurrent
// streams are mixed by the host audio system.
//
// PortAudio is terminated only after every output has been closed:
// Pa_Terminate frees all streams, including ones a playback is still
// writing to.
type Device struct {
	framesPerBuffer int
	open            openFunc
	terminate       func() error

	mu     sync.Mutex
	closed bool
	live   sync.WaitGroup

	termOnce sync.Once
	termErr  error
}

// NewDevice initialises PortAudio. Callers must call [Device.Shutdown] or
// [Device.Close] when done.
func NewDevice(framesPerBuffer int) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return newDevice(framesPerBuffer, openDefault, portaudio.Terminate), nil
}

func newDevice(framesPerBuffer int, open openFunc, terminate func() error) *Device {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Device{framesPerBuffer: framesPerBuffer, open: open, terminate: terminate}
}

func openDefault(channels int, sampleRate float64, framesPerBuffer int, buf []float32) (stream, error) {
	s, err := portaudio.OpenDefaultStream(0, channels, sampleRate, framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open implements [playback.Device].
func (d *Device) Open(format audio.Format) (playback.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	channels := max(format.Channels, 1)
	buf := make([]float32, d.framesPerBuffer*channels)
	s, err := d.open(channels, float64(format.SampleRate), d.framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream %s: %w", format, err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	d.live.Add(1)
	return &output{stream: s, buf: buf, release: d.live.Done}, nil
}

// Shutdown stops accepting new outputs, waits until every open output has
// been closed and then terminates PortAudio. If ctx ends first, PortAudio is
// left running and the context error is returned; a later call may retry.
func (d *Device) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		d.live.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return fmt.Errorf("portaudio: outputs still playing, not terminating: %w", ctx.Err())
	}

	d.termOnce.Do(func() {
		if err := d.terminate(); err != nil {
			d.termErr = fmt.Errorf("portaudio: terminate: %w", err)
		}
	})
	return d.termErr
}

// Close is Shutdown without a deadline.
func (d *Device) Close() error {
	return d.Shutdown(context.Background())
}

// output is a started blocking stream. buf is the slice registered with the
// stream; Write copies into it one period at a time.
type output struct {
	stream  stream
	buf     []float32
	release func()

	closeOnce sync.Once
	closeErr  error
}

func (o *output) Write(samples []float32) error {
	for len(samples) > 0 {
		n := copy(o.buf, samples)
		// Pad the final period with silence.
		clear(o.buf[n:])
		if err := o.stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

func (o *output) Close() error {
	o.closeOnce.Do(func() {
		defer o.release()
		stopErr := o.stream.Stop()
		closeErr := o.stream.Close()
		switch {
		case stopErr != nil:
			o.closeErr = fmt.Errorf("portaudio: stop stream: %w", stopErr)
		case closeErr != nil:
			o.closeErr = fmt.Errorf("portaudio: close stream: %w", closeErr)
		}
	})
	return o.closeErr
}
