// Package mock provides in-memory implementations of [playback.Device] and
// [playback.Output] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that
// tests can assert on opened formats and written samples, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	player, _ := playback.NewPlayer(dev)
//	pb, _ := player.DecodeAndPlay(ctx, payload, 24000)
//	<-pb.Done()
//	out := dev.Outputs()[0]
package mock

import (
	"sync"

	"github.com/MrWong99/vocabox/pkg/audio"
	"github.com/MrWong99/vocabox/pkg/audio/playback"
)

// Compile-time interface assertions.
var (
	_ playback.Device = (*Device)(nil)
	_ playback.Output = (*Output)(nil)
)

// ─── Output ───────────────────────────────────────────────────────────────────

// Output is a mock implementation of [playback.Output].
type Output struct {
	mu sync.Mutex

	// Format is the format the output was opened with.
	Format audio.Format

	// WriteError is returned by [Output.Write].
	WriteError error

	// CloseError is returned by [Output.Close].
	CloseError error

	// Block, when non-nil, makes Write wait until the channel is closed.
	Block <-chan struct{}

	samples    []float32
	writeCalls int
	closeCalls int
}

// Write implements [playback.Output]. Samples are appended to the recorded
// buffer even when WriteError is set.
func (o *Output) Write(samples []float32) error {
	if o.Block != nil {
		<-o.Block
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writeCalls++
	o.samples = append(o.samples, samples...)
	return o.WriteError
}

// Close implements [playback.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeCalls++
	return o.CloseError
}

// Samples returns a copy of every sample written so far.
func (o *Output) Samples() []float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]float32, len(o.samples))
	copy(out, o.samples)
	return out
}

// CallCountWrite returns how many times Write was called.
func (o *Output) CallCountWrite() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.writeCalls
}

// CallCountClose returns how many times Close was called.
func (o *Output) CallCountClose() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeCalls
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [playback.Device]. Every successful
// Open creates a new [Output] and records it.
type Device struct {
	mu sync.Mutex

	// OpenError, if non-nil, is returned by [Device.Open].
	OpenError error

	// NewOutput, if set, is called to build each output. It lets tests
	// preconfigure errors or blocking on the returned Output.
	NewOutput func(format audio.Format) *Output

	outputs   []*Output
	openCalls []audio.Format
}

// Open implements [playback.Device].
func (d *Device) Open(format audio.Format) (playback.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls = append(d.openCalls, format)
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	var out *Output
	if d.NewOutput != nil {
		out = d.NewOutput(format)
	} else {
		out = &Output{}
	}
	out.Format = format
	d.outputs = append(d.outputs, out)
	return out, nil
}

// Outputs returns every output opened so far, in order.
func (d *Device) Outputs() []*Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Output, len(d.outputs))
	copy(out, d.outputs)
	return out
}

// OpenCalls returns the formats passed to Open, in order.
func (d *Device) OpenCalls() []audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]audio.Format, len(d.openCalls))
	copy(out, d.openCalls)
	return out
}
