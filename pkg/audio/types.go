// Package audio holds the format-level primitives of the Vocabox audio
// pipeline: the base64 [Payload] received from speech backends, the
// [Classify] byte sniffer, the [FrameWAV] header synthesiser, and the
// float [Buffer] handed to playback devices.
//
// Everything in this package is a pure function of its inputs. Nothing here
// owns a device, caches a payload, or keeps a registry; those live in the
// playback and media subpackages and are constructed by the caller.
package audio

import "fmt"

// DefaultSampleRate is the nominal rate in Hz of headerless PCM produced by
// the speech backends Vocabox talks to.
const DefaultSampleRate = 24000

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "24000Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Buffer is decoded audio ready for an output device. Samples are
// interleaved and normalised to the range [-1, 1].
type Buffer struct {
	Format  Format
	Samples []float32
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || b.Format.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}
