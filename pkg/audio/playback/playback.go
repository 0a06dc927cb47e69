package playback

import (
	"log/slog"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// Playback describes a started (or skipped) playback.
type Playback struct {
	// Path is the decode stage that produced the audio.
	Path Path

	// Format is the format the output was opened with.
	Format audio.Format

	// Frames is the number of sample frames being played.
	Frames int

	done chan struct{}
	err  error
}

// finished returns a Playback that is already complete.
func finished(path Path, format audio.Format, err error) *Playback {
	pb := &Playback{Path: path, Format: format, done: make(chan struct{}), err: err}
	close(pb.done)
	return pb
}

// Done is closed once the output has been released.
func (pb *Playback) Done() <-chan struct{} {
	return pb.done
}

// Err returns the error that ended the playback, if any. Only meaningful
// after Done is closed.
func (pb *Playback) Err() error {
	select {
	case <-pb.done:
		return pb.err
	default:
		return nil
	}
}

// run writes samples to out and releases it. The output is closed on every
// path out of run.
func (pb *Playback) run(out Output, samples []float32, log *slog.Logger) {
	defer close(pb.done)
	defer func() {
		if err := out.Close(); err != nil {
			log.Warn("playback: close audio output", "err", err)
			if pb.err == nil {
				pb.err = err
			}
		}
	}()
	if err := out.Write(samples); err != nil {
		log.Warn("playback: write to audio output failed", "err", err)
		pb.err = err
	}
}
