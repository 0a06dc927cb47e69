package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// MP3 decodes MPEG-1/2 Layer III streams using hajimehoshi/go-mp3. The
// decoder always produces interleaved 16-bit stereo.
type MP3 struct{}

// Decode implements [Decoder].
func (MP3) Decode(data []byte) (*audio.Buffer, error) {
	// go-mp3 resyncs past garbage and can find false frame headers inside
	// compressed Ogg packets.
	if bytes.HasPrefix(data, oggCapture) {
		return nil, errors.New("open MP3 stream: Ogg container")
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open MP3 stream: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read MP3 frames: %w", err)
	}
	// Drop a trailing partial stereo frame rather than fail on it.
	pcm = pcm[:len(pcm)-len(pcm)%4]
	samples, err := audio.PCM16ToFloat32(pcm)
	if err != nil {
		return nil, err
	}
	return &audio.Buffer{
		Format:  audio.Format{SampleRate: dec.SampleRate(), Channels: 2},
		Samples: samples,
	}, nil
}
