package decode

import (
	"bytes"
	"fmt"

	"github.com/jfreymuth/oggvorbis"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// Ogg decodes Ogg Vorbis files using jfreymuth/oggvorbis.
type Ogg struct{}

// Decode implements [Decoder].
func (Ogg) Decode(data []byte) (*audio.Buffer, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read Ogg Vorbis stream: %w", err)
	}
	return &audio.Buffer{
		Format:  audio.Format{SampleRate: format.SampleRate, Channels: format.Channels},
		Samples: samples,
	}, nil
}
