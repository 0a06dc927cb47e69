package decode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"

	"github.com/MrWong99/vocabox/pkg/audio"
)

// WAV decodes uncompressed PCM RIFF/WAVE files using go-audio/wav.
type WAV struct{}

// Decode implements [Decoder].
func (WAV) Decode(data []byte) (*audio.Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported WAV format code %d", dec.WavAudioFormat)
	}

	var scale float32
	switch dec.BitDepth {
	case 8:
		scale = 128
	case 16:
		scale = 32768
	case 24:
		scale = 8388608
	case 32:
		scale = 2147483648
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth %d", dec.BitDepth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read WAV samples: %w", err)
	}

	// go-audio returns 8-bit samples unsigned.
	var offset int
	if dec.BitDepth == 8 {
		offset = 128
	}
	samples := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = float32(v-offset) / scale
	}

	return &audio.Buffer{
		Format: audio.Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
		},
		Samples: samples,
	}, nil
}
