package audio

import "errors"

var (
	// ErrEmptyPCM is returned by [PCM16ToFloat32] when there are no samples.
	ErrEmptyPCM = errors.New("audio: empty PCM data")

	// ErrTruncatedPCM is returned by [PCM16ToFloat32] when the byte count is
	// odd and so cannot hold whole 16-bit samples.
	ErrTruncatedPCM = errors.New("audio: PCM data has odd byte count")
)

// pcm16Scale maps the int16 range onto [-1, 1).
const pcm16Scale = 32768

// NormalizeSample converts one signed 16-bit sample to a float in [-1, 1).
// -32768 maps to exactly -1 and 32767 to 32767/32768.
func NormalizeSample(s int16) float32 {
	return float32(s) / pcm16Scale
}

// PCM16ToFloat32 interprets pcm as little-endian int16 samples and returns
// them normalised with [NormalizeSample].
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyPCM
	}
	if len(pcm)%2 != 0 {
		return nil, ErrTruncatedPCM
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = NormalizeSample(s)
	}
	return out, nil
}

// RawPCMBuffer builds a [Buffer] from headerless 16-bit PCM at the given
// format. It fails the same way [PCM16ToFloat32] does.
func RawPCMBuffer(pcm []byte, format Format) (*Buffer, error) {
	samples, err := PCM16ToFloat32(pcm)
	if err != nil {
		return nil, err
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	return &Buffer{Format: format, Samples: samples}, nil
}
