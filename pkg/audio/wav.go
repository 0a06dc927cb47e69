package audio

import "encoding/binary"

// WAVHeaderSize is the length of the canonical PCM WAV header written by
// [FrameWAV].
const WAVHeaderSize = 44

// bytesPerSample is fixed: FrameWAV only describes 16-bit PCM.
const bytesPerSample = 2

// FrameWAV wraps 16-bit little-endian PCM samples in a minimal RIFF/WAVE
// container. The samples are copied verbatim after the 44-byte header; no
// resampling, channel mixing or bit-depth conversion takes place, so the
// caller must pass PCM that already matches sampleRate and channels.
// A channels value <= 0 is treated as mono.
//
// The returned slice is freshly allocated and never aliases pcm.
func FrameWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	dataLen := len(pcm)
	le := binary.LittleEndian

	out := make([]byte, WAVHeaderSize+dataLen)

	// RIFF chunk descriptor.
	copy(out[0:4], "RIFF")
	le.PutUint32(out[4:8], uint32(36+dataLen))
	copy(out[8:12], "WAVE")

	// fmt sub-chunk.
	copy(out[12:16], "fmt ")
	le.PutUint32(out[16:20], 16)
	le.PutUint16(out[20:22], 1) // PCM
	le.PutUint16(out[22:24], uint16(channels))
	le.PutUint32(out[24:28], uint32(sampleRate))
	le.PutUint32(out[28:32], uint32(sampleRate*channels*bytesPerSample))
	le.PutUint16(out[32:34], uint16(channels*bytesPerSample))
	le.PutUint16(out[34:36], 16)

	// data sub-chunk.
	copy(out[36:40], "data")
	le.PutUint32(out[40:44], uint32(dataLen))
	copy(out[WAVHeaderSize:], pcm)

	return out
}
