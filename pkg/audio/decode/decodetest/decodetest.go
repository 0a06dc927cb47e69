// Package decodetest builds encoded audio files for tests.
package decodetest

import (
	"encoding/binary"
	"math"
	"testing"

	"layeh.com/gopus"
)

// OggPage builds one Ogg page with the given lacing values and body. The
// CRC field is left zero.
func OggPage(serial, seq uint32, lacing, body []byte) []byte {
	h := make([]byte, 27)
	copy(h, "OggS")
	binary.LittleEndian.PutUint32(h[14:18], serial)
	binary.LittleEndian.PutUint32(h[18:22], seq)
	h[26] = byte(len(lacing))
	return append(append(h, lacing...), body...)
}

// Lace returns the lacing values and body for complete packets.
func Lace(packets ...[]byte) (lacing, body []byte) {
	for _, p := range packets {
		n := len(p)
		for ; n >= 255; n -= 255 {
			lacing = append(lacing, 255)
		}
		lacing = append(lacing, byte(n))
		body = append(body, p...)
	}
	return lacing, body
}

// OpusHead returns an identification header for channel mapping family 0.
func OpusHead(channels, preSkip int) []byte {
	h := make([]byte, 19)
	copy(h, "OpusHead")
	h[8] = 1
	h[9] = byte(channels)
	binary.LittleEndian.PutUint16(h[10:12], uint16(preSkip))
	binary.LittleEndian.PutUint32(h[12:16], 24000)
	return h
}

// OpusTags returns a comment header with no comments.
func OpusTags() []byte {
	vendor := "vocabox"
	t := []byte("OpusTags")
	t = binary.LittleEndian.AppendUint32(t, uint32(len(vendor)))
	t = append(t, vendor...)
	return binary.LittleEndian.AppendUint32(t, 0)
}

// FrameSize is the per-channel length of every packet OggOpus encodes.
const FrameSize = 960

// OggOpus encodes frames packets of a 440 Hz tone at 48 kHz into an Ogg
// Opus file, one packet per page.
func OggOpus(t testing.TB, channels, frames, preSkip int) []byte {
	t.Helper()
	enc, err := gopus.NewEncoder(48000, channels, gopus.Audio)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	var out []byte
	l, b := Lace(OpusHead(channels, preSkip))
	out = append(out, OggPage(7, 0, l, b)...)
	l, b = Lace(OpusTags())
	out = append(out, OggPage(7, 1, l, b)...)
	for f := range frames {
		pcm := make([]int16, FrameSize*channels)
		for i := range FrameSize {
			v := int16(8000 * math.Sin(2*math.Pi*440*float64(f*FrameSize+i)/48000))
			for c := range channels {
				pcm[i*channels+c] = v
			}
		}
		pkt, err := enc.Encode(pcm, FrameSize, 4000)
		if err != nil {
			t.Fatalf("Encode frame %d: %v", f, err)
		}
		l, b = Lace(pkt)
		out = append(out, OggPage(7, uint32(2+f), l, b)...)
	}
	return out
}
