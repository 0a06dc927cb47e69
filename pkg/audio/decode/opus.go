package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/vocabox/pkg/audio"
)

const (
	// Opus always decodes at 48 kHz; the rate in OpusHead is informational.
	opusSampleRate = 48000
	// opusMaxFrameSize is 120 ms at 48 kHz, the longest legal Opus packet.
	opusMaxFrameSize = 5760
)

var (
	oggCapture    = []byte("OggS")
	opusHeadMagic = []byte("OpusHead")
	opusTagsMagic = []byte("OpusTags")
)

// Opus decodes Ogg Opus files, the format OpenAI returns for
// response_format "opus". Only channel mapping family 0 (mono or stereo) is
// supported.
type Opus struct{}

// Decode implements [Decoder].
func (Opus) Decode(data []byte) (*audio.Buffer, error) {
	packets, err := oggPackets(data)
	if err != nil {
		return nil, err
	}
	if len(packets) < 2 {
		return nil, errors.New("ogg opus: missing header packets")
	}
	channels, preSkip, err := parseOpusHead(packets[0])
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(packets[1], opusTagsMagic) {
		return nil, errors.New("ogg opus: missing OpusTags packet")
	}

	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("ogg opus: create decoder: %w", err)
	}
	var pcm []int16
	for i, pkt := range packets[2:] {
		out, err := dec.Decode(pkt, opusMaxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("ogg opus: packet %d: %w", i, err)
		}
		pcm = append(pcm, out...)
	}

	skip := min(preSkip*channels, len(pcm))
	pcm = pcm[skip:]
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768.0
	}
	return &audio.Buffer{
		Format:  audio.Format{SampleRate: opusSampleRate, Channels: channels},
		Samples: samples,
	}, nil
}

// parseOpusHead returns the channel count and the number of priming samples
// per channel to drop from the start of the decoded stream.
func parseOpusHead(p []byte) (channels, preSkip int, err error) {
	if len(p) < 19 || !bytes.HasPrefix(p, opusHeadMagic) {
		return 0, 0, errors.New("ogg opus: missing OpusHead packet")
	}
	if p[8]>>4 != 0 {
		return 0, 0, fmt.Errorf("ogg opus: unsupported version %d", p[8])
	}
	channels = int(p[9])
	if p[18] != 0 || channels < 1 || channels > 2 {
		return 0, 0, fmt.Errorf("ogg opus: unsupported channel layout (family %d, %d channels)", p[18], channels)
	}
	return channels, int(binary.LittleEndian.Uint16(p[10:12])), nil
}

// oggPackets splits the first logical bitstream of an Ogg file into packets.
// Pages of other streams are skipped and CRCs are not verified.
func oggPackets(data []byte) ([][]byte, error) {
	var (
		packets [][]byte
		cur     []byte
		serial  uint32
	)
	for page := 0; len(data) > 0; page++ {
		if len(data) < 27 || !bytes.HasPrefix(data, oggCapture) {
			return nil, fmt.Errorf("ogg: page %d: bad capture pattern", page)
		}
		pageSerial := binary.LittleEndian.Uint32(data[14:18])
		nsegs := int(data[26])
		if len(data) < 27+nsegs {
			return nil, fmt.Errorf("ogg: page %d: truncated segment table", page)
		}
		lacing := data[27 : 27+nsegs]
		body := data[27+nsegs:]
		bodyLen := 0
		for _, l := range lacing {
			bodyLen += int(l)
		}
		if len(body) < bodyLen {
			return nil, fmt.Errorf("ogg: page %d: truncated body", page)
		}
		data = body[bodyLen:]

		if page == 0 {
			serial = pageSerial
		} else if pageSerial != serial {
			continue
		}
		// A lacing value below 255 ends a packet; 255 continues it, possibly
		// onto the next page.
		for _, l := range lacing {
			cur = append(cur, body[:l]...)
			body = body[l:]
			if l < 255 {
				packets = append(packets, cur)
				cur = nil
			}
		}
	}
	if len(cur) > 0 {
		packets = append(packets, cur)
	}
	return packets, nil
}
