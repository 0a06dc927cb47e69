package audio

import (
	"encoding/base64"
	"fmt"
)

// Payload is an opaque base64-encoded audio byte stream as received from a
// speech backend. It is either headerless 16-bit little-endian PCM or a
// complete container file; nothing travels alongside it to say which, so
// callers use [Classify] on the decoded bytes.
type Payload string

// EncodePayload returns the standard base64 encoding of data.
func EncodePayload(data []byte) Payload {
	return Payload(base64.StdEncoding.EncodeToString(data))
}

// Bytes decodes the payload. Malformed base64 is returned as an error.
func (p Payload) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(string(p))
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64 payload: %w", err)
	}
	return data, nil
}
