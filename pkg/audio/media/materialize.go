package media

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/vocabox/pkg/audio"
)

const (
	// MIMEWAV is the MIME type of framed PCM and of every downloadable file.
	MIMEWAV = "audio/wav"
	// MIMEMPEG is served for MP3 containers.
	MIMEMPEG = "audio/mpeg"
)

// File is a downloadable audio file.
type File struct {
	Name     string
	MIMEType string
	Data     []byte

	// Wrapped reports whether Data was built by framing raw PCM.
	Wrapped bool
}

// Saver persists a prepared [File], e.g. to disk or as an HTTP attachment.
type Saver interface {
	Save(ctx context.Context, f File) error
}

// playable decodes payload and returns bytes that a generic media consumer
// can play, plus whether raw PCM had to be framed.
func playable(payload audio.Payload) ([]byte, bool, error) {
	data, err := payload.Bytes()
	if err != nil {
		return nil, false, fmt.Errorf("media: %w", err)
	}
	if audio.Classify(data) == audio.ContainerFile {
		return data, false, nil
	}
	return audio.FrameWAV(data, audio.DefaultSampleRate, 1), true, nil
}

// MaterializeURL registers payload with reg and returns its reference.
// Raw PCM is framed as WAV; containers keep their bytes and get a sniffed
// MIME type, falling back to audio/wav.
func MaterializeURL(reg *Registry, payload audio.Payload) (Ref, error) {
	data, wrapped, err := playable(payload)
	if err != nil {
		return Ref{}, err
	}
	mime := MIMEWAV
	if !wrapped {
		mime = sniffMIME(data)
	}
	ref := reg.Register(data, mime)
	ref.Wrapped = wrapped
	return ref, nil
}

// sniffMIME returns an audio MIME type for container bytes.
func sniffMIME(data []byte) string {
	// http.DetectContentType only knows ID3-tagged MP3.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return MIMEMPEG
	}
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "audio/") || ct == "application/ogg" {
		return ct
	}
	return MIMEWAV
}

// PrepareDownload builds a downloadable file from payload. The MIME type is
// always audio/wav, even for MP3 or Ogg containers.
func PrepareDownload(payload audio.Payload, filename string) (File, error) {
	data, wrapped, err := playable(payload)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:     filename,
		MIMEType: MIMEWAV,
		Data:     data,
		Wrapped:  wrapped,
	}, nil
}

// MaterializeDownload prepares payload and hands it to saver once.
func MaterializeDownload(ctx context.Context, saver Saver, payload audio.Payload, filename string) (File, error) {
	f, err := PrepareDownload(payload, filename)
	if err != nil {
		return File{}, err
	}
	if err := saver.Save(ctx, f); err != nil {
		return File{}, fmt.Errorf("media: save %q: %w", filename, err)
	}
	return f, nil
}
