// Package media materializes audio payloads for consumers outside the
// playback path: a streamable URL backed by an in-process [Registry], or a
// self-contained file for download.
//
// Raw PCM payloads are always wrapped in a 44-byte WAV header at
// [audio.DefaultSampleRate] mono. Container payloads pass through
// byte-identical.
package media

import (
	"bytes"
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownRef is returned when releasing a reference that was never
// registered or has already been released.
var ErrUnknownRef = errors.New("media: unknown reference")

// Ref is a registered, streamable media reference. It stays valid until
// [Registry.Release] is called with its ID.
type Ref struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`

	// Wrapped reports whether the bytes were built by framing raw PCM.
	Wrapped bool `json:"wrapped"`
}

type entry struct {
	data     []byte
	mime     string
	modified time.Time
}

// Registry holds the bytes behind every live [Ref] and serves them over
// HTTP. The zero value is not usable; construct with [NewRegistry].
//
// A Registry is owned by whoever created it. Every Ref must be released
// exactly once, and [Registry.Close] drops whatever is left at teardown.
// All methods are safe for concurrent use.
type Registry struct {
	prefix string

	mu      sync.Mutex
	entries map[string]entry
}

// NewRegistry returns an empty registry. urlPrefix is prepended to the
// reference ID to build [Ref.URL], e.g. "http://localhost:8080/media/".
func NewRegistry(urlPrefix string) *Registry {
	return &Registry{
		prefix:  urlPrefix,
		entries: make(map[string]entry),
	}
}

// Register stores a private copy of data and returns a new reference.
func (r *Registry) Register(data []byte, mime string) Ref {
	id := uuid.NewString()
	e := entry{
		data:     bytes.Clone(data),
		mime:     mime,
		modified: time.Now(),
	}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	return Ref{
		ID:       id,
		URL:      r.prefix + id,
		MIMEType: mime,
		Size:     len(e.data),
	}
}

// Release drops the bytes behind id. Releasing an unknown or already
// released id returns [ErrUnknownRef].
func (r *Registry) Release(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return ErrUnknownRef
	}
	delete(r.entries, id)
	return nil
}

// Len reports how many references are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close releases every remaining reference and returns how many there were.
func (r *Registry) Close() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	clear(r.entries)
	return n
}

func (r *Registry) lookup(id string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// ServeHTTP streams the reference named by the last path element of the
// request URL. Range requests are supported.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := path.Base(strings.TrimSuffix(req.URL.Path, "/"))
	e, ok := r.lookup(id)
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", e.mime)
	http.ServeContent(w, req, id, e.modified, bytes.NewReader(e.data))
}
