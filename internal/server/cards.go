package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/vocabox/internal/history"
	"github.com/MrWong99/vocabox/internal/observe"
	"github.com/MrWong99/vocabox/pkg/provider/tts"
)

var errCardNotFound = errors.New("card not found")

// unsafeFilename matches runs of characters not allowed in download names.
var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	limit := s.listLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	cards, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cards == nil {
		cards = []history.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}

type saveCardRequest struct {
	history.Card

	// Speak asks the server to synthesize the word with Voice when Audio
	// is empty.
	Speak bool             `json:"speak,omitempty"`
	Voice tts.VoiceProfile `json:"voice"`
}

func (s *Server) handleSaveCard(w http.ResponseWriter, r *http.Request) {
	var req saveCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	card := req.Card
	if err := card.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Speak && card.Audio == "" {
		p := s.TTS()
		if p == nil {
			writeError(w, http.StatusServiceUnavailable, errNoTTS)
			return
		}
		payload, err := p.Synthesize(r.Context(), card.Word, req.Voice)
		if err != nil {
			observe.Logger(r.Context()).Warn("card synthesis failed", "word", card.Word, "err", err)
			writeError(w, http.StatusBadGateway, fmt.Errorf("synthesize: %w", err))
			return
		}
		card.Audio = payload
	}

	if err := s.store.Save(r.Context(), &card); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.lookupCard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCardAudio(w http.ResponseWriter, r *http.Request) {
	card, ok := s.lookupCard(w, r)
	if !ok {
		return
	}
	if card.Audio == "" {
		writeError(w, http.StatusNotFound, errors.New("card has no audio"))
		return
	}
	s.download(w, r, card.Audio, cardFilename(card.Word))
}

// lookupCard writes a 404 or 500 and returns false when the card named in
// the URL cannot be served.
func (s *Server) lookupCard(w http.ResponseWriter, r *http.Request) (*history.Card, bool) {
	card, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	if card == nil {
		writeError(w, http.StatusNotFound, errCardNotFound)
		return nil, false
	}
	return card, true
}

// cardFilename derives a download name such as "benevolent.wav".
func cardFilename(word string) string {
	name := unsafeFilename.ReplaceAllString(word, "_")
	if name == "" || name == "_" {
		return defaultFilename
	}
	return name + ".wav"
}
