// Package httpapi exposes the synthesis service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/gtts"
	"github.com/lexiqai/speech-gateway/internal/tts"
)

const (
	maxSpeakBodyBytes  = 1 << 20
	contentDisposition = "inline; filename=speech.mp3"
)

// Synthesizer is what the HTTP layer needs from the synthesis service
type Synthesizer interface {
	ListVoices(ctx context.Context, filter tts.VoiceFilter) ([]tts.VoiceDescriptor, error)
	Speak(ctx context.Context, req tts.SpeakRequest) ([]byte, error)
	SpeakToFile(ctx context.Context, req tts.FileRequest) (*audio.TempFile, error)
	Catalog() gtts.Catalog
}

// API holds the HTTP handlers
type API struct {
	svc Synthesizer
}

// NewAPI creates the handlers around svc
func NewAPI(svc Synthesizer) *API {
	return &API{svc: svc}
}

// handlerFunc is a handler that reports failures instead of writing them
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// Register adds every API route to mux
func (a *API) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		handler handlerFunc
	}{
		{"GET /edge-tts/voices", a.listVoices},
		{"GET /edge-tts/voices/by-language/{language}", a.listVoicesByLanguage},
		{"GET /edge-tts/voices/english", a.listEnglishVoices},
		{"POST /edge-tts/speak", a.speak},
		{"GET /tts", a.speakToFile},
		{"GET /tts/{$}", a.speakToFile},
		{"GET /tts/voices", a.catalog},
	}

	for _, route := range routes {
		mux.Handle(route.pattern, instrument(route.pattern, serve(route.handler)))
	}
}

func serve(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

func (a *API) listVoices(w http.ResponseWriter, r *http.Request) error {
	return a.writeVoices(w, r, tts.VoiceFilter{})
}

func (a *API) listVoicesByLanguage(w http.ResponseWriter, r *http.Request) error {
	language := strings.TrimSpace(r.PathValue("language"))
	if language == "" {
		return tts.ValidationError("list voices", "language is required")
	}
	return a.writeVoices(w, r, tts.VoiceFilter{LocalePrefix: language})
}

func (a *API) listEnglishVoices(w http.ResponseWriter, r *http.Request) error {
	return a.writeVoices(w, r, tts.VoiceFilter{ExactLocale: "en-US"})
}

func (a *API) writeVoices(w http.ResponseWriter, r *http.Request, filter tts.VoiceFilter) error {
	voices, err := a.svc.ListVoices(r.Context(), filter)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, voices)
	return nil
}

func (a *API) speak(w http.ResponseWriter, r *http.Request) error {
	var req tts.SpeakRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSpeakBodyBytes)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return tts.ValidationError("speak", "request body is required")
		}
		return tts.ValidationError("speak", "request body must be a JSON object with a text field")
	}

	payload, err := a.svc.Speak(r.Context(), req)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", audio.ContentTypeMPEG)
	w.Header().Set("Content-Disposition", contentDisposition)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
	return nil
}

// speakToFile serves a transient file that is removed when the handler returns,
// whether the response completed or the client went away.
func (a *API) speakToFile(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	f, err := a.svc.SpeakToFile(r.Context(), tts.FileRequest{
		Text: q.Get("text"),
		Lang: q.Get("lang"),
		Slow: q.Get("slow"),
		TLD:  q.Get("tld"),
	})
	if err != nil {
		return err
	}
	defer f.Release()

	w.Header().Set("Content-Type", audio.ContentTypeMPEG)
	w.Header().Set("Content-Disposition", contentDisposition)
	http.ServeContent(w, r, "speech.mp3", time.Time{}, f)
	return nil
}

func (a *API) catalog(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, a.svc.Catalog())
	return nil
}
