package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/edgetts"
	"github.com/lexiqai/speech-gateway/internal/gtts"
	"github.com/lexiqai/speech-gateway/internal/tts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var mp3Frame = []byte{0xFF, 0xFB, 0x90, 0x64, 0x00, 0x0F}

type stubStreaming struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *stubStreaming) Stream(ctx context.Context, text string, opts edgetts.Options) (<-chan edgetts.Chunk, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	ch := make(chan edgetts.Chunk, 3)
	if s.err != nil {
		ch <- edgetts.Chunk{Err: s.err}
	} else {
		ch <- edgetts.Chunk{Type: edgetts.ChunkAudio, Data: mp3Frame[:3]}
		ch <- edgetts.Chunk{Type: edgetts.ChunkWordBoundary, Text: "hello"}
		ch <- edgetts.Chunk{Type: edgetts.ChunkAudio, Data: mp3Frame[3:]}
	}
	close(ch)
	return ch, nil
}

type stubCatalog struct {
	err error
}

func (s *stubCatalog) ListVoices(ctx context.Context) ([]edgetts.Voice, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []edgetts.Voice{
		{Name: "Microsoft Server Speech Text to Speech Voice (en-US, AriaNeural)", ShortName: "en-US-AriaNeural", Gender: "Female", Locale: "en-US", SuggestedCodec: "audio-24khz-48kbitrate-mono-mp3", FriendlyName: "Aria", Status: "GA"},
		{ShortName: "en-GB-SoniaNeural", Locale: "en-GB"},
		{ShortName: "fr-FR-DeniseNeural", Locale: "fr-FR"},
	}, nil
}

// stubFiles records the temp file each call writes into
type stubFiles struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *stubFiles) Save(ctx context.Context, text string, opts gtts.Options, w io.Writer) (int64, error) {
	if named, ok := w.(interface{ Name() string }); ok {
		s.mu.Lock()
		s.paths = append(s.paths, named.Name())
		s.mu.Unlock()
	}
	if s.err != nil {
		return 0, s.err
	}
	n, err := w.Write(mp3Frame)
	return int64(n), err
}

func (s *stubFiles) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

type fixture struct {
	handler   http.Handler
	streaming *stubStreaming
	catalog   *stubCatalog
	files     *stubFiles
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{
		MaxTextLength:      5000,
		EdgeDefaultVoice:   "en-US-AriaNeural",
		GTTSDefaultLang:    "en",
		GTTSDefaultTLD:     "com",
		CORSAllowedOrigins: []string{"*"},
	}
	store, err := audio.NewTempStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		streaming: &stubStreaming{},
		catalog:   &stubCatalog{},
		files:     &stubFiles{},
	}
	svc := tts.NewService(cfg, f.streaming, f.catalog, f.files, store)

	mux := http.NewServeMux()
	NewAPI(svc).Register(mux)
	mux.HandleFunc("GET /panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	f.handler = Wrap(cfg, zerolog.Nop(), mux)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSpeak(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/edge-tts/speak", `{"text":"Hello world","voice":"en-US-GuyNeural","rate":"+10%","pitch":"-5Hz"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "inline; filename=speech.mp3", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, mp3Frame, rec.Body.Bytes())
}

func TestSpeakEscapesText(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/edge-tts/speak", `{"text":"Tom & Jerry <3 >"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.streaming.texts, 1)
	assert.Equal(t, "Tom &amp; Jerry &lt;3 &gt;", f.streaming.texts[0])
}

func TestSpeakBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty text", `{"text":""}`},
		{"whitespace text", `{"text":"   \n\t"}`},
		{"missing text", `{"voice":"en-US-AriaNeural"}`},
		{"malformed json", `{"text":`},
		{"not an object", `["hello"]`},
		{"no body", ``},
		{"bad rate", `{"text":"hi","rate":"fast"}`},
		{"bad pitch", `{"text":"hi","pitch":"high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(http.MethodPost, "/edge-tts/speak", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			body := decodeError(t, rec)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, rec.Header().Get(RequestIDHeader), body.RequestID)
			assert.Empty(t, f.streaming.texts)
		})
	}
}

func TestSpeakEngineFailureHidesCause(t *testing.T) {
	f := newFixture(t)
	f.streaming.err = errors.New("websocket handshake failed with status 403 secret-token")

	rec := f.do(http.MethodPost, "/edge-tts/speak", `{"text":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "speech synthesis failed", body.Error)
	assert.NotContains(t, rec.Body.String(), "secret-token")
	assert.NotEmpty(t, body.RequestID)
}

func TestRequestIDIsHonoured(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/edge-tts/speak", strings.NewReader(`{"text":""}`))
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", decodeError(t, rec).RequestID)
}

func TestListVoices(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"all", "/edge-tts/voices", []string{"en-US", "en-GB", "fr-FR"}},
		{"by language", "/edge-tts/voices/by-language/en", []string{"en-US", "en-GB"}},
		{"by language ignores case", "/edge-tts/voices/by-language/FR", []string{"fr-FR"}},
		{"by language no match", "/edge-tts/voices/by-language/de", []string{}},
		{"english", "/edge-tts/voices/english", []string{"en-US"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)

			var voices []tts.VoiceDescriptor
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &voices))
			require.NotNil(t, voices, "an empty result must be [] not null")

			locales := make([]string, 0, len(voices))
			for _, v := range voices {
				locales = append(locales, v.Locale)
			}
			assert.Equal(t, tt.want, locales)
		})
	}
}

func TestListVoicesJSONShape(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/edge-tts/voices/english", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, map[string]string{
		"name":            "Microsoft Server Speech Text to Speech Voice (en-US, AriaNeural)",
		"short_name":      "en-US-AriaNeural",
		"gender":          "Female",
		"locale":          "en-US",
		"suggested_codec": "audio-24khz-48kbitrate-mono-mp3",
		"friendly_name":   "Aria",
		"status":          "GA",
	}, raw[0])
}

func TestListVoicesFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = errors.New("dial tcp 10.0.0.1:443: i/o timeout")

	rec := f.do(http.MethodGet, "/edge-tts/voices", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to fetch voice list", decodeError(t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestSpeakToFile(t *testing.T) {
	for _, target := range []string{"/tts/?text=hello", "/tts?text=hello&lang=en&slow=false&tld=co.uk"} {
		t.Run(target, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(http.MethodGet, target, "")

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
			assert.Equal(t, "inline; filename=speech.mp3", rec.Header().Get("Content-Disposition"))
			assert.Equal(t, mp3Frame, rec.Body.Bytes())

			paths := f.files.recorded()
			require.Len(t, paths, 1)
			_, err := os.Stat(paths[0])
			assert.True(t, os.IsNotExist(err), "temp file must be gone after the response")
		})
	}
}

func TestSpeakToFileErrorsUseStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		target string
		engine error
		status int
	}{
		{"missing text", "/tts/", nil, http.StatusBadRequest},
		{"blank text", "/tts/?text=%20%20", nil, http.StatusBadRequest},
		{"bad slow", "/tts/?text=hi&slow=maybe", nil, http.StatusBadRequest},
		{"bad tld", "/tts/?text=hi&tld=evil.com%2Fx", nil, http.StatusBadRequest},
		{"engine failure", "/tts/?text=hi", errors.New("status 503"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.files.err = tt.engine

			rec := f.do(http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec).Error)

			for _, p := range f.files.recorded() {
				_, err := os.Stat(p)
				assert.True(t, os.IsNotExist(err), "temp file must be gone after a failure")
			}
		})
	}
}

func TestSpeakToFileConcurrentNamesAreDistinct(t *testing.T) {
	const n = 32
	f := newFixture(t)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			rec := f.do(http.MethodGet, fmt.Sprintf("/tts/?text=hello+%d", i), "")
			if rec.Code != http.StatusOK {
				return fmt.Errorf("request %d: status %d: %s", i, rec.Code, rec.Body.String())
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	paths := f.files.recorded()
	require.Len(t, paths, n)

	seen := make(map[string]struct{}, n)
	for _, p := range paths {
		seen[p] = struct{}{}
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err))
	}
	assert.Len(t, seen, n)
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/tts/voices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog struct {
		Languages []map[string]any `json:"languages"`
		Accents   []map[string]any `json:"accents"`
		Speeds    []map[string]any `json:"speeds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.Len(t, catalog.Languages, 12)
	assert.Len(t, catalog.Accents, 6)
	assert.Len(t, catalog.Speeds, 2)
	assert.Equal(t, map[string]any{"tld": "co.uk", "name": "British English", "lang": "en"}, catalog.Accents[1])
	assert.Equal(t, map[string]any{"value": true, "name": "Slow Speed"}, catalog.Speeds[1])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/edge-tts/speak", "").Code)
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/panic", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal server error", body.Error)
	assert.NotEmpty(t, body.RequestID)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/edge-tts/speak", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
