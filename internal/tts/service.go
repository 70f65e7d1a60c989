package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/edgetts"
	"github.com/lexiqai/speech-gateway/internal/gtts"
	"github.com/lexiqai/speech-gateway/internal/observability"
)

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeText escapes the characters that would break the SSML document.
// The replacer works in one pass, so an escaped '&' is never escaped again.
func EscapeText(text string) string {
	return xmlEscaper.Replace(text)
}

// Service validates requests and drives the engines
type Service struct {
	streaming StreamingEngine
	catalog   VoiceCatalog
	files     FileEngine
	store     *audio.TempStore

	defaultVoice  string
	defaultLang   string
	defaultTLD    string
	maxTextLength int
}

// NewService wires the engines together with the request limits from cfg
func NewService(cfg *config.Config, streaming StreamingEngine, catalog VoiceCatalog, files FileEngine, store *audio.TempStore) *Service {
	return &Service{
		streaming:     streaming,
		catalog:       catalog,
		files:         files,
		store:         store,
		defaultVoice:  cfg.EdgeDefaultVoice,
		defaultLang:   cfg.GTTSDefaultLang,
		defaultTLD:    cfg.GTTSDefaultTLD,
		maxTextLength: cfg.MaxTextLength,
	}
}

// ListVoices fetches the live catalog and applies filter.
// The result is never nil so it encodes as an empty JSON array.
func (s *Service) ListVoices(ctx context.Context, filter VoiceFilter) ([]VoiceDescriptor, error) {
	const op = "list voices"

	voices, err := s.catalog.ListVoices(ctx)
	observability.RecordVoiceCatalog(err == nil)
	if err != nil {
		return nil, ServiceError(op, "failed to fetch voice list", err)
	}

	out := make([]VoiceDescriptor, 0, len(voices))
	for _, v := range voices {
		if filter.matches(v.Locale) {
			out = append(out, newVoiceDescriptor(v))
		}
	}
	return out, nil
}

// Speak synthesizes req with the streaming engine and returns the whole MP3 payload
func (s *Service) Speak(ctx context.Context, req SpeakRequest) ([]byte, error) {
	const op = "speak"

	text, err := s.checkText(op, req.Text)
	if err != nil {
		return nil, err
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = s.defaultVoice
	}
	opts := edgetts.Options{Voice: voice, Rate: req.Rate, Pitch: req.Pitch}
	if err := opts.Validate(); err != nil {
		return nil, ValidationError(op, err.Error())
	}

	logger := observability.FromContext(ctx)
	timer := observability.StartSynthesis(observability.EngineEdge)

	chunks, err := s.streaming.Stream(ctx, EscapeText(text), opts)
	if err != nil {
		timer.Done(false, 0)
		if errors.Is(err, edgetts.ErrInvalidOption) {
			return nil, ValidationError(op, err.Error())
		}
		return nil, ServiceError(op, "speech synthesis failed", err)
	}

	collector := audio.NewCollector(audio.DefaultMaxSize)
	var streamErr error
	// Drain to the end so the producer never blocks on an abandoned channel
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			streamErr = chunk.Err
		case streamErr != nil, chunk.Type != edgetts.ChunkAudio:
		default:
			if _, err := collector.Write(chunk.Data); err != nil {
				streamErr = err
			}
		}
	}

	if streamErr != nil {
		timer.Done(false, 0)
		return nil, ServiceError(op, "speech synthesis failed", streamErr)
	}
	if collector.IsEmpty() {
		timer.Done(false, 0)
		return nil, ServiceError(op, "no audio was received from the speech engine", nil)
	}

	timer.Done(true, int64(collector.Len()))
	logger.Debug().
		Str("voice", voice).
		Int("chunks", collector.Chunks()).
		Int("bytes", collector.Len()).
		Msg("Speech synthesized")

	return collector.Bytes(), nil
}

// SpeakToFile synthesizes req with the file engine into a fresh temp file,
// rewound and ready to be served. The caller must Release it.
func (s *Service) SpeakToFile(ctx context.Context, req FileRequest) (*audio.TempFile, error) {
	const op = "speak to file"

	text, err := s.checkText(op, req.Text)
	if err != nil {
		return nil, err
	}

	opts := gtts.Options{Lang: req.Lang, TLD: strings.TrimSpace(req.TLD)}
	if strings.TrimSpace(opts.Lang) == "" {
		opts.Lang = s.defaultLang
	}
	if opts.TLD == "" {
		opts.TLD = s.defaultTLD
	}
	if raw := strings.TrimSpace(req.Slow); raw != "" {
		slow, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, ValidationError(op, fmt.Sprintf("slow must be true or false, got %q", raw))
		}
		opts.Slow = slow
	}
	if err := opts.Validate(); err != nil {
		return nil, ValidationError(op, err.Error())
	}

	f, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, ServiceError(op, "failed to prepare audio file", err)
	}

	timer := observability.StartSynthesis(observability.EngineGoogle)
	n, err := s.files.Save(ctx, text, opts, f)
	if err == nil && n == 0 {
		err = errors.New("engine produced no audio")
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Release()
		timer.Done(false, 0)
		switch {
		case errors.Is(err, gtts.ErrEmptyText):
			return nil, ValidationError(op, "text has nothing to speak")
		case errors.Is(err, gtts.ErrInvalidOption):
			return nil, ValidationError(op, err.Error())
		}
		return nil, ServiceError(op, "speech synthesis failed", err)
	}

	timer.Done(true, n)
	return f, nil
}

// Catalog returns the static option catalog of the file engine
func (s *Service) Catalog() gtts.Catalog {
	return gtts.StaticCatalog()
}

// TempStore exposes the temp file store, for readiness checks
func (s *Service) TempStore() *audio.TempStore {
	return s.store
}

func (s *Service) checkText(op, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ValidationError(op, "text is required")
	}
	if s.maxTextLength > 0 {
		if n := utf8.RuneCountInString(text); n > s.maxTextLength {
			return "", ValidationError(op, fmt.Sprintf("text is too long: %d characters (max %d)", n, s.maxTextLength))
		}
	}
	return text, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
