// Package tts is the synthesis service behind the HTTP API: it validates
// requests, drives the engines and hands back audio.
package tts

import (
	"context"
	"io"

	"github.com/lexiqai/speech-gateway/internal/edgetts"
	"github.com/lexiqai/speech-gateway/internal/gtts"
)

// StreamingEngine synthesizes text into a stream of audio and metadata chunks
type StreamingEngine interface {
	Stream(ctx context.Context, text string, opts edgetts.Options) (<-chan edgetts.Chunk, error)
}

// VoiceCatalog lists the voices of the streaming engine
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]edgetts.Voice, error)
}

// FileEngine synthesizes text and writes the whole audio stream to w
type FileEngine interface {
	Save(ctx context.Context, text string, opts gtts.Options, w io.Writer) (int64, error)
}

// SpeakRequest is the body of POST /edge-tts/speak
type SpeakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Rate  string `json:"rate"`
	Pitch string `json:"pitch"`
}

// FileRequest carries the query of GET /tts/. Slow is kept raw so that
// parsing it is part of validation.
type FileRequest struct {
	Text string
	Lang string
	Slow string
	TLD  string
}

// VoiceDescriptor is the public shape of one catalog voice
type VoiceDescriptor struct {
	Name           string `json:"name"`
	ShortName      string `json:"short_name"`
	Gender         string `json:"gender"`
	Locale         string `json:"locale"`
	SuggestedCodec string `json:"suggested_codec"`
	FriendlyName   string `json:"friendly_name"`
	Status         string `json:"status"`
}

// VoiceFilter selects catalog voices. The zero value keeps every voice.
type VoiceFilter struct {
	LocalePrefix string // case-insensitive prefix, e.g. "en"
	ExactLocale  string // exact match, e.g. "en-US"
}

func (f VoiceFilter) matches(locale string) bool {
	if f.ExactLocale != "" && locale != f.ExactLocale {
		return false
	}
	if f.LocalePrefix != "" && !hasPrefixFold(locale, f.LocalePrefix) {
		return false
	}
	return true
}

func newVoiceDescriptor(v edgetts.Voice) VoiceDescriptor {
	return VoiceDescriptor{
		Name:           v.Name,
		ShortName:      v.ShortName,
		Gender:         v.Gender,
		Locale:         v.Locale,
		SuggestedCodec: v.SuggestedCodec,
		FriendlyName:   v.FriendlyName,
		Status:         v.Status,
	}
}
