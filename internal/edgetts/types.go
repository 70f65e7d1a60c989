// Package edgetts is a client for the Microsoft Edge "read aloud" speech service:
// streaming synthesis over a websocket and the public voice catalog.
package edgetts

import (
	"errors"
	"time"
)

// Common Edge TTS errors
var (
	// ErrInvalidOption is returned when voice, rate, pitch or volume is malformed
	ErrInvalidOption = errors.New("invalid synthesis option")

	// ErrUnexpectedResponse is returned when the service breaks the protocol
	ErrUnexpectedResponse = errors.New("unexpected response from edge tts")
)

// Voice is one entry of the Edge voice catalog, as the service returns it
type Voice struct {
	Name           string   `json:"Name"`
	ShortName      string   `json:"ShortName"`
	Gender         string   `json:"Gender"`
	Locale         string   `json:"Locale"`
	SuggestedCodec string   `json:"SuggestedCodec"`
	FriendlyName   string   `json:"FriendlyName"`
	Status         string   `json:"Status"`
	VoiceTag       VoiceTag `json:"VoiceTag"`
}

// VoiceTag carries the optional descriptive tags of a voice
type VoiceTag struct {
	ContentCategories  []string `json:"ContentCategories"`
	VoicePersonalities []string `json:"VoicePersonalities"`
}

// Options configures one synthesis call
type Options struct {
	Voice  string // short ("en-US-AriaNeural") or full voice name
	Rate   string // e.g. "+0%", "-25%"
	Pitch  string // e.g. "+0Hz", "-10Hz"
	Volume string // e.g. "+0%"
}

// ChunkType identifies what a Chunk carries
type ChunkType string

const (
	ChunkAudio        ChunkType = "audio"
	ChunkWordBoundary ChunkType = "WordBoundary"
)

// Chunk is one item of a synthesis stream.
// The stream ends when the channel is closed; Err is set on the last chunk on failure.
type Chunk struct {
	Type ChunkType
	Data []byte // audio bytes, for ChunkAudio

	// Word boundary metadata, for ChunkWordBoundary
	Offset   time.Duration
	Duration time.Duration
	Text     string

	Err error
}
