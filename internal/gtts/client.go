// Package gtts is a client for the Google Translate text-to-speech RPC,
// the engine behind the file-based synthesis endpoint.
package gtts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lexiqai/speech-gateway/internal/audio"
	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/resilience"
	"golang.org/x/time/rate"
)

const (
	rpcID        = "jQ1olc"
	batchPath    = "/_/TranslateWebserverUi/data/batchexecute"
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"
	maxBodyBytes = 10 * 1024 * 1024
)

// Common gTTS errors
var (
	// ErrInvalidOption is returned for a malformed language or accent domain
	ErrInvalidOption = errors.New("invalid synthesis option")

	// ErrEmptyText is returned when nothing speakable is left after tokenizing
	ErrEmptyText = errors.New("no text to speak")

	// ErrUnexpectedResponse is returned when the RPC answer carries no audio
	ErrUnexpectedResponse = errors.New("unexpected response from google tts")
)

var (
	audioPattern = regexp.MustCompile(`jQ1olc","\[\\"(.*)\\"\]`)
	langPattern  = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,4})?$`)
	tldPattern   = regexp.MustCompile(`^[a-z]{2,3}(\.[a-z]{2,3})?$`)
)

// languageFallbacks maps languages the engine does not speak to the closest one it does
var languageFallbacks = map[string]string{
	"ne":    "hi", // Nepali -> Hindi, same script
	"zh-cn": "zh-CN",
	"zh-tw": "zh-TW",
}

// Options configures one synthesis call
type Options struct {
	Lang string // language code, e.g. "en"
	Slow bool   // slower speech
	TLD  string // accent domain, e.g. "co.uk"
}

// ResolveLanguage lower-cases lang and applies the engine fallbacks
func ResolveLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if fallback, ok := languageFallbacks[strings.ToLower(lang)]; ok {
		return fallback
	}
	if i := strings.Index(lang, "-"); i >= 0 {
		return strings.ToLower(lang[:i]) + "-" + strings.ToUpper(lang[i+1:])
	}
	return strings.ToLower(lang)
}

// Validate checks lang and tld. The tld becomes part of the upstream host name.
func (o Options) Validate() error {
	if !langPattern.MatchString(ResolveLanguage(o.Lang)) {
		return fmt.Errorf("%w: language %q", ErrInvalidOption, o.Lang)
	}
	if !tldPattern.MatchString(o.TLD) {
		return fmt.Errorf("%w: accent domain %q", ErrInvalidOption, o.TLD)
	}
	return nil
}

// Client talks to Google Translate TTS. Safe for concurrent use. The rate
// limiter spends one token per Save call, never per part, and its burst is the
// whole per-minute budget, so a request only waits once that budget is spent.
type Client struct {
	hostTemplate   string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	circuitBreaker *resilience.CircuitBreaker
}

// NewClient creates a new gTTS client
func NewClient(cfg *config.Config) *Client {
	timeout := config.Seconds(cfg.GTTSTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	perMinute := cfg.GTTSRequestsPerMinute
	if perMinute <= 0 {
		perMinute = 50
	}

	return &Client{
		hostTemplate: cfg.GTTSHostTemplate,
		httpClient:   &http.Client{Timeout: timeout},
		rateLimiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		circuitBreaker: resilience.NewCircuitBreaker(
			observability.EngineGoogle,
			cfg.CircuitBreakerMaxFailures,
			config.Seconds(cfg.CircuitBreakerResetTimeout),
		),
	}
}

// Ready reports the engine as unready while its circuit is open
func (c *Client) Ready(ctx context.Context) (bool, error) {
	return c.circuitBreaker.Ready(ctx)
}

// Save synthesizes text and writes the MP3 stream to w, returning the bytes written.
// Synthesis is not retried: a failed part fails the whole call.
func (c *Client) Save(ctx context.Context, text string, opts Options, w io.Writer) (int64, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	lang := ResolveLanguage(opts.Lang)

	parts := Tokenize(text)
	if len(parts) == 0 {
		return 0, ErrEmptyText
	}

	logger := observability.FromContext(ctx)
	endpoint := c.endpoint(opts.TLD)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	var written int64
	err := c.guard(func() error {
		for i, part := range parts {
			payload, err := c.synthesizePart(ctx, endpoint, part, lang, opts.Slow)
			if err != nil {
				return fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
			}
			if i == 0 && !audio.IsMPEGAudio(payload) {
				return fmt.Errorf("%w: payload is not mpeg audio", ErrUnexpectedResponse)
			}

			n, err := w.Write(payload)
			written += int64(n)
			if err != nil {
				return fmt.Errorf("failed to write audio: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return written, err
	}

	logger.Debug().
		Str("lang", lang).
		Str("tld", opts.TLD).
		Int("parts", len(parts)).
		Int64("bytes", written).
		Msg("Google TTS synthesis finished")
	return written, nil
}

// endpoint returns the batchexecute URL on the accent domain
func (c *Client) endpoint(tld string) string {
	return strings.ReplaceAll(c.hostTemplate, "{tld}", tld) + batchPath
}

// synthesizePart runs one batchexecute RPC and returns the decoded audio
func (c *Client) synthesizePart(ctx context.Context, endpoint, text, lang string, slow bool) ([]byte, error) {
	body, err := packageRPC(text, lang, slow)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "http://translate.google.com/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("google tts returned status %d", resp.StatusCode)
	}

	return decodeResponse(io.LimitReader(resp.Body, maxBodyBytes))
}

// packageRPC builds the form body: f.req holds the RPC envelope, whose
// argument list is itself JSON encoded.
func packageRPC(text, lang string, slow bool) (string, error) {
	var speed any // null is normal speed
	if slow {
		speed = true
	}

	args, err := json.Marshal([]any{text, lang, speed, "null"})
	if err != nil {
		return "", fmt.Errorf("failed to encode rpc arguments: %w", err)
	}
	envelope, err := json.Marshal([][][]any{{{rpcID, string(args), nil, "generic"}}})
	if err != nil {
		return "", fmt.Errorf("failed to encode rpc: %w", err)
	}
	return "f.req=" + url.QueryEscape(string(envelope)) + "&", nil
}

// decodeResponse finds the jQ1olc line and decodes its base64 audio
func decodeResponse(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBodyBytes)

	var out bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, rpcID) {
			continue
		}
		m := audioPattern.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("%w: rpc answer without audio", ErrUnexpectedResponse)
		}
		decoded, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 audio: %v", ErrUnexpectedResponse, err)
		}
		out.Write(decoded)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: no audio in response", ErrUnexpectedResponse)
	}
	return out.Bytes(), nil
}

// guard runs fn through the circuit breaker and mirrors its state into metrics
func (c *Client) guard(fn func() error) error {
	err := c.circuitBreaker.Call(fn)
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) && !resilience.IsCallerCancellation(err) {
		observability.IncrementCircuitBreakerFailures(c.circuitBreaker.Name())
	}
	observability.UpdateCircuitBreakerState(c.circuitBreaker.Name(), int(c.circuitBreaker.GetState()))
	return err
}
