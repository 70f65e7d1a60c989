package edgetts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/resilience"
)

// ticksPerDuration converts the service's 100ns offsets into time.Duration
const ticksPerDuration = 100

// Client talks to Edge TTS. It holds no per-call state and is safe for concurrent use.
type Client struct {
	wssURL       string
	voicesURL    string
	token        string
	outputFormat string
	timeout      time.Duration

	dialer         *websocket.Dialer
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig

	now func() time.Time
}

// NewClient creates a new Edge TTS client
func NewClient(cfg *config.Config) *Client {
	timeout := config.Seconds(cfg.EdgeTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		wssURL:       cfg.EdgeWSSURL,
		voicesURL:    cfg.EdgeVoicesURL,
		token:        cfg.EdgeTrustedClientToken,
		outputFormat: cfg.EdgeOutputFormat,
		timeout:      timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		httpClient: &http.Client{Timeout: timeout},
		circuitBreaker: resilience.NewCircuitBreaker(
			observability.EngineEdge,
			cfg.CircuitBreakerMaxFailures,
			config.Seconds(cfg.CircuitBreakerResetTimeout),
		),
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		now: time.Now,
	}
}

// Ready reports the engine as unready while its circuit is open
func (c *Client) Ready(ctx context.Context) (bool, error) {
	return c.circuitBreaker.Ready(ctx)
}

// Stream synthesizes text (already XML-escaped) and streams audio and word boundary chunks.
// Invalid options are reported synchronously; everything else arrives as the Err
// of the final chunk. The channel is always closed.
func (c *Client) Stream(ctx context.Context, text string, opts Options) (<-chan Chunk, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	pieces := SplitText(RemoveIncompatibleCharacters(text), maxPieceBytes)
	chunks := make(chan Chunk, 16)

	go func() {
		defer close(chunks)

		err := c.guard(func() error {
			var compensation time.Duration
			for i, piece := range pieces {
				pieceCtx, cancel := context.WithTimeout(ctx, c.timeout)
				var err error
				compensation, err = c.streamPiece(pieceCtx, piece, opts, compensation, chunks)
				cancel()
				if err != nil {
					return fmt.Errorf("piece %d/%d: %w", i+1, len(pieces), err)
				}
			}
			return nil
		})
		if err != nil {
			select {
			case chunks <- Chunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

// streamPiece runs one websocket turn and returns the offset compensation for the next piece
func (c *Client) streamPiece(
	ctx context.Context, text string, opts Options, compensation time.Duration, out chan<- Chunk,
) (time.Duration, error) {
	logger := observability.FromContext(ctx)
	connID := connectionID()

	conn, resp, err := c.dialer.DialContext(ctx, c.streamURL(connID), c.streamHeaders())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return compensation, fmt.Errorf("websocket handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return compensation, fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the request goes away
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	now := c.now()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(speechConfigMessage(now, c.outputFormat))); err != nil {
		return compensation, c.connErr(ctx, "failed to send speech config", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(ssmlMessage(now, connID, buildSSML(text, opts)))); err != nil {
		return compensation, c.connErr(ctx, "failed to send ssml", err)
	}

	logger.Debug().Str("connection_id", connID).Int("text_bytes", len(text)).Msg("Edge TTS turn started")

	next := compensation
	audioReceived := false

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return next, c.connErr(ctx, "connection closed before turn.end", err)
		}

		switch msgType {
		case websocket.TextMessage:
			headers, body := parseTextFrame(data)
			switch headers["Path"] {
			case "turn.start", "response":
			case "audio.metadata":
				var meta metadataMessage
				if err := json.Unmarshal(body, &meta); err != nil {
					return next, fmt.Errorf("%w: bad audio.metadata: %v", ErrUnexpectedResponse, err)
				}
				for _, m := range meta.Metadata {
					if ChunkType(m.Type) != ChunkWordBoundary {
						continue
					}
					chunk := Chunk{
						Type:     ChunkWordBoundary,
						Offset:   time.Duration(m.Data.Offset*ticksPerDuration) + compensation,
						Duration: time.Duration(m.Data.Duration * ticksPerDuration),
						Text:     m.Data.Text.Text,
					}
					next = chunk.Offset + chunk.Duration
					if err := send(ctx, out, chunk); err != nil {
						return next, err
					}
				}
			case "turn.end":
				logger.Debug().Str("connection_id", connID).Bool("audio", audioReceived).Msg("Edge TTS turn finished")
				return next, nil
			default:
				return next, fmt.Errorf("%w: unknown path %q", ErrUnexpectedResponse, headers["Path"])
			}

		case websocket.BinaryMessage:
			headers, payload, err := parseBinaryFrame(data)
			if err != nil {
				return next, err
			}
			if headers["Path"] != "audio" {
				return next, fmt.Errorf("%w: binary frame with path %q", ErrUnexpectedResponse, headers["Path"])
			}
			if len(payload) == 0 {
				continue
			}
			audioReceived = true
			if err := send(ctx, out, Chunk{Type: ChunkAudio, Data: payload}); err != nil {
				return next, err
			}
		}
	}
}

func send(ctx context.Context, out chan<- Chunk, chunk Chunk) error {
	select {
	case out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// connErr prefers the context error when the connection was torn down by cancellation
func (c *Client) connErr(ctx context.Context, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", msg, ctxErr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (c *Client) streamURL(connID string) string {
	q := url.Values{}
	q.Set("TrustedClientToken", c.token)
	q.Set("ConnectionId", connID)
	q.Set("Sec-MS-GEC", SecMSGEC(c.now(), c.token))
	q.Set("Sec-MS-GEC-Version", SecMSGECVersion)
	return withQuery(c.wssURL, q)
}

func (c *Client) streamHeaders() http.Header {
	h := http.Header{}
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache")
	h.Set("Origin", extensionOrigin)
	h.Set("User-Agent", userAgent)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	return h
}

// ListVoices fetches the whole voice catalog. The GET is idempotent and is retried
// on transient network failures.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var voices []Voice

	err := resilience.Retry(ctx, func(ctx context.Context) error {
		return c.guard(func() error {
			var err error
			voices, err = c.fetchVoices(ctx)
			return err
		})
	}, c.retryConfig, func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && resilience.IsRetryableNetworkError(err)
	})
	if err != nil {
		return nil, err
	}
	return voices, nil
}

func (c *Client) fetchVoices(ctx context.Context) ([]Voice, error) {
	q := url.Values{}
	q.Set("trustedclienttoken", c.token)
	q.Set("Sec-MS-GEC", SecMSGEC(c.now(), c.token))
	q.Set("Sec-MS-GEC-Version", SecMSGECVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, withQuery(c.voicesURL, q), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("voice list returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, resilience.NewRetryableError(err)
		}
		return nil, err
	}

	var voices []Voice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("%w: failed to decode voice list: %v", ErrUnexpectedResponse, err)
	}
	return voices, nil
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

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + q.Encode()
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
