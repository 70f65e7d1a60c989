package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/lexiqai/speech-gateway/internal/config"
	"github.com/lexiqai/speech-gateway/internal/observability"
	"github.com/lexiqai/speech-gateway/internal/tts"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// RequestIDHeader is read from clients and echoed on every response
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request id middleware
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Wrap applies the middleware chain shared by every route: CORS, request
// logger, request id, access log and panic recovery.
func Wrap(cfg *config.Config, logger zerolog.Logger, next http.Handler) http.Handler {
	h := recoverer(next)
	h = accessLog(h)
	h = requestID(h)
	h = hlog.NewHandler(logger)(h)
	return newCORS(cfg).Handler(h)
}

func newCORS(cfg *config.Config) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", RequestIDHeader},
		AllowCredentials: cfg.CORSAllowCredentials,
	})
}

// requestID honours a client supplied X-Request-ID or generates one, and tags
// the request logger with it
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = observability.NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)

		// a copy per request: the context logger may be the shared default one
		logger := observability.WithRequestID(zerolog.Ctx(r.Context()), id)
		ctx := logger.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessLog(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})(next)
}

// instrument records the request metrics of one route
func instrument(route string, next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		observability.RecordHTTPRequest(route, status, duration)
	})(next)
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hlog.FromRequest(r).Error().Interface("panic", rec).Msg("Recovered from panic")
			writeError(w, r, tts.ServiceError("http", "internal server error", errors.New("handler panicked")))
		}()
		next.ServeHTTP(w, r)
	})
}
