// Request scoped middleware.

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/ksid"

	"github.com/maruel/insertd/internal/auth"
	"github.com/maruel/insertd/internal/server/dto"
	"github.com/maruel/insertd/internal/server/reqctx"
)

// statusRecorder remembers the status written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// withRequest assigns a request id, resolves the bearer token into an actor
// and logs one line per request. Requests without a token are anonymous; a
// token that matches nothing is rejected.
func withRequest(a *auth.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID()
		ctx := reqctx.WithRequestID(r.Context(), id)
		w.Header().Set("X-Request-Id", id.String())
		rec := &statusRecorder{ResponseWriter: w}
		var actorID string
		defer func() {
			slog.InfoContext(ctx, "http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"dur", time.Since(start).Round(time.Microsecond),
				"id", id,
				"actor", actorID,
				"ip", reqctx.GetClientIP(r),
			)
		}()

		if r.Method != http.MethodOptions {
			actor, err := a.Actor(r)
			if err != nil {
				slog.InfoContext(ctx, "Rejected bearer token", "err", err)
				writeErrorResponse(rec, dto.Unauthorized("Invalid token"))
				return
			}
			ctx = reqctx.WithActor(ctx, actor)
			actorID = actor.ID()
		}
		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// withCORS adds permissive CORS headers when enabled.
func withCORS(enabled bool, next http.Handler) http.Handler {
	if !enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "content-type,authorization")
		h.Set("Access-Control-Allow-Methods", "POST")
		next.ServeHTTP(w, r)
	})
}

// preflight answers CORS preflight requests.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
