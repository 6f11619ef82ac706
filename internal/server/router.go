// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/insertd/internal/server/handlers"
	"github.com/maruel/insertd/internal/server/ratelimit"
)

// Config holds the HTTP layer settings.
type Config struct {
	Version string
	// CORS adds permissive CORS headers to every response.
	CORS bool
	// MaxRequestBodyBytes limits write bodies. 0 means unlimited.
	MaxRequestBodyBytes int64
	// MaxBatchRows limits rows per write. 0 means unlimited.
	MaxBatchRows int
	// RateLimits may be nil.
	RateLimits *ratelimit.Config
	// Metrics serves GET /-/metrics when set.
	Metrics http.Handler
}

// NewRouter creates and configures the HTTP router.
//
//	POST    /-/insert/{database}/{table}  insert, ?pk= and ?alter= optional
//	POST    /-/upsert/{database}/{table}  upsert, ?pk= required
//	POST    /-/update/{database}/{table}  insert-with-replace, never alters
//	OPTIONS on the three routes above     CORS preflight
//	GET     /-/health
//	GET     /-/metrics                    when a Prometheus backend is set
func NewRouter(svc *handlers.Services, cfg *Config) http.Handler {
	mux := &http.ServeMux{}
	wh := handlers.NewWriteHandler(svc, cfg.MaxBatchRows)
	hh := handlers.NewHealthHandler(cfg.Version)

	mux.Handle("GET /-/health", Wrap(hh.Health, cfg))

	mux.Handle("POST /-/insert/{database}/{table}", Wrap(wh.Insert, cfg))
	mux.Handle("POST /-/upsert/{database}/{table}", Wrap(wh.Upsert, cfg))
	mux.Handle("POST /-/update/{database}/{table}", Wrap(wh.Update, cfg))
	for _, verb := range []string{"insert", "upsert", "update"} {
		mux.HandleFunc("OPTIONS /-/"+verb+"/{database}/{table}", preflight)
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /-/metrics", cfg.Metrics)
	}
	return withCORS(cfg.CORS, withRequest(svc.Auth, mux))
}
