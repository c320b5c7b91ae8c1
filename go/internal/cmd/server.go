package main

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/aeroduel/arena/go/internal/api"
	"github.com/aeroduel/arena/go/internal/config"
	"github.com/aeroduel/arena/go/internal/metrics"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register the JSON API behind the per-client rate limit
	registerAPI(mux, cfg, services)

	// Register WebSocket routes
	services.Gateway.RegisterRoutes(mux)

	// Prometheus scrape endpoint
	mux.Handle("GET /metrics", metrics.NewMetricsHandler())

	// Add health check endpoint
	setupHealthCheck(mux)

	// Wrap with CORS
	handler := c.Handler(api.Recover(mux))

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerAPI(mux *http.ServeMux, cfg config.Config, services *Services) {
	apiMux := http.NewServeMux()
	services.API.RegisterRoutes(apiMux)

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	mux.Handle("/api/", limiter.Middleware(apiMux))
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
