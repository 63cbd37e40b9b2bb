package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openwetmap/mcp-bridge/internal/bridge"
	"github.com/openwetmap/mcp-bridge/internal/config"
	"github.com/openwetmap/mcp-bridge/internal/llmproxy"
	"github.com/openwetmap/mcp-bridge/internal/mcpcheck"
)

// New constructs the HTTP handler for the bridge server.
func New(cfg config.BridgeConfig, b *bridge.Bridge, lp *llmproxy.Proxy, checker *mcpcheck.Checker) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}
	for _, m := range middlewareChain() {
		r.Use(m)
	}

	r.Post("/mcp", MCPHandler(b, cfg.RequestTimeout))
	r.Options("/mcp", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if lp != nil {
		r.Group(func(g chi.Router) {
			if cfg.AuthToken != "" {
				g.Use(BearerSecretMiddleware(cfg.AuthToken))
			}
			g.Post("/chat", lp.ServeHTTP)
		})
		r.Options("/chat", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/state", StateHandler(cfg, checker))

	if cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
