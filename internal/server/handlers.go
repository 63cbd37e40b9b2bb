package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/openwetmap/mcp-bridge/internal/bridge"
	"github.com/openwetmap/mcp-bridge/internal/logx"
	"github.com/openwetmap/mcp-bridge/internal/metrics"
)

// MCPHandler accepts one JSON-RPC shaped message and forwards it to the
// backend using the configured transport strategy.
func MCPHandler(b *bridge.Bridge, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body")
			return
		}
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		defer func() { metrics.ObserveRequestDuration(b.Transport(), time.Since(start)) }()

		switch b.Transport() {
		case bridge.TransportStream:
			res, err := b.Direct().Forward(ctx, body)
			if err != nil {
				logx.Log.Error().Err(err).Msg("direct forward failed")
				metrics.RecordBridgeRequest(b.Transport(), false)
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			metrics.RecordBridgeRequest(b.Transport(), true)
			w.Header().Set("Content-Type", res.ContentType)
			w.WriteHeader(res.StatusCode)
			_, _ = w.Write(res.Body)
		default:
			msg, err := bridge.ParseMessage(body)
			if err != nil {
				metrics.RecordBridgeRequest(b.Transport(), false)
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			result, err := b.Session().Forward(ctx, msg)
			if err != nil {
				logx.Log.Error().Err(err).Msg("session forward failed")
				metrics.RecordBridgeRequest(b.Transport(), false)
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			metrics.RecordBridgeRequest(b.Transport(), true)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(result)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
