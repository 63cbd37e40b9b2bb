package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openwetmap/mcp-bridge/internal/bridge"
	"github.com/openwetmap/mcp-bridge/internal/config"
	"github.com/openwetmap/mcp-bridge/internal/llmproxy"
)

func testConfig(transport string) config.BridgeConfig {
	var cfg config.BridgeConfig
	cfg.SetDefaults()
	cfg.Transport = transport
	return cfg
}

func newStreamBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSessionBackend(t *testing.T) *httptest.Server {
	t.Helper()
	submitted := make(chan []byte, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: endpoint\ndata: /messages/?session_id=abc\n\n")
		w.(http.Flusher).Flush()
		select {
		case body := <-submitted:
			if strings.Contains(string(body), `"id"`) {
				_, _ = fmt.Fprint(w, "event: message\ndata: {\"id\": 1, \"result\": [[1]]}\n\n")
				w.(http.Flusher).Flush()
			}
		case <-r.Context().Done():
			return
		}
		<-r.Context().Done()
	})
	mux.HandleFunc("/messages/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		submitted <- body
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newBridgeServer(t *testing.T, cfg config.BridgeConfig) *httptest.Server {
	t.Helper()
	b := bridge.New(bridge.Options{BaseURL: cfg.MCPBaseURL, Transport: cfg.Transport})
	srv := httptest.NewServer(New(cfg, b, nil, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	srv := newBridgeServer(t, cfg)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("got %d %q", resp.StatusCode, body)
	}
}

func TestStreamModeRelaysBackendVerbatim(t *testing.T) {
	backend := newStreamBackend(t)
	cfg := testConfig(config.TransportStream)
	cfg.MCPBaseURL = backend.URL
	srv := newBridgeServer(t, cfg)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if string(body) != `{"id":1,"method":"tools/list"}` {
		t.Fatalf("body: %s", body)
	}
}

func TestSessionModeNotificationScenario(t *testing.T) {
	backend := newSessionBackend(t)
	cfg := testConfig(config.TransportSSE)
	cfg.MCPBaseURL = backend.URL
	srv := newBridgeServer(t, cfg)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"method": "ping"}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d body: %s", resp.StatusCode, body)
	}
	if string(body) != `{"status":"accepted"}` {
		t.Fatalf("body: %s", body)
	}
}

func TestSessionModeRequestScenario(t *testing.T) {
	backend := newSessionBackend(t)
	cfg := testConfig(config.TransportSSE)
	cfg.MCPBaseURL = backend.URL
	srv := newBridgeServer(t, cfg)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"id": 1, "method": "query", "params": {"query": "SELECT 1"}}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d body: %s", resp.StatusCode, body)
	}
	if string(body) != `{"id": 1, "result": [[1]]}` {
		t.Fatalf("body: %s", body)
	}
}

func TestSessionModeRejectsInvalidJSON(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	srv := newBridgeServer(t, cfg)
	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"method":`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d", resp.StatusCode)
	}
}

func TestSessionModeBackendFailureIs500(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	backend := httptest.NewServer(http.NotFoundHandler())
	backend.Close()
	cfg.MCPBaseURL = backend.URL
	srv := newBridgeServer(t, cfg)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"id": 1, "method": "query"}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "error") {
		t.Fatalf("body: %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	srv := newBridgeServer(t, cfg)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/mcp", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing Access-Control-Allow-Origin")
	}
}

func TestChatRequiresAuthToken(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer upstream.Close()

	cfg := testConfig(config.TransportSSE)
	cfg.AuthToken = "sekret"
	b := bridge.New(bridge.Options{BaseURL: cfg.MCPBaseURL, Transport: cfg.Transport})
	lp := llmproxy.New(upstream.URL, "sk-test", nil)
	srv := httptest.NewServer(New(cfg, b, lp, nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/chat", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /chat with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointDefaultPort(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	srv := newBridgeServer(t, cfg)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointSeparatePort(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	cfg.MetricsAddr = ":9099"
	srv := newBridgeServer(t, cfg)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestStateEndpoint(t *testing.T) {
	cfg := testConfig(config.TransportSSE)
	srv := newBridgeServer(t, cfg)
	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	for _, want := range []string{`"transport":"sse"`, `"version"`, `"uptime_seconds"`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("state missing %s: %s", want, body)
		}
	}
}

func TestRequestTimeoutBoundsSessionCall(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Never produce the endpoint event.
		<-r.Context().Done()
	})
	backend := httptest.NewServer(mux)
	defer backend.Close()

	cfg := testConfig(config.TransportSSE)
	cfg.MCPBaseURL = backend.URL
	cfg.RequestTimeout = 100 * time.Millisecond
	srv := newBridgeServer(t, cfg)

	start := time.Now()
	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"id": 1, "method": "query"}`))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}
