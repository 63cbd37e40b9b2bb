package llmproxy

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openwetmap/mcp-bridge/internal/logx"
	"github.com/openwetmap/mcp-bridge/internal/metrics"
)

// Some models are very slow; keep the upstream timeout generous.
const defaultTimeout = 5 * time.Minute

// Proxy forwards chat-completions requests to an OpenAI-compatible endpoint,
// injecting the upstream API key from configuration so it never reaches the
// browser. The request and response bodies are relayed verbatim.
type Proxy struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// New creates a Proxy for the given LLM base URL. The chat completions path
// is always appended to the base.
func New(baseURL, apiKey string, client *http.Client) *Proxy {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Proxy{
		endpoint: strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:   apiKey,
		client:   client,
	}
}

// Endpoint returns the resolved upstream URL.
func (p *Proxy) Endpoint() string { return p.endpoint }

// ServeHTTP relays the request body to the upstream endpoint.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.apiKey == "" {
		logx.Log.Error().Msg("llm api key not configured")
		metrics.RecordLLMRequest(false)
		writeError(w, http.StatusInternalServerError, "llm api key not configured on server")
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.endpoint, r.Body)
	if err != nil {
		metrics.RecordLLMRequest(false)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.client.Do(req)
	if err != nil {
		logx.Log.Error().Err(err).Str("endpoint", p.endpoint).Msg("llm request failed")
		metrics.RecordLLMRequest(false)
		writeError(w, http.StatusBadGateway, "llm request failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logx.Log.Warn().Err(err).Msg("relay llm response")
	}
	metrics.RecordLLMRequest(resp.StatusCode < 400)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
