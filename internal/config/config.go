package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport values accepted for BridgeConfig.Transport.
const (
	TransportSSE    = "sse"
	TransportStream = "stream"
)

// BridgeConfig holds configuration for the mcp-bridge server.
type BridgeConfig struct {
	Port           int            `yaml:"port"`
	MetricsAddr    string         `yaml:"metrics_port"`
	LogLevel       string         `yaml:"log_level"`
	ConfigFile     string         `yaml:"-"`
	MCPBaseURL     string         `yaml:"mcp_base_url"`
	Transport      string         `yaml:"transport"`
	LLMBaseURL     string         `yaml:"llm_base_url"`
	LLMAPIKey      string         `yaml:"-"`
	AuthToken      string         `yaml:"-"`
	RequestTimeout time.Duration  `yaml:"request_timeout"`
	DrainTimeout   time.Duration  `yaml:"drain_timeout"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
}

// SetDefaults initializes c with built-in defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.MCPBaseURL == "" {
		c.MCPBaseURL = "http://localhost:8001"
	}
	if c.Transport == "" {
		c.Transport = TransportSSE
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 5 * time.Minute
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("bridge.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *BridgeConfig) ApplyEnv() {
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		c.ConfigFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	} else if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if v := os.Getenv("MCP_SERVER_BASE_URL"); v != "" {
		c.MCPBaseURL = v
	}
	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		c.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLMAPIKey = v
	}
	if v := os.Getenv("PROXY_AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RequestTimeout = time.Duration(f * float64(time.Second))
		}
	}
	if v := os.Getenv("DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
}

// BindFlagsFromCurrent binds command line flags using the current config values as defaults.
func (c *BridgeConfig) BindFlagsFromCurrent() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "bridge config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the value of --port")
	flag.StringVar(&c.MCPBaseURL, "mcp-base-url", c.MCPBaseURL, "base URL of the MCP backend")
	flag.StringVar(&c.Transport, "transport", c.Transport, "MCP transport mode (sse or stream)")
	flag.StringVar(&c.LLMBaseURL, "llm-base-url", c.LLMBaseURL, "base URL of the OpenAI-compatible LLM endpoint; leave empty to disable /chat")
	flag.StringVar(&c.AuthToken, "auth-token", c.AuthToken, "bearer token required on /chat; leave empty to disable auth")
	flag.Func("request-timeout", "end-to-end timeout in seconds for one forwarded message", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight requests on shutdown (0 to exit immediately)")
	flag.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Validate reports configuration values that cannot be acted on.
func (c *BridgeConfig) Validate() error {
	switch c.Transport {
	case TransportSSE, TransportStream:
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", c.Transport, TransportSSE, TransportStream)
	}
	if c.MCPBaseURL == "" {
		return fmt.Errorf("mcp_base_url is required")
	}
	return nil
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
