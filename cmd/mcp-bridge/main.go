package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openwetmap/mcp-bridge/internal/bridge"
	"github.com/openwetmap/mcp-bridge/internal/config"
	"github.com/openwetmap/mcp-bridge/internal/llmproxy"
	"github.com/openwetmap/mcp-bridge/internal/logx"
	"github.com/openwetmap/mcp-bridge/internal/mcpcheck"
	"github.com/openwetmap/mcp-bridge/internal/metrics"
	"github.com/openwetmap/mcp-bridge/internal/server"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

const upstreamCheckInterval = 30 * time.Second

// configFileFromArgs pre-scans os.Args for --config so the file can be loaded
// before the remaining flags are bound over its values.
func configFileFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(a) > 9 && a[:9] == "--config=":
			return a[9:]
		case len(a) > 8 && a[:8] == "-config=":
			return a[8:]
		}
	}
	return ""
}

func loadConfig() config.BridgeConfig {
	var cfg config.BridgeConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if path := configFileFromArgs(os.Args[1:]); path != "" {
		cfg.ConfigFile = path
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	// Env wins over the file; flags win over both.
	cfg.ApplyEnv()
	return cfg
}

func runCheck(cfg config.BridgeConfig) int {
	checker := mcpcheck.New(cfg.MCPBaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := checker.Check(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	if err != nil {
		return 1
	}
	return 0
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	checkOnly := flag.Bool("check", false, "probe the MCP backend, print the result and exit")
	cfg := loadConfig()
	cfg.BindFlagsFromCurrent()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "mcp-bridge version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("mcp-bridge version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	if *checkOnly {
		os.Exit(runCheck(cfg))
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)
	server.Version = version

	b := bridge.New(bridge.Options{
		BaseURL:   cfg.MCPBaseURL,
		Transport: cfg.Transport,
	})
	var lp *llmproxy.Proxy
	if cfg.LLMBaseURL != "" {
		lp = llmproxy.New(cfg.LLMBaseURL, cfg.LLMAPIKey, nil)
		logx.Log.Info().Str("endpoint", lp.Endpoint()).Msg("llm proxy enabled")
	}
	checker := mcpcheck.New(cfg.MCPBaseURL)

	handler := server.New(cfg, b, lp, checker)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(upstreamCheckInterval)
		defer ticker.Stop()
		for {
			if res, err := checker.Check(ctx); err != nil {
				logx.Log.Debug().Err(err).Msg("upstream check failed")
			} else {
				logx.Log.Debug().Str("transport", string(res.WorkingTransport)).Int("tools", res.ToolsCount).Msg("upstream check ok")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("shutdown requested; draining")
		go func() {
			<-sigCh
			logx.Log.Warn().Msg("second signal; terminating immediately")
			cancel()
		}()
		shutdownCtx := context.Background()
		if cfg.DrainTimeout > 0 {
			var c context.CancelFunc
			shutdownCtx, c = context.WithTimeout(shutdownCtx, cfg.DrainTimeout)
			defer c()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
		cancel()
	}()

	if cfg.AuthToken != "" {
		logx.Log.Info().Msg("bearer auth enabled on /chat")
	}
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	logx.Log.Info().Int("port", cfg.Port).Str("transport", cfg.Transport).Str("backend", cfg.MCPBaseURL).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
