package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/openwetmap/mcp-bridge/internal/config"
	"github.com/openwetmap/mcp-bridge/internal/mcpcheck"
)

// Version is stamped by the build; see cmd/mcp-bridge.
var (
	Version = "dev"
	started = time.Now()
)

type hostState struct {
	MemoryTotalBytes  uint64  `json:"memory_total_bytes,omitempty"`
	MemoryUsedPercent float64 `json:"memory_used_percent,omitempty"`
	CPUPercent        float64 `json:"cpu_percent,omitempty"`
}

type stateResponse struct {
	Version       string           `json:"version"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Transport     string           `json:"transport"`
	Backend       string           `json:"backend"`
	Host          hostState        `json:"host"`
	Upstream      *mcpcheck.Result `json:"upstream,omitempty"`
}

// StateHandler reports the bridge's configuration, host usage and the last
// upstream probe outcome.
func StateHandler(cfg config.BridgeConfig, checker *mcpcheck.Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := stateResponse{
			Version:       Version,
			UptimeSeconds: time.Since(started).Seconds(),
			Transport:     cfg.Transport,
			Backend:       cfg.MCPBaseURL,
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			st.Host.MemoryTotalBytes = vm.Total
			st.Host.MemoryUsedPercent = vm.UsedPercent
		}
		if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
			st.Host.CPUPercent = pct[0]
		}
		if checker != nil {
			if res, ok := checker.LastResult(); ok {
				st.Upstream = &res
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
