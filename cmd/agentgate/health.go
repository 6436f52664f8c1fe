package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BaSui01/agentgate/api/handlers"
)

// =============================================================================
// 🏥 health 命令
// =============================================================================

// healthReport 一次检查的结果
type healthReport struct {
	Endpoint string
	Code     int
	Body     handlers.ServiceHealthResponse
}

// OK 服务可接流量；/health 下 degraded 仍算可用
func (r healthReport) OK() bool {
	return r.Code == http.StatusOK && r.Body.Status != handlers.StatusUnhealthy
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8000", "AgentGate base URL")
	ready := fs.Bool("ready", false, "Query /ready (every dependency must pass) instead of /health")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	asJSON := fs.Bool("json", false, "Print the raw JSON report")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := checkServer(ctx, http.DefaultClient, *addr, *ready)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report.Body)
	} else {
		writeHealthReport(os.Stdout, report)
	}
	if !report.OK() {
		os.Exit(1)
	}
}

// checkServer 请求 /health 或 /ready 并解析依赖状态
func checkServer(ctx context.Context, client *http.Client, addr string, ready bool) (healthReport, error) {
	endpoint := strings.TrimRight(addr, "/") + "/health"
	if ready {
		endpoint = strings.TrimRight(addr, "/") + "/ready"
	}
	report := healthReport{Endpoint: endpoint}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return report, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return report, err
	}
	defer resp.Body.Close()

	report.Code = resp.StatusCode
	// 200 与 503 都带状态体
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&report.Body); err != nil {
		return report, fmt.Errorf("%s: status %d, unreadable body: %w", endpoint, resp.StatusCode, err)
	}
	return report, nil
}

// writeHealthReport 按依赖名排序输出
func writeHealthReport(w io.Writer, r healthReport) {
	fmt.Fprintf(w, "%s %s (HTTP %d)\n", r.Endpoint, r.Body.Status, r.Code)

	names := make([]string, 0, len(r.Body.Services))
	for name := range r.Body.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := r.Body.Services[name]
		line := fmt.Sprintf("  %-12s %-4s %s", name, res.Status, res.Latency)
		if res.Critical {
			line += " critical"
		}
		if res.Message != "" {
			line += " : " + res.Message
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	if len(r.Body.CriticalServicesDown) > 0 {
		fmt.Fprintf(w, "critical down: %s\n", strings.Join(r.Body.CriticalServicesDown, ", "))
	}
}
