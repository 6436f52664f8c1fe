package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgate/api/handlers"
)

func healthServer(t *testing.T, path string, code int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckServer(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		path       string
		code       int
		body       string
		wantOK     bool
		wantStatus string
	}{
		{
			name:       "healthy",
			path:       "/health",
			code:       http.StatusOK,
			body:       `{"status":"healthy","services":{"redis":{"status":"pass"}},"critical_services_down":[]}`,
			wantOK:     true,
			wantStatus: handlers.StatusHealthy,
		},
		{
			name:       "degraded still serves",
			path:       "/health",
			code:       http.StatusOK,
			body:       `{"status":"degraded","services":{"mongo":{"status":"fail","message":"timeout"}},"critical_services_down":[]}`,
			wantOK:     true,
			wantStatus: handlers.StatusDegraded,
		},
		{
			name:       "ready rejects degraded",
			ready:      true,
			path:       "/ready",
			code:       http.StatusServiceUnavailable,
			body:       `{"status":"degraded","services":{"mongo":{"status":"fail"}},"critical_services_down":[]}`,
			wantOK:     false,
			wantStatus: handlers.StatusDegraded,
		},
		{
			name:       "unhealthy",
			path:       "/health",
			code:       http.StatusServiceUnavailable,
			body:       `{"status":"unhealthy","services":{"database":{"status":"fail","critical":true}},"critical_services_down":["database"]}`,
			wantOK:     false,
			wantStatus: handlers.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := healthServer(t, tt.path, tt.code, tt.body)

			report, err := checkServer(context.Background(), srv.Client(), srv.URL+"/", tt.ready)
			require.NoError(t, err)
			assert.Equal(t, srv.URL+tt.path, report.Endpoint)
			assert.Equal(t, tt.code, report.Code)
			assert.Equal(t, tt.wantStatus, report.Body.Status)
			assert.Equal(t, tt.wantOK, report.OK())
		})
	}
}

func TestCheckServer_UnreadableBody(t *testing.T) {
	srv := healthServer(t, "/health", http.StatusBadGateway, "bad gateway")

	_, err := checkServer(context.Background(), srv.Client(), srv.URL, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestWriteHealthReport(t *testing.T) {
	var buf bytes.Buffer
	writeHealthReport(&buf, healthReport{
		Endpoint: "http://localhost:8000/health",
		Code:     http.StatusServiceUnavailable,
		Body: handlers.ServiceHealthResponse{
			Status: handlers.StatusUnhealthy,
			Services: map[string]handlers.CheckResult{
				"redis":    {Status: "pass", Latency: "1ms"},
				"database": {Status: "fail", Latency: "2s", Critical: true, Message: "dial tcp: refused"},
			},
			CriticalServicesDown: []string{"database"},
		},
	})

	want := "http://localhost:8000/health unhealthy (HTTP 503)\n" +
		"  database     fail 2s critical : dial tcp: refused\n" +
		"  redis        pass 1ms\n" +
		"critical down: database\n"
	assert.Equal(t, want, buf.String())
}
