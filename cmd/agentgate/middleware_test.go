package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgate/config"
	"github.com/BaSui01/agentgate/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesClientID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-client")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "req-client", seen)
	assert.Equal(t, "req-client", w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

// =============================================================================
// 🔐 Identity
// =============================================================================

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

type identityProbe struct {
	identity types.Identity
	hasID    bool
	token    string
	called   bool
}

func (p *identityProbe) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.called = true
		p.identity, p.hasID = types.IdentityFrom(r.Context())
		p.token, _ = types.Token(r.Context())
	})
}

func TestIdentity(t *testing.T) {
	claims := jwt.MapClaims{
		"userId":   float64(5000259879),
		"account":  "zhangsan",
		"realname": "张三",
		"exp":      float64(time.Now().Add(time.Hour).Unix()),
	}

	tests := []struct {
		name       string
		cfg        config.AuthConfig
		cookie     string
		bearer     string
		path       string
		wantStatus int
		wantCalled bool
		wantID     bool
	}{
		{
			name:       "verified cookie",
			cfg:        config.AuthConfig{CookieName: "token", Secret: "s3cret"},
			cookie:     signToken(t, "s3cret", claims),
			wantStatus: http.StatusOK,
			wantCalled: true,
			wantID:     true,
		},
		{
			name:       "unverified bearer",
			cfg:        config.AuthConfig{},
			bearer:     signToken(t, "other", claims),
			wantStatus: http.StatusOK,
			wantCalled: true,
			wantID:     true,
		},
		{
			name:       "bad signature anonymous",
			cfg:        config.AuthConfig{Secret: "s3cret"},
			cookie:     signToken(t, "wrong", claims),
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "bad signature required",
			cfg:        config.AuthConfig{Secret: "s3cret", Required: true},
			cookie:     signToken(t, "wrong", claims),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing token required",
			cfg:        config.AuthConfig{Required: true},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "public path skips",
			cfg:        config.AuthConfig{Required: true},
			path:       "/health",
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &identityProbe{}
			handler := Identity(tt.cfg, publicPaths, zap.NewNop())(probe.handler())

			path := tt.path
			if path == "" {
				path = pathChat
			}
			req := httptest.NewRequest(http.MethodPost, path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "token", Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalled, probe.called)
			assert.Equal(t, tt.wantID, probe.hasID)
			if tt.wantID {
				assert.Equal(t, "5000259879", probe.identity.UserID)
				assert.Equal(t, "zhangsan", probe.identity.Account)
				assert.Equal(t, "张三", probe.identity.RealName)
			}
			if probe.called && (tt.cookie != "" || tt.bearer != "") {
				assert.NotEmpty(t, probe.token)
			}
		})
	}
}

func TestIdentity_IssuerMismatch(t *testing.T) {
	cfg := config.AuthConfig{Secret: "s3cret", Issuer: "sso", Required: true}
	tok := signToken(t, "s3cret", jwt.MapClaims{"userId": "u1", "iss": "elsewhere"})

	probe := &identityProbe{}
	handler := Identity(cfg, nil, zap.NewNop())(probe.handler())
	req := httptest.NewRequest(http.MethodPost, pathChat, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, probe.called)
}

func TestClaimString(t *testing.T) {
	claims := jwt.MapClaims{"sub": "s-1", "user_id": "", "n": float64(42)}
	assert.Equal(t, "s-1", claimString(claims, "userId", "user_id", "sub"))
	assert.Equal(t, "42", claimString(claims, "n"))
	assert.Equal(t, "", claimString(claims, "missing"))
}

// =============================================================================
// 🔑 APIKeyAuth / RateLimiter / CORS
// =============================================================================

func TestAPIKeyAuth(t *testing.T) {
	handler := APIKeyAuth([]string{"k1"}, nil, true, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "header", header: "k1", want: http.StatusOK},
		{name: "query", query: "k1", want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong", header: "k2", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := pathTaskExecute
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodPost, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	handler := APIKeyAuth(nil, nil, false, zap.NewNop())(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, pathTaskControl, nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_PerUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 0.001, 1, zap.NewNop())(okHandler())

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, pathChat, nil)
		if user != "" {
			req = req.WithContext(types.WithIdentity(req.Context(), types.Identity{UserID: user}))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("u1"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1"))
	assert.Equal(t, http.StatusOK, do("u2"))
	assert.Equal(t, http.StatusOK, do(""))
	assert.Equal(t, http.StatusTooManyRequests, do(""))
}

func TestCORS(t *testing.T) {
	t.Run("wildcard echoes origin", func(t *testing.T) {
		handler := CORS([]string{"*"})(okHandler())
		req := httptest.NewRequest(http.MethodOptions, pathChat, nil)
		req.Header.Set("Origin", "https://portal.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unlisted preflight rejected", func(t *testing.T) {
		handler := CORS([]string{"https://a.example.com"})(okHandler())
		req := httptest.NewRequest(http.MethodOptions, pathChat, nil)
		req.Header.Set("Origin", "https://b.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("same origin passes", func(t *testing.T) {
		handler := CORS(nil)(okHandler())
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// =============================================================================
// 📝 statusRecorder / normalizePath
// =============================================================================

func TestStatusRecorder_FlushAndHijack(t *testing.T) {
	var flushed bool
	srv := httptest.NewServer(RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushed = w.(http.Flusher)
		conn, buf, err := http.NewResponseController(w).Hijack()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 8\r\nConnection: close\r\n\r\nhijacked")
		_ = buf.Flush()
	})))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, flushed)
	assert.Equal(t, "hijacked", string(body))
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		pathChat:       pathChat,
		"/health":      "/health",
		"/api/v1/conversations/3f2b8c1e-5a4d-4e2f-9b1a-7c6d5e4f3a2b/messages": "/api/v1/conversations/:id/messages",
		"/api/v1/conversations/12345/messages":                                "/api/v1/conversations/:id/messages",
		"/api/v1/unknown/path":                                                "/api/v1/unknown/path",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"*"}, originPatterns([]string{"https://a.example.com", "*"}))
	assert.Equal(t, []string{"a.example.com", "b.example.com:8443"},
		originPatterns([]string{"https://a.example.com", "http://b.example.com:8443"}))
	assert.Empty(t, originPatterns(nil))
}
