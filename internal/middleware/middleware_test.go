package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"matchday/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(t *testing.T, secret, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, util.Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthMiddleware(t *testing.T) {
	var gotUser, gotEmail string
	h := AuthMiddleware("secret", zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotEmail = EmailFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + token(t, "other", "u1"), http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, "secret", "u1"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"`+errorMessage(tt.name)+`","reason":"unauthorized"}`, rec.Body.String())
			}
		})
	}
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, "u1@example.com", gotEmail)
}

func errorMessage(name string) string {
	switch name {
	case "missing":
		return "Authorization header missing"
	case "not bearer":
		return "Invalid authorization header"
	}
	return "Invalid token"
}

func TestRawBodyKeepsExactBytes(t *testing.T) {
	payload := "{\"id\":\"evt_1\",  \"type\" : \"invoice.paid\"}\n"
	var captured []byte
	var fromBody string
	h := RawBody(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = RawBodyFromRequest(r)
		b, _ := io.ReadAll(r.Body)
		fromBody = string(b)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(payload)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, string(captured))
	assert.Equal(t, payload, fromBody)
}

func TestRawBodyTooLarge(t *testing.T) {
	h := RawBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestJSONBodyRejectsOtherContentTypes(t *testing.T) {
	h := JSONBody(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader("plan=monthly"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(`{"plan":"monthly"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/billing/cancel", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLoggerMiddlewareSetsRequestID(t *testing.T) {
	h := LoggerMiddleware(zerolog.Nop(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRoutesRecordsMatchedPattern(t *testing.T) {
	inner := http.NewServeMux()
	inner.HandleFunc("GET /billing/subscription", func(w http.ResponseWriter, r *http.Request) {})
	outer := http.NewServeMux()
	outer.Handle("/v1/", http.StripPrefix("/v1", Routes(inner)))
	outer.Handle("/", Routes(inner))
	outer.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {})

	var got string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, holder := withRouteHolder(r.Context())
		Routes(outer).ServeHTTP(w, r.WithContext(ctx))
		got = holder.route()
	})

	tests := []struct {
		path string
		want string
	}{
		{"/billing/subscription", "GET /billing/subscription"},
		{"/v1/billing/subscription", "GET /billing/subscription"},
		{"/healthz", "GET /healthz"},
		{"/scan/1", UnmatchedRoute},
		{"/v1/scan/2", UnmatchedRoute},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, got)
		})
	}
}
