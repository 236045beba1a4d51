package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddlewareMintsUUID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/api/status", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := serve(r, http.MethodGet, "/api/status", nil)
	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected UUID request id, got %q", id)
	}
	if w.Body.String() != id {
		t.Fatalf("context id %q does not match header %q", w.Body.String(), id)
	}
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/api/status", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := serve(r, http.MethodGet, "/api/status", http.Header{RequestIDHeader: {"req-123"}})
	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected header preserved, got %q", got)
	}
	if w.Body.String() != "req-123" {
		t.Fatalf("expected context id req-123, got %q", w.Body.String())
	}
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggingMiddleware(logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/network/start", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/devices/enroll", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.POST("/api/network/stop", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	cases := []struct {
		method, path string
		level        logrus.Level
	}{
		{http.MethodGet, "/health", logrus.DebugLevel},
		{http.MethodPost, "/api/network/start", logrus.InfoLevel},
		{http.MethodPost, "/api/devices/enroll", logrus.WarnLevel},
		{http.MethodPost, "/api/network/stop", logrus.ErrorLevel},
	}
	for _, tc := range cases {
		hook.Reset()
		serve(r, tc.method, tc.path, nil)
		entry := hook.LastEntry()
		if entry == nil {
			t.Fatalf("%s: no log entry", tc.path)
		}
		if entry.Level != tc.level {
			t.Fatalf("%s: expected level %s, got %s", tc.path, tc.level, entry.Level)
		}
		if entry.Data["path"] != tc.path || entry.Data["request_id"] == "" {
			t.Fatalf("%s: missing request fields: %v", tc.path, entry.Data)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RecoveryMiddleware(logger))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/panic", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal server error") {
		t.Fatalf("expected json error body, got %q", w.Body.String())
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["panic"] != "boom" {
		t.Fatalf("expected panic to be logged, got %+v", entry)
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware())
	r.POST("/api/network/start", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := serve(r, http.MethodOptions, "/api/network/start", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header")
	}
}

func TestGetContextLoggerSubject(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	var anon, authed logrus.Fields
	r.GET("/anon", func(c *gin.Context) {
		anon = GetContextLogger(c, logger).Data
	})
	r.GET("/authed", func(c *gin.Context) {
		c.Set(subjectKey, "admin")
		authed = GetContextLogger(c, logger).Data
	})

	serve(r, http.MethodGet, "/anon", http.Header{RequestIDHeader: {"req-9"}})
	serve(r, http.MethodGet, "/authed", nil)
	if anon["request_id"] != "req-9" {
		t.Fatalf("expected request id on entry, got %v", anon)
	}
	if _, ok := anon["subject"]; ok {
		t.Fatalf("anonymous request should carry no subject")
	}
	if authed["subject"] != "admin" {
		t.Fatalf("expected subject admin, got %v", authed["subject"])
	}
}
