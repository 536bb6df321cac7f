package middleware

import (
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"media-compressor/internal/logging"
)

// responseWriter records the status and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// LoggingConfig selects which control requests are written to the log.
type LoggingConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths       []string
	LogHealthChecks bool
}

// DefaultLoggingConfig skips scrapes and status polling, which a dashboard
// issues every few seconds.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{SkipPaths: []string{"/metrics", "/api/status"}}
}

var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
}

// Logger logs each request as one W3C extended log line under the HTTP
// source, so requests show up next to the run log in /api/logs.
func Logger(config LoggingConfig) func(http.Handler) http.Handler {
	log := logging.WithSource("HTTP")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkip(r.URL.Path, config) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			log.Info("%s", formatW3C(time.Now().UTC(), r, rw, time.Since(start)))
		})
	}
}

func shouldSkip(path string, config LoggingConfig) bool {
	if !config.LogHealthChecks && healthCheckPaths[path] {
		return true
	}
	return slices.ContainsFunc(config.SkipPaths, func(prefix string) bool {
		return strings.HasPrefix(path, prefix)
	})
}

// formatW3C renders the fields
// date time c-ip cs-method cs-uri-stem cs-uri-query sc-status sc-bytes time-taken cs(User-Agent)
func formatW3C(now time.Time, r *http.Request, rw *responseWriter, took time.Duration) string {
	return fmt.Sprintf("%s %s %s %s %s %s %d %d %d %s",
		now.Format(time.DateOnly),
		now.Format(time.TimeOnly),
		sanitizeLogField(getClientIP(r)),
		sanitizeLogField(r.Method),
		sanitizeLogField(r.URL.Path),
		orDash(sanitizeLogField(r.URL.RawQuery)),
		rw.statusCode,
		rw.bytesWritten,
		took.Milliseconds(),
		orDash(escapeW3CField(sanitizeLogField(r.UserAgent()))),
	)
}

// sanitizeLogField turns line breaks into spaces and drops other control
// characters except tab.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r < 0x20 && r != '\t', r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// escapeW3CField quotes a field containing blanks or quotes.
func escapeW3CField(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
