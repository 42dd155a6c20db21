package transport

// logging.go logs requests (but never headers or bodies, which may contain secrets)

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type loggingTransport struct {
	base http.RoundTripper
	log  *zap.Logger
}

// Logging returns a round tripper that logs each request at debug level (and failures at warn)
func Logging(base http.RoundTripper, log *zap.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		return base
	}
	return &loggingTransport{base: base, log: log}
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(r)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("host", r.URL.Host),
		zap.String("path", r.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		t.log.Warn("request failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	t.log.Debug("request", append(fields, zap.Int("status", resp.StatusCode))...)
	return resp, nil
}
