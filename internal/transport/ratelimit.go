package transport

// ratelimit.go limits the rate of outgoing requests

import (
	"net/http"

	"golang.org/x/time/rate"
)

type rateLimitTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// RateLimit returns a round tripper that waits for the limiter before each request.  If the
// request's context is cancelled (or its deadline would pass) while waiting the error is returned
// without sending the request.  A nil limiter means no limit.
func RateLimit(base http.RoundTripper, limiter *rate.Limiter) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if limiter == nil {
		return base
	}
	return &rateLimitTransport{base: base, limiter: limiter}
}

func (t *rateLimitTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(r.Context()); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // RoundTripper must always close the body
		}
		return nil, err
	}
	return t.base.RoundTrip(r)
}
