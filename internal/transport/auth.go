// Package transport has the HTTP plumbing used by the GraphQL client: round trippers that
// decorate every outgoing request (authorization, rate limiting, logging), a Call abstraction
// over a single request, and a websocket client for subscriptions.
package transport

// auth.go adds the authorization header to every request sent through a round tripper

import (
	"net/http"
)

const (
	authHeader = "Authorization"
	authScheme = "bearer "
)

// AuthTransport is an http.RoundTripper that adds "Authorization: bearer <token>" to every request.
// The header is set (not added) so a request always carries exactly one Authorization header.
type AuthTransport struct {
	Base  http.RoundTripper // if nil http.DefaultTransport is used
	token string
}

// NewAuthTransport wraps base so that all requests carry the bearer token
func NewAuthTransport(base http.RoundTripper, token string) *AuthTransport {
	return &AuthTransport{Base: base, token: token}
}

// RoundTrip implements http.RoundTripper.  The caller's request is not modified (as required by
// the RoundTripper contract) - the header is added to a clone.  Errors from the base transport
// are returned unchanged.
func (t *AuthTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set(authHeader, AuthValue(t.token))
	return t.base().RoundTrip(r2)
}

// AuthValue returns the value used for the Authorization header.  It is also used when dialing
// websockets (which don't go through a RoundTripper).
func AuthValue(token string) string {
	return authScheme + token
}

// AuthHeader returns a header with just the Authorization header set
func AuthHeader(token string) http.Header {
	h := make(http.Header, 1)
	h.Set(authHeader, AuthValue(token))
	return h
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}
	return t.Base
}
