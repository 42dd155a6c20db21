package transport_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewwphillips/ghgql/internal/transport"
)

// headerEcho is a test server that records the Authorization header values of the last request
type headerEcho struct {
	values []string
	body   string
}

func (h *headerEcho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.values = r.Header.Values("Authorization")
	b, _ := io.ReadAll(r.Body)
	h.body = string(b)
	w.WriteHeader(http.StatusNoContent)
}

func TestAuthTransport(t *testing.T) {
	const token = "s3cr3t"

	tests := map[string]struct {
		method   string
		body     string
		existing []string // Authorization header(s) already on the request
	}{
		"get":           {method: http.MethodGet},
		"post":          {method: http.MethodPost, body: `{"query":"{ viewer { login } }"}`},
		"put_empty":     {method: http.MethodPut},
		"delete":        {method: http.MethodDelete, body: "x"},
		"replace":       {method: http.MethodPost, body: "{}", existing: []string{"bearer other"}},
		"replace_multi": {method: http.MethodGet, existing: []string{"a", "b"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			echo := &headerEcho{}
			server := httptest.NewServer(echo)
			defer server.Close()

			client := &http.Client{Transport: transport.NewAuthTransport(nil, token)}
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			r, err := http.NewRequest(tt.method, server.URL, body)
			require.NoError(t, err)
			for _, v := range tt.existing {
				r.Header.Add("Authorization", v)
			}

			resp, err := client.Do(r)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, []string{"bearer " + token}, echo.values)
			assert.Equal(t, tt.body, echo.body)
			// the caller's request must not be modified
			assert.Equal(t, tt.existing, r.Header.Values("Authorization"))
		})
	}
}

func TestAuthHeader(t *testing.T) {
	h := transport.AuthHeader("abc")
	assert.Equal(t, "bearer abc", h.Get("Authorization"))
	assert.Len(t, h, 1)
}
