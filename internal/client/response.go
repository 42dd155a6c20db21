package client

import (
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

type (
	// Response is the result of an operation, from the server or the cache
	Response struct {
		Data          json.RawMessage // the "data" of the result (JSON null if there was none)
		Errors        gqlerror.List   // GraphQL errors returned by the server
		FromCache     bool
		DependentKeys []string // keys of the cache records that the result was read from or written to
	}

	// Result is one response (or the error) delivered on the channel returned by Call.Stream
	Result struct {
		Response *Response
		Err      error
	}

	// HTTPError is returned when the server responds with a non-2xx status
	HTTPError struct {
		StatusCode int
		Body       string
	}
)

// Decode unmarshals the data of the response into v
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%w decoding response data", err)
	}
	return nil
}

// Err returns the GraphQL errors (if any) as an error
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP status %d: %s", e.StatusCode, e.Body)
}
