package transport

// decorated.go wraps calls made by a CallFactory

import (
	"net/http"
	"time"
)

// DecoratedCall wraps another Call forwarding every method to it unchanged.  It exists as the
// place to hang per-call (rather than per-client) behaviour; currently there is none, since the
// authorization header is added by the client's transport (see AuthTransport).
type DecoratedCall struct {
	call Call
}

// Decorate returns a CallFactory that wraps every call made by f in a DecoratedCall
func Decorate(f CallFactory) CallFactory {
	return CallFactoryFunc(func(r *http.Request) Call {
		return &DecoratedCall{call: f.NewCall(r)}
	})
}

func (d *DecoratedCall) Request() *http.Request           { return d.call.Request() }
func (d *DecoratedCall) Execute() (*http.Response, error) { return d.call.Execute() }
func (d *DecoratedCall) Enqueue(cb Callback)              { d.call.Enqueue(cb) }
func (d *DecoratedCall) Cancel()                          { d.call.Cancel() }
func (d *DecoratedCall) IsExecuted() bool                 { return d.call.IsExecuted() }
func (d *DecoratedCall) IsCanceled() bool                 { return d.call.IsCanceled() }
func (d *DecoratedCall) Timeout() time.Duration           { return d.call.Timeout() }

// Clone returns a decorated clone of the wrapped call
func (d *DecoratedCall) Clone() Call { return &DecoratedCall{call: d.call.Clone()} }
