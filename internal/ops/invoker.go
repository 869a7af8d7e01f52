// Package ops holds the stateless operation wrappers: one request out, one
// result back. Wrappers never retry and never mutate session state; every
// failure resolves to a result value.
package ops

import (
	"context"
	"fmt"
	"net/url"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// NoSessionMessage is the uniform reply every wrapper gives when no session
// record exists. No network call is attempted in that case.
const NoSessionMessage = "No active session, please log in first"

// NotFoundMessage translates the peer's 404 into a domain message distinct
// from generic transport failure.
const NotFoundMessage = "Entity does not exist on the server"

// Result is the caller-facing outcome of one operation: a success payload or
// a short human-readable message. Never both empty.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Payload string `json:"payload,omitempty"`
}

func failure(message string) Result {
	return Result{OK: false, Message: message}
}

// Invoker executes catalog operations against the peer using the shared
// session record.
type Invoker struct {
	gw         *gateway.Client
	store      storage.Store
	onActivity func()
}

// NewInvoker creates an invoker over the given gateway and session store.
func NewInvoker(gw *gateway.Client, store storage.Store) *Invoker {
	return &Invoker{gw: gw, store: store, onActivity: func() {}}
}

// SetActivityHook registers a callback fired before each remote call, used
// to reset the keep-alive idle countdown.
func (i *Invoker) SetActivityHook(fn func()) {
	if fn != nil {
		i.onActivity = fn
	}
}

// Invoke runs one named operation. The uniform pre-checks (known operation,
// active session, required parameters) all resolve to results, not errors.
func (i *Invoker) Invoke(ctx context.Context, name string, params map[string]string) Result {
	op, ok := Find(name)
	if !ok {
		return failure(fmt.Sprintf("Unknown operation: %s", name))
	}

	sess, ok := i.store.Load()
	if !ok {
		return failure(NoSessionMessage)
	}

	q := url.Values{}
	for _, spec := range op.Params {
		value, present := params[spec.Name]
		if spec.Required && (!present || value == "") {
			return failure(fmt.Sprintf("Missing required parameter: %s", spec.Name))
		}
		if present {
			q.Set(spec.Name, value)
		}
	}

	i.onActivity()

	body, err := i.gw.Request(ctx, op.Method, sess.PeerAddress, op.Endpoint, q, gateway.SessionHeaders(sess.SessionID), "")
	if err != nil {
		if gateway.IsNotFound(err) {
			return failure(NotFoundMessage)
		}
		return failure(fmt.Sprintf("Request to %s failed: %v", op.Endpoint, err))
	}

	return Result{OK: true, Payload: body}
}
