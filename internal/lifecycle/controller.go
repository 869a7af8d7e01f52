// Package lifecycle orchestrates the session state machine against the peer:
// Disconnected -> Connecting -> Authenticating -> NotificationsEnabled ->
// Polling, looping back to Connecting on any failure. It is the only writer
// of the durable session record.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/models"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// DefaultRetryDelay is the fixed wait between connect probes.
const DefaultRetryDelay = 2 * time.Second

// DefaultBusyWait is how often a second caller re-checks an in-flight
// reconnection before giving up waiting on it.
const DefaultBusyWait = 3 * time.Second

// Credentials are the login pair posted to the peer.
type Credentials struct {
	Username string
	Password string
}

// Controller owns the connect/authenticate/enable sequence. It is created by
// the process entry point and injected into the poller; there is no ambient
// global session state.
type Controller struct {
	gw    *gateway.Client
	store storage.Store
	creds Credentials

	retryDelay time.Duration
	busyWait   time.Duration
	filters    []string

	mu          sync.Mutex
	connecting  bool
	lastSession *models.Session

	active   func() bool
	onStatus func(message string)
}

// NewController creates a controller with the standard retry timings.
func NewController(gw *gateway.Client, store storage.Store, creds Credentials) *Controller {
	return &Controller{
		gw:         gw,
		store:      store,
		creds:      creds,
		retryDelay: DefaultRetryDelay,
		busyWait:   DefaultBusyWait,
		active:     func() bool { return true },
		onStatus:   func(string) {},
	}
}

// SetStatusSink registers the connection-status channel sink. The controller
// pushes "Connection successful" there after a successful login.
func (c *Controller) SetStatusSink(fn func(message string)) {
	if fn != nil {
		c.onStatus = fn
	}
}

// SetActiveCheck registers the shutdown flag consulted at every retry-wait
// boundary. A probe already in flight still completes its HTTP call.
func (c *Controller) SetActiveCheck(fn func() bool) {
	if fn != nil {
		c.active = fn
	}
}

// SetFilters overrides the "all events" notification filter with an explicit
// list of type names.
func (c *Controller) SetFilters(types []string) {
	c.filters = types
}

// Connect probes the peer's Open endpoint until it answers, waiting the
// fixed retry delay between attempts. It blocks indefinitely; only process
// shutdown (the active check) stops it. If another connect is already in
// flight, this call waits on it instead of starting a duplicate probe loop.
func (c *Controller) Connect(ctx context.Context, peerAddress string) (*models.Session, error) {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return c.waitForConnect(ctx)
	}
	c.connecting = true
	c.mu.Unlock()

	sess, err := c.probeLoop(ctx, peerAddress)

	c.mu.Lock()
	c.lastSession = sess
	c.connecting = false
	c.mu.Unlock()

	return sess, err
}

func (c *Controller) probeLoop(ctx context.Context, peerAddress string) (*models.Session, error) {
	for {
		if !c.active() {
			return nil, fmt.Errorf("connect aborted: shutting down")
		}

		sess, err := c.open(ctx, peerAddress)
		if err == nil {
			return sess, nil
		}

		fmt.Printf("[Lifecycle] Peer %s unavailable, retrying in %s: %v\n", peerAddress, c.retryDelay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// waitForConnect re-polls the in-progress flag until the first caller's
// probe loop finishes, then hands back the session it produced.
func (c *Controller) waitForConnect(ctx context.Context) (*models.Session, error) {
	for {
		c.mu.Lock()
		busy := c.connecting
		last := c.lastSession
		c.mu.Unlock()
		if !busy {
			if last != nil {
				return last, nil
			}
			return nil, fmt.Errorf("concurrent connect finished without a session")
		}
		if !c.active() {
			return nil, fmt.Errorf("connect aborted: shutting down")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.busyWait):
		}
	}
}

// open performs a single availability probe, returning a fresh session
// holding the token the peer issued.
func (c *Controller) open(ctx context.Context, peerAddress string) (*models.Session, error) {
	body, err := c.gw.Request(ctx, http.MethodGet, peerAddress, "Open", nil, nil, "")
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(body)
	if token == "" {
		return nil, fmt.Errorf("peer returned an empty session token")
	}
	return &models.Session{SessionID: token, PeerAddress: peerAddress, CreatedAt: time.Now()}, nil
}

// Authenticate posts credentials to the peer's Login endpoint and classifies
// the free-text response. On success the session is persisted immediately,
// so a crash after login still leaves a recoverable session pointer, and the
// "Connection successful" event goes out on the connection-status channel.
func (c *Controller) Authenticate(ctx context.Context, sess *models.Session, username, password string) (models.AuthResult, error) {
	body, err := c.gw.Request(ctx, http.MethodPost, sess.PeerAddress, "Login",
		nil, gateway.SessionHeaders(sess.SessionID), gateway.LoginBody(username, password))
	if err != nil {
		return models.AuthInternalServerError, fmt.Errorf("login call failed: %w", err)
	}

	result := ClassifyAuthResponse(body)
	if result.OK() {
		if err := c.store.Save(sess.SessionID, sess.PeerAddress); err != nil {
			return result, fmt.Errorf("persisting session: %w", err)
		}
		c.onStatus(models.AuthSuccess.Message())
	}
	return result, nil
}

// ClassifyAuthResponse parses the sentinel-coded login response once, at the
// boundary. The substring checks are the remote protocol's contract: "401"
// anywhere in the body means bad credentials regardless of other content,
// and a body with no recognized sentinel means success.
func ClassifyAuthResponse(body string) models.AuthResult {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(body, "401"):
		return models.AuthUnauthorized
	case strings.Contains(lower, "too many clients"):
		return models.AuthTooManyClients
	case strings.Contains(lower, "password") && strings.Contains(lower, "chang"):
		return models.AuthPasswordChangeRequired
	case strings.Contains(body, "500") || strings.Contains(lower, "internal server error"):
		return models.AuthInternalServerError
	default:
		return models.AuthSuccess
	}
}

// EnableNotifications performs the two dependent calls required before the
// poller observes any data: start delivery, then register the filter set.
// Either failing fails the whole connect sequence; nothing partial is kept.
func (c *Controller) EnableNotifications(ctx context.Context, sess *models.Session) error {
	headers := gateway.SessionHeaders(sess.SessionID)

	if _, err := c.gw.Request(ctx, http.MethodGet, sess.PeerAddress, "StartNotifications", nil, headers, ""); err != nil {
		return fmt.Errorf("starting notifications: %w", err)
	}

	filters := c.filters
	if len(filters) == 0 {
		filters = []string{"*"}
	}
	for _, f := range filters {
		q := url.Values{}
		q.Set("filter", f)
		if _, err := c.gw.Request(ctx, http.MethodGet, sess.PeerAddress, "AddFilterNotifications", q, headers, ""); err != nil {
			return fmt.Errorf("registering notification filter %q: %w", f, err)
		}
	}
	return nil
}

// Reconnect runs the full sequence (connect, then authenticate, then enable
// notifications), retrying from the top on any failure until it succeeds or
// the process shuts down. Transport failures never propagate to the caller.
func (c *Controller) Reconnect(ctx context.Context, peerAddress string) (*models.Session, error) {
	for c.active() {
		sess, err := c.Connect(ctx, peerAddress)
		if err != nil {
			return nil, err
		}

		result, err := c.Authenticate(ctx, sess, c.creds.Username, c.creds.Password)
		if err != nil || !result.OK() {
			if err != nil {
				fmt.Printf("[Lifecycle] Authentication failed, retrying: %v\n", err)
			} else {
				fmt.Printf("[Lifecycle] Authentication rejected: %s\n", result.Message())
			}
			if !sleepActive(ctx, c.retryDelay, c.active) {
				break
			}
			continue
		}

		if err := c.EnableNotifications(ctx, sess); err != nil {
			fmt.Printf("[Lifecycle] Enabling notifications failed, retrying from the top: %v\n", err)
			if !sleepActive(ctx, c.retryDelay, c.active) {
				break
			}
			continue
		}

		return sess, nil
	}
	return nil, fmt.Errorf("reconnect aborted: shutting down")
}

// LoginOnce is the one-shot login used by the tool-invocation surface: a
// single Open attempt and a single Login, with failures surfaced as results
// instead of retried.
func (c *Controller) LoginOnce(ctx context.Context, peerAddress, username, password string) (*models.Session, models.AuthResult, error) {
	sess, err := c.open(ctx, peerAddress)
	if err != nil {
		return nil, models.AuthInternalServerError, fmt.Errorf("peer unreachable: %w", err)
	}
	result, err := c.Authenticate(ctx, sess, username, password)
	if err != nil {
		return nil, result, err
	}
	if !result.OK() {
		return nil, result, nil
	}
	return sess, result, nil
}

// sleepActive waits d, honoring both the context and the active flag at the
// boundary. Returns false when the wait was cut short by shutdown.
func sleepActive(ctx context.Context, d time.Duration, active func() bool) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return active()
	}
}
