// Package poller drains the peer's notification queue and fans classified
// batches out to the fixed output channels. It runs as one sequential loop;
// cycle N+1 never starts before cycle N's dispatch completes.
package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/lifecycle"
	"github.com/appvision-bridge/bridge/internal/models"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// DefaultInterval is the poll cadence when the caller does not configure one.
const DefaultInterval = time.Second

// DefaultBatchSize is the maximum number of notifications fetched per cycle.
const DefaultBatchSize = 10

// DisconnectMessage is the connection-status text pushed when the transport
// to the peer fails. The exact wording is part of the host-facing contract.
const DisconnectMessage = "Deconnection detected"

// Sink receives one FanOut per emitting cycle.
type Sink func(models.FanOut)

// Poller owns the Polling <-> Recovering state machine. On fetch failure it
// emits a disconnect notice and hands control to the lifecycle controller's
// blocking reconnect before resuming.
type Poller struct {
	gw    *gateway.Client
	store storage.Store
	ctrl  *lifecycle.Controller

	interval   time.Duration
	batchSize  int
	sink       Sink
	onActivity func()

	active atomic.Bool

	mu         sync.Mutex
	pending    [models.ChannelCount][]models.ChannelItem
	firstBatch bool
	last       *models.FanOut
}

// New creates a poller. Zero interval/batchSize select the defaults; sink
// must not be nil.
func New(gw *gateway.Client, store storage.Store, ctrl *lifecycle.Controller, interval time.Duration, batchSize int, sink Sink) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	p := &Poller{
		gw:         gw,
		store:      store,
		ctrl:       ctrl,
		interval:   interval,
		batchSize:  batchSize,
		sink:       sink,
		onActivity: func() {},
		firstBatch: true,
	}
	p.active.Store(true)
	for i := range p.pending {
		p.pending[i] = []models.ChannelItem{}
	}
	return p
}

// Active reports whether the loop is still running. The lifecycle controller
// consults this at its retry-wait boundaries.
func (p *Poller) Active() bool {
	return p.active.Load()
}

// SetActivityHook registers a callback fired after each successful fetch, so
// continuous polling counts as session activity for the idle countdown.
func (p *Poller) SetActivityHook(fn func()) {
	if fn != nil {
		p.onActivity = fn
	}
}

// PushStatus sets the connection-status channel content to a single message.
// The latest status wins; it is delivered with the next emitted batch (the
// first batch after a reconnect preserves it).
func (p *Poller) PushStatus(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[models.ConnectionStatusChannel] = []models.ChannelItem{models.StatusItem(message)}
}

// LastFanOut returns the most recently emitted batch, or nil before the
// first emission. Nothing older is retained.
func (p *Poller) LastFanOut() *models.FanOut {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run executes poll cycles at the configured interval until Shutdown flips
// the active flag or the context is canceled. Cycles are strictly
// sequential.
func (p *Poller) Run(ctx context.Context) {
	fmt.Printf("[Poller] Starting notification loop (interval %s, batch %d)\n", p.interval, p.batchSize)
	for p.active.Load() {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.interval):
		}
	}
}

// PollOnce performs a single poll cycle. Split out for testing, the same way
// long-running loops elsewhere expose their single step.
func (p *Poller) PollOnce(ctx context.Context) {
	if !p.active.Load() {
		return
	}

	sess, ok := p.store.Load()
	if !ok {
		fmt.Printf("[Poller] No active session, skipping cycle\n")
		return
	}

	q := url.Values{}
	q.Set("count", strconv.Itoa(p.batchSize))
	body, err := p.gw.Request(ctx, http.MethodGet, sess.PeerAddress, "GetNotifications", q, gateway.SessionHeaders(sess.SessionID), "")
	if err != nil {
		p.handleDisconnect(ctx, sess.PeerAddress, err)
		return
	}

	p.onActivity()

	if strings.TrimSpace(body) == "" {
		// Nothing pending on the peer side; a normal outcome.
		return
	}

	notifs, err := ParseNotifications(body)
	if err != nil {
		// The transport call succeeded, so a malformed body is not a
		// disconnection; treat the cycle as empty.
		fmt.Printf("[Poller] Dropping malformed batch: %v\n", err)
		return
	}

	p.dispatch(notifs)
}

// dispatch classifies a batch into the fixed channels and emits exactly one
// FanOut when at least one notification matched a known type. Unknown types
// are silently dropped.
func (p *Poller) dispatch(notifs []models.Notification) {
	routed := 0

	p.mu.Lock()
	cleared := false
	for _, n := range notifs {
		idx, known := models.ChannelIndex(n.Type)
		if !known {
			continue
		}
		if !cleared {
			p.clearLocked(p.firstBatch)
			cleared = true
		}
		var item models.ChannelItem
		if n.Type == models.TypeAlarmInfo {
			item = models.AlarmItem(n)
		} else {
			item = models.GenericItem(n)
		}
		p.pending[idx] = append(p.pending[idx], item)
		routed++
	}

	if routed == 0 {
		p.mu.Unlock()
		return
	}

	fan := p.snapshotLocked()
	p.firstBatch = false
	p.last = &fan
	p.mu.Unlock()

	p.sink(fan)
}

// clearLocked resets the pending channels. The first batch after a
// (re)connect keeps the connection-status channel so the pending "Connection
// successful" message rides out with it; later batches clear all 8.
func (p *Poller) clearLocked(keepStatus bool) {
	for i := range p.pending {
		if keepStatus && i == models.ConnectionStatusChannel {
			continue
		}
		p.pending[i] = []models.ChannelItem{}
	}
}

func (p *Poller) snapshotLocked() models.FanOut {
	fan := models.NewFanOut()
	for i := range p.pending {
		fan.Channels[i] = append(fan.Channels[i], p.pending[i]...)
	}
	return fan
}

// handleDisconnect emits a single FanOut carrying only the disconnect notice
// and then blocks in the full reconnect sequence before polling resumes.
func (p *Poller) handleDisconnect(ctx context.Context, peerAddress string, cause error) {
	fmt.Printf("[Poller] Transport failure, entering recovery: %v\n", cause)

	p.mu.Lock()
	p.clearLocked(false)
	p.pending[models.ConnectionStatusChannel] = []models.ChannelItem{models.StatusItem(DisconnectMessage)}
	fan := p.snapshotLocked()
	p.last = &fan
	p.mu.Unlock()

	p.sink(fan)

	if _, err := p.ctrl.Reconnect(ctx, peerAddress); err != nil {
		fmt.Printf("[Poller] Reconnect aborted: %v\n", err)
		return
	}

	p.mu.Lock()
	p.firstBatch = true
	p.mu.Unlock()
	fmt.Printf("[Poller] Reconnected, resuming polling\n")
}

// Shutdown is the scoped cleanup action: best-effort Close to the peer, a
// final disconnect notice, and the active flag flipped so the loop and any
// retry-wait exit at their next boundary check.
func (p *Poller) Shutdown(ctx context.Context) {
	if !p.active.CompareAndSwap(true, false) {
		return
	}

	if sess, ok := p.store.Load(); ok {
		if _, err := p.gw.Request(ctx, http.MethodGet, sess.PeerAddress, "Close", nil, gateway.SessionHeaders(sess.SessionID), ""); err != nil {
			fmt.Printf("[Poller] Close call failed (ignored): %v\n", err)
		}
	}

	fan := models.NewFanOut()
	fan.Channels[models.ConnectionStatusChannel] = []models.ChannelItem{models.StatusItem(DisconnectMessage)}

	p.mu.Lock()
	p.last = &fan
	p.mu.Unlock()

	p.sink(fan)
	fmt.Printf("[Poller] Shut down\n")
}
