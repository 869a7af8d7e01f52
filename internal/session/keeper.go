// Package session provides the keep-alive scheduler guarding the shared
// session record against peer-side idle expiry, and the idle-timeout
// auto-logout that clears the record when nothing has used it for too long.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// DefaultKeepAliveInterval is how often the keep-alive probe fires.
const DefaultKeepAliveInterval = 10 * time.Second

// DefaultIdleTimeout is how long the session survives with no activity
// before the keeper logs out and clears the record.
const DefaultIdleTimeout = 5 * time.Minute

// probeTimeout bounds a single keep-alive or logout call. The keeper must
// never wedge on a dead peer; the next tick retries anyway.
const probeTimeout = 5 * time.Second

// Keeper periodically probes the peer with KeepAlive using the stored
// session. Probe failures are logged and retried, never escalated; the
// peer's own idle timeout is authoritative for actual session death. After
// the idle timeout elapses with no Touch, the keeper logs out exactly once
// and removes the record.
type Keeper struct {
	store       storage.Store
	gw          *gateway.Client
	interval    time.Duration
	idleTimeout time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	loggedOut    bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() time.Time
}

// NewKeeper creates a keeper over the given store. Zero durations select the
// defaults.
func NewKeeper(store storage.Store, gw *gateway.Client, interval, idleTimeout time.Duration) *Keeper {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Keeper{
		store:       store,
		gw:          gw,
		interval:    interval,
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
		now:         time.Now,
	}
}

// Start launches the background probe loop. The idle countdown begins now.
func (k *Keeper) Start() {
	k.Touch()
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-k.stopCh:
				return
			case <-ticker.C:
				k.tick()
			}
		}
	}()
}

// Touch resets the idle countdown. Called by every operation that uses the
// session, so activity keeps it alive.
func (k *Keeper) Touch() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastActivity = k.now()
	k.loggedOut = false
}

// Stop halts the probe loop. In-flight probes complete first.
func (k *Keeper) Stop() {
	close(k.stopCh)
	k.wg.Wait()
}

// tick runs one keep-alive cycle: probe the peer, then enforce the idle
// timeout. Each concern tolerates the other failing.
func (k *Keeper) tick() {
	sess, ok := k.store.Load()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	_, err := k.gw.Request(ctx, http.MethodGet, sess.PeerAddress, "KeepAlive", nil, gateway.SessionHeaders(sess.SessionID), "")
	if err != nil {
		// Not fatal: the peer decides when the session is really dead.
		fmt.Printf("[Keeper] Keep-alive failed, will retry: %v\n", err)
	}

	k.mu.Lock()
	idle := k.now().Sub(k.lastActivity) >= k.idleTimeout
	fire := idle && !k.loggedOut
	if fire {
		k.loggedOut = true
	}
	k.mu.Unlock()

	if fire {
		k.autoLogout(sess.PeerAddress, sess.SessionID)
	}
}

// autoLogout performs the idle-triggered logout: best-effort Logout call to
// the peer, then removal of the durable record.
func (k *Keeper) autoLogout(peerAddress, sessionID string) {
	fmt.Printf("[Keeper] Idle timeout reached, logging out session\n")

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if _, err := k.gw.Request(ctx, http.MethodGet, peerAddress, "Logout", nil, gateway.SessionHeaders(sessionID), ""); err != nil {
		fmt.Printf("[Keeper] Logout call failed (continuing to clear record): %v\n", err)
	}
	if err := k.store.Remove(); err != nil {
		fmt.Printf("[Keeper] Failed to remove session record: %v\n", err)
	}
}
