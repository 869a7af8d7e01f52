package session

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/storage"
	"github.com/appvision-bridge/bridge/internal/testutil"
)

func newTestKeeper(t *testing.T, peer *testutil.MockPeer) (*Keeper, *storage.FileStore) {
	t.Helper()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if err := store.Save("tok-1", peer.Address()); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	k := NewKeeper(store, gateway.NewClient(), 10*time.Second, 5*time.Minute)
	return k, store
}

func TestIdleTimeoutLogsOutExactlyOnce(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	k, store := newTestKeeper(t, peer)

	// Simulate keep-alive ticks at 10s spacing with no activity reset: the
	// 5-minute idle timeout is crossed at tick 30 and must fire once. Ticks
	// after the logout find no record and probe nothing.
	base := time.Now()
	tick := 0
	k.now = func() time.Time { return base.Add(time.Duration(tick) * 10 * time.Second) }
	k.Touch()

	for tick = 1; tick <= 33; tick++ {
		k.tick()
	}

	if _, ok := store.Load(); ok {
		t.Error("expected session record removed after idle timeout")
	}
	if got := peer.Calls("Logout"); got != 1 {
		t.Errorf("expected exactly 1 Logout call, got %d", got)
	}
	if got := peer.Calls("KeepAlive"); got != 30 {
		t.Errorf("expected 30 KeepAlive probes before logout, got %d", got)
	}
}

func TestTouchResetsIdleCountdown(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	k, store := newTestKeeper(t, peer)

	base := time.Now()
	now := base
	k.now = func() time.Time { return now }
	k.Touch()

	// 4 minutes idle, then activity, then 4 more minutes: never crosses 5m.
	now = base.Add(4 * time.Minute)
	k.tick()
	k.Touch()
	now = base.Add(8 * time.Minute)
	k.tick()

	if _, ok := store.Load(); !ok {
		t.Error("session should survive while activity keeps resetting the countdown")
	}
	if got := peer.Calls("Logout"); got != 0 {
		t.Errorf("expected no Logout calls, got %d", got)
	}
}

func TestKeepAliveRejectionIsNotFatal(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.SetResponse("KeepAlive", http.StatusInternalServerError, "session unknown")

	k, store := newTestKeeper(t, peer)

	base := time.Now()
	now := base
	k.now = func() time.Time { return now }
	k.Touch()

	for i := 1; i <= 5; i++ {
		now = base.Add(time.Duration(i) * 10 * time.Second)
		k.tick()
	}

	// The peer rejecting keep-alives must not clear the record; only the
	// idle timeout does that.
	if _, ok := store.Load(); !ok {
		t.Error("keep-alive rejection must not remove the session record")
	}
	if got := peer.Calls("KeepAlive"); got != 5 {
		t.Errorf("expected keep-alive to keep retrying, got %d probes", got)
	}
}

func TestTickWithoutSessionDoesNothing(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	store := storage.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	k := NewKeeper(store, gateway.NewClient(), 0, 0)
	k.Touch()
	k.tick()

	if got := peer.Calls("KeepAlive"); got != 0 {
		t.Errorf("expected no probes without a session, got %d", got)
	}
}
