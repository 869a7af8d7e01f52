package poller

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/lifecycle"
	"github.com/appvision-bridge/bridge/internal/models"
	"github.com/appvision-bridge/bridge/internal/session"
	"github.com/appvision-bridge/bridge/internal/storage"
	"github.com/appvision-bridge/bridge/internal/testutil"
	"github.com/stretchr/testify/assert"
)

type capture struct {
	fans []models.FanOut
}

func (c *capture) sink(f models.FanOut) {
	c.fans = append(c.fans, f)
}

func newTestPoller(t *testing.T, peer *testutil.MockPeer) (*Poller, *capture, *storage.FileStore) {
	t.Helper()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if err := store.Save("tok-1", peer.Address()); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	gw := gateway.NewClient()
	ctrl := lifecycle.NewController(gw, store, lifecycle.Credentials{Username: "admin", Password: "pw"})

	cap := &capture{}
	p := New(gw, store, ctrl, 10*time.Millisecond, 10, cap.sink)
	ctrl.SetStatusSink(p.PushStatus)
	ctrl.SetActiveCheck(p.Active)
	return p, cap, store
}

const alarmBatch = `<ArrayOfNotification>
	<Notification type="AlarmInfo"><Data><Alarm>A1</Alarm><Description>High temp</Description></Data></Notification>
</ArrayOfNotification>`

func TestAlarmInfoReshaping(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.QueueNotifications(alarmBatch)

	p, cap, _ := newTestPoller(t, peer)
	p.PollOnce(context.Background())

	if !assert.Len(t, cap.fans, 1) {
		return
	}
	ch2 := cap.fans[0].Channels[2]
	if !assert.Len(t, ch2, 1) {
		return
	}
	notif := ch2[0]["notification"].(map[string]interface{})
	assert.Equal(t, "AlarmInfo", notif["type"])
	assert.Equal(t, "A1", notif["Alarm"])
	assert.Equal(t, "High temp", notif["Description"])
}

func TestUnknownOnlyBatchEmitsNothing(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.QueueNotifications(`<ArrayOfNotification>
		<Notification type="Mystery"><Data><X>1</X></Data></Notification>
		<Notification><Data><Y>2</Y></Data></Notification>
	</ArrayOfNotification>`)

	p, cap, _ := newTestPoller(t, peer)
	p.PollOnce(context.Background())

	assert.Empty(t, cap.fans, "unknown-typed entries must be dropped without emission")
}

func TestEmptyResponseIsNotAnError(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	p, cap, _ := newTestPoller(t, peer)
	p.PollOnce(context.Background())

	assert.Empty(t, cap.fans)
	assert.Equal(t, 0, peer.Calls("Open"), "empty batch must not trigger recovery")
}

func TestMalformedBatchIsEmptyNotDisconnect(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.QueueNotifications("<ArrayOfNotification><broken")

	p, cap, _ := newTestPoller(t, peer)
	p.PollOnce(context.Background())

	assert.Empty(t, cap.fans)
	assert.Equal(t, 0, peer.Calls("Open"), "parse errors must not trigger reconnection")
}

func TestFirstBatchPreservesConnectionStatus(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.QueueNotifications(alarmBatch, alarmBatch)

	p, cap, _ := newTestPoller(t, peer)
	p.PushStatus("Connection successful")

	// First batch after connect: channel 6 keeps the pending status.
	p.PollOnce(context.Background())
	if !assert.Len(t, cap.fans, 1) {
		return
	}
	ch6 := cap.fans[0].Channels[models.ConnectionStatusChannel]
	if assert.Len(t, ch6, 1) {
		notif := ch6[0]["notification"].(map[string]interface{})
		assert.Equal(t, "Connection successful", notif["message"])
	}
	for i, ch := range cap.fans[0].Channels {
		if i == 2 || i == models.ConnectionStatusChannel {
			continue
		}
		assert.Empty(t, ch, "channel %d should start empty on the first batch", i)
	}

	// Subsequent batch: everything cleared, including channel 6.
	p.PollOnce(context.Background())
	if assert.Len(t, cap.fans, 2) {
		assert.Empty(t, cap.fans[1].Channels[models.ConnectionStatusChannel])
		assert.Len(t, cap.fans[1].Channels[2], 1)
	}
}

func TestTransportFailureEmitsDisconnectThenReconnects(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.SetResponse("Login", http.StatusOK, "")
	peer.SetDown(true)

	p, cap, _ := newTestPoller(t, peer)

	// Bring the peer back as soon as the disconnect notice goes out, so the
	// blocking reconnect inside the same cycle can complete.
	fansSeen := 0
	p.sink = func(f models.FanOut) {
		cap.sink(f)
		fansSeen++
		if fansSeen == 1 {
			peer.SetDown(false)
		}
	}

	p.PollOnce(context.Background())

	if !assert.Len(t, cap.fans, 1, "exactly one fan-out per transport failure") {
		return
	}
	fan := cap.fans[0]
	ch6 := fan.Channels[models.ConnectionStatusChannel]
	if assert.Len(t, ch6, 1) {
		notif := ch6[0]["notification"].(map[string]interface{})
		assert.Equal(t, DisconnectMessage, notif["message"])
	}
	for i, ch := range fan.Channels {
		if i == models.ConnectionStatusChannel {
			continue
		}
		assert.Empty(t, ch, "only the connection-status channel may be populated")
	}

	// The full reconnect sequence ran.
	assert.GreaterOrEqual(t, peer.Calls("Open"), 1)
	assert.Equal(t, 1, peer.Calls("Login"))
	assert.Equal(t, 1, peer.Calls("StartNotifications"))

	// Next successful batch is treated as the first after reconnect: the
	// "Connection successful" status pushed during reconnect rides along.
	peer.QueueNotifications(alarmBatch)
	p.PollOnce(context.Background())
	last := cap.fans[len(cap.fans)-1]
	ch6 = last.Channels[models.ConnectionStatusChannel]
	if assert.Len(t, ch6, 1) {
		notif := ch6[0]["notification"].(map[string]interface{})
		assert.Equal(t, "Connection successful", notif["message"])
	}
}

func TestShutdown(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	p, cap, _ := newTestPoller(t, peer)
	p.Shutdown(context.Background())

	assert.False(t, p.Active())
	assert.Equal(t, 1, peer.Calls("Close"))
	if assert.Len(t, cap.fans, 1, "shutdown emits a final disconnect notice") {
		ch6 := cap.fans[0].Channels[models.ConnectionStatusChannel]
		assert.Len(t, ch6, 1)
	}

	// Repeated shutdown is a no-op and polling stays stopped.
	p.Shutdown(context.Background())
	p.PollOnce(context.Background())
	assert.Equal(t, 0, peer.Calls("GetNotifications"))
	assert.Equal(t, 1, peer.Calls("Close"))
}

func TestLastFanOut(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()
	peer.QueueNotifications(alarmBatch)

	p, _, _ := newTestPoller(t, peer)
	assert.Nil(t, p.LastFanOut())

	p.PollOnce(context.Background())
	last := p.LastFanOut()
	if assert.NotNil(t, last) {
		assert.Len(t, last.Channels[2], 1)
	}
}

func TestPollingCountsAsKeeperActivity(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	p, _, store := newTestPoller(t, peer)

	keeper := session.NewKeeper(store, gateway.NewClient(), 10*time.Millisecond, 150*time.Millisecond)
	p.SetActivityHook(keeper.Touch)
	keeper.Start()
	defer keeper.Stop()

	// Poll well past the idle timeout: each successful fetch resets the
	// countdown, so the keeper must never log the session out from under a
	// healthy feed.
	for i := 0; i < 25; i++ {
		p.PollOnce(context.Background())
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := store.Load(); !ok {
		t.Fatal("continuous polling must keep the session record alive")
	}
	assert.Equal(t, 0, peer.Calls("Logout"), "idle auto-logout must not fire while polling succeeds")
	assert.Equal(t, 25, peer.Calls("GetNotifications"))

	// Once polling stops, the idle timeout takes over and fires once.
	deadline := time.Now().Add(2 * time.Second)
	for peer.Calls("Logout") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 1, peer.Calls("Logout"), "idle auto-logout fires after activity ceases")
	_, ok := store.Load()
	assert.False(t, ok, "auto-logout removes the session record")
}

func TestMissingSessionSkipsCycle(t *testing.T) {
	peer := testutil.NewMockPeer()
	defer peer.Close()

	p, cap, store := newTestPoller(t, peer)
	assert.NoError(t, store.Remove())

	p.PollOnce(context.Background())
	assert.Empty(t, cap.fans)
	assert.Equal(t, 0, peer.Calls("GetNotifications"))
}
