package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kleros/market-maker/infrastructure/logger"
)

func TestNewManager(t *testing.T) {
	ch := NewMockChannel("test")
	mgr := NewManager([]Channel{ch}, 5*time.Minute)

	channels := mgr.Channels()
	if len(channels) != 1 || channels[0] != "test" {
		t.Fatalf("channels = %v, want [test]", channels)
	}
	mgr.AddChannel(NewMockChannel("second"))
	if got := len(mgr.Channels()); got != 2 {
		t.Errorf("expected 2 channels, got %d", got)
	}
}

func TestSendAlert(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 5*time.Minute)

	err := mgr.SendAlert(Alert{
		Level:   LevelWarning,
		Message: "test message",
		Fields:  map[string]interface{}{"key": "value"},
	})
	if err != nil {
		t.Fatalf("SendAlert failed: %v", err)
	}
	if mock.Count() != 1 {
		t.Fatalf("expected 1 alert, got %d", mock.Count())
	}
	a := mock.GetAlerts()[0]
	if a.Fields["key"] != "value" {
		t.Errorf("field key = %v, want value", a.Fields["key"])
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestThrottle(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Hour)

	for i := 0; i < 3; i++ {
		mgr.Send("AnomalousFill", "fill=1")
	}
	if mock.Count() != 1 {
		t.Errorf("warnings should be throttled, got %d", mock.Count())
	}

	for i := 0; i < 3; i++ {
		mgr.Send("KillSwitch", "21 fills")
	}
	if mock.Count() != 4 {
		t.Errorf("critical alerts bypass throttle, got %d", mock.Count())
	}

	mgr.ResetThrottle()
	mgr.Send("AnomalousFill", "fill=1")
	if mock.Count() != 5 {
		t.Errorf("reset should allow again, got %d", mock.Count())
	}
}

func TestThrottleByTypeCountsSuppressed(t *testing.T) {
	now := time.Unix(0, 0)
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)
	mgr.throttle.now = func() time.Time { return now }

	require.NoError(t, mgr.Notify(TypeReconcile, "missing=1 orphans=0", nil))
	require.NoError(t, mgr.Notify(TypeReconcile, "missing=2 orphans=0", nil))
	require.NoError(t, mgr.Notify(TypeReconcile, "missing=0 orphans=3", map[string]interface{}{"symbol": "tPNKETH"}))
	require.Equal(t, 1, mock.Count(), "same type shares one window")

	now = now.Add(time.Minute)
	require.NoError(t, mgr.Notify(TypeReconcile, "missing=4 orphans=0", map[string]interface{}{"symbol": "tPNKETH"}))
	alerts := mock.GetAlerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, alerts[1].Fields["suppressed"])
	assert.Equal(t, "tPNKETH", alerts[1].Fields["symbol"])
	assert.NotContains(t, alerts[0].Fields, "suppressed")
}

func TestThrottlerInterval(t *testing.T) {
	now := time.Unix(0, 0)
	th := NewThrottler(time.Minute)
	th.now = func() time.Time { return now }

	if !th.Allow("k") {
		t.Fatal("first call should pass")
	}
	now = now.Add(30 * time.Second)
	if th.Allow("k") {
		t.Fatal("within interval should be blocked")
	}
	now = now.Add(30 * time.Second)
	if !th.Allow("k") {
		t.Fatal("after interval should pass")
	}
}

func TestLevelFor(t *testing.T) {
	tests := map[string]Level{
		"KillSwitch":         LevelCritical,
		"InvariantViolation": LevelCritical,
		"AnomalousFill":      LevelWarning,
		"Started":            LevelInfo,
		"PersistFailed":      LevelError,
	}
	for typ, want := range tests {
		if got := LevelFor(typ); got != want {
			t.Errorf("LevelFor(%s) = %s, want %s", typ, got, want)
		}
	}
}

func TestAllChannelsFail(t *testing.T) {
	a, b := NewMockChannel("a"), NewMockChannel("b")
	a.SetShouldError(true)
	mgr := NewManager([]Channel{a, b}, 0)
	if err := mgr.Notify("PersistFailed", "x", nil); err != nil {
		t.Errorf("one channel ok should not error: %v", err)
	}
	b.SetShouldError(true)
	if err := mgr.Notify("PersistFailed", "y", nil); err == nil {
		t.Error("expected error when all channels fail")
	}
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ch := NewLogChannel("log", logger.Wrap(zap.New(core)))
	if err := ch.Send(Alert{Level: LevelCritical, Type: "KillSwitch", Message: "stop", Fields: map[string]interface{}{"fills": 21}}); err != nil {
		t.Fatal(err)
	}
	entries := logs.FilterMessage("stop").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["type"] != "KillSwitch" {
		t.Errorf("type field = %v", entries[0].ContextMap()["type"])
	}
}

func TestWebhookChannel(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body["text"]
	}))
	defer srv.Close()

	ch := NewWebhookChannel("slack", srv.URL, srv.Client())
	err := ch.Send(Alert{Level: LevelCritical, Type: "KillSwitch", Message: "stop", Fields: map[string]interface{}{"b": 2, "a": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if text := <-got; text != "[CRITICAL] KillSwitch: stop a=1 b=2" {
		t.Errorf("text = %q", text)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	if err := NewWebhookChannel("bad", bad.URL, bad.Client()).Send(Alert{Level: LevelInfo}); err == nil {
		t.Error("expected error on 500")
	}
}
