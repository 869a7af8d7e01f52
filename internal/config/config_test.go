package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AppVisionBridge.exe.config")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Session.KeepAliveSeconds != 10 {
		t.Errorf("expected 10s keep-alive default, got %d", cfg.Session.KeepAliveSeconds)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected default config file to be created: %v", err)
	}

	// Second load parses the file just written.
	again, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reloading config failed: %v", err)
	}
	if again.Polling.IntervalMs != cfg.Polling.IntervalMs {
		t.Errorf("reloaded config differs: %d vs %d", again.Polling.IntervalMs, cfg.Polling.IntervalMs)
	}
}

func TestLoadConfigParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.config")
	content := `<?xml version="1.0"?>
<AppVisionBridge>
  <Server><Port>9001</Port><BindAddress>127.0.0.1</BindAddress></Server>
  <Peer><Host>10.0.0.5</Host><Port>8999</Port><Username>op</Username><Password>pw</Password></Peer>
  <Session><RecordPath>state/session.json</RecordPath><KeepAliveSeconds>10</KeepAliveSeconds><IdleTimeoutMinutes>5</IdleTimeoutMinutes></Session>
  <Polling><IntervalMs>500</IntervalMs><BatchSize>10</BatchSize><RetryDelaySeconds>2</RetryDelaySeconds></Polling>
</AppVisionBridge>`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.PeerAddress() != "10.0.0.5:8999" {
		t.Errorf("unexpected peer address %q", cfg.PeerAddress())
	}
	if cfg.Polling.IntervalMs != 500 {
		t.Errorf("expected interval 500, got %d", cfg.Polling.IntervalMs)
	}
	want := filepath.Join(dir, "state/session.json")
	if cfg.Session.RecordPath != want {
		t.Errorf("relative record path not resolved: got %q want %q", cfg.Session.RecordPath, want)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("APPVISION_HOST", "192.168.1.9")
	t.Setenv("APPVISION_SESSION_FILE", "/var/lib/bridge/session.json")

	path := filepath.Join(t.TempDir(), "bridge.config")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Peer.Host != "192.168.1.9" {
		t.Errorf("expected env host override, got %q", cfg.Peer.Host)
	}
	if cfg.Session.RecordPath != "/var/lib/bridge/session.json" {
		t.Errorf("expected env session path override, got %q", cfg.Session.RecordPath)
	}
}

func TestLoadFilters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filters.yaml")
	if err := os.WriteFile(path, []byte("types:\n  - AlarmInfo\n  - VariableState\n"), 0644); err != nil {
		t.Fatal(err)
	}

	filters, err := LoadFilters(path)
	if err != nil {
		t.Fatalf("LoadFilters failed: %v", err)
	}
	if len(filters.Types) != 2 || filters.Types[0] != "AlarmInfo" {
		t.Errorf("unexpected filters: %+v", filters.Types)
	}
}

func TestLoadFiltersAbsent(t *testing.T) {
	filters, err := LoadFilters("")
	if err != nil {
		t.Fatalf("empty path should not fail: %v", err)
	}
	if len(filters.Types) != 0 {
		t.Errorf("expected empty filter set, got %+v", filters.Types)
	}

	filters, err = LoadFilters(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if len(filters.Types) != 0 {
		t.Errorf("expected empty filter set, got %+v", filters.Types)
	}
}
