// Package config provides XML-based configuration management for the bridge
// processes, with environment overrides for containerized deployments.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure shared by the
// tool server and the trigger daemon.
type AppConfig struct {
	XMLName xml.Name `xml:"AppVisionBridge"`

	// Server configuration (tool-invocation HTTP surface)
	Server ServerConfig `xml:"Server"`

	// Peer configuration (the AppVision server this bridge talks to)
	Peer PeerConfig `xml:"Peer"`

	// Session configuration (shared record + keep-alive)
	Session SessionConfig `xml:"Session"`

	// Polling configuration (trigger daemon)
	Polling PollingConfig `xml:"Polling"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// PeerConfig identifies the supervision server and the login credentials the
// trigger daemon uses for automatic reconnection.
type PeerConfig struct {
	Host     string `xml:"Host"`
	Port     int    `xml:"Port"`
	Username string `xml:"Username"`
	Password string `xml:"Password"`
}

// SessionConfig contains the shared session record path and keep-alive
// timings.
type SessionConfig struct {
	RecordPath         string `xml:"RecordPath"`
	KeepAliveSeconds   int    `xml:"KeepAliveSeconds"`
	IdleTimeoutMinutes int    `xml:"IdleTimeoutMinutes"`
}

// PollingConfig contains the notification loop settings.
type PollingConfig struct {
	IntervalMs        int    `xml:"IntervalMs"`
	BatchSize         int    `xml:"BatchSize"`
	RetryDelaySeconds int    `xml:"RetryDelaySeconds"`
	FiltersFile       string `xml:"FiltersFile"`
}

// AdvancedConfig contains tuning options.
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "1M",
		},
		Peer: PeerConfig{
			Host:     "127.0.0.1",
			Port:     8999,
			Username: "admin",
			Password: "",
		},
		Session: SessionConfig{
			RecordPath:         "./data/session.json",
			KeepAliveSeconds:   10,
			IdleTimeoutMinutes: 5,
		},
		Polling: PollingConfig{
			IntervalMs:        1000,
			BatchSize:         10,
			RetryDelaySeconds: 2,
			FiltersFile:       "",
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 65536,
		},
	}
}

// LoadConfig loads configuration from an XML file, creating the default file
// on first run.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration to an XML file.
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- AppVision Bridge Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config
// values; this is how containerized deployments point at their own paths.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("APPVISION_HOST"); host != "" {
		c.Peer.Host = host
	}
	if port := os.Getenv("APPVISION_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Peer.Port = p
		}
	}
	if user := os.Getenv("APPVISION_USERNAME"); user != "" {
		c.Peer.Username = user
	}
	if pass := os.Getenv("APPVISION_PASSWORD"); pass != "" {
		c.Peer.Password = pass
	}

	if path := os.Getenv("APPVISION_SESSION_FILE"); path != "" {
		c.Session.RecordPath = path
	}
}

// resolvePaths converts relative paths to absolute based on the config file
// location.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Session.RecordPath) {
		c.Session.RecordPath = filepath.Join(configDir, c.Session.RecordPath)
	}
	if c.Polling.FiltersFile != "" && !filepath.IsAbs(c.Polling.FiltersFile) {
		c.Polling.FiltersFile = filepath.Join(configDir, c.Polling.FiltersFile)
	}
}

// PeerAddress returns the host:port of the supervision server.
func (c *AppConfig) PeerAddress() string {
	return fmt.Sprintf("%s:%d", c.Peer.Host, c.Peer.Port)
}

// GetServerAddr returns the HTTP bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}
