package framelink

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "framelink.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Client.Host != DefaultHost || cfg.Client.Port != DefaultPort {
		t.Errorf("client endpoint = %s:%d", cfg.Client.Host, cfg.Client.Port)
	}
	if cfg.Server.Port != DefaultPort || cfg.Server.MaxPending != DefaultMaxPending {
		t.Errorf("server = %d/%d", cfg.Server.Port, cfg.Server.MaxPending)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[client]
host = "chat.example.org"
port = 6000
read_timeout_ms = 250
max_errors = 3

[server]
port = 6001
max_pending = 32
handler_read_timeout_ms = 1000
shutdown_timeout_ms = 500
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Client.Host != "chat.example.org" || cfg.Client.Port != 6000 {
		t.Errorf("client endpoint = %s:%d", cfg.Client.Host, cfg.Client.Port)
	}
	if cfg.Client.ReadTimeoutMS != 250 || cfg.Client.MaxErrors != 3 {
		t.Errorf("client = %+v", cfg.Client)
	}
	// untouched keys keep their defaults
	if cfg.Client.DialTimeoutMS != DefaultDialTimeout.Milliseconds() {
		t.Errorf("dial_timeout_ms = %d", cfg.Client.DialTimeoutMS)
	}
	if cfg.Server.Port != 6001 || cfg.Server.MaxPending != 32 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.HandlerReadTimeoutMS != 1000 || cfg.Server.ShutdownTimeoutMS != 500 {
		t.Errorf("server timeouts = %+v", cfg.Server)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
[client]
hostname = "typo"
`)

	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "client.hostname") {
		t.Errorf("LoadConfig = %v, want unknown key error", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", "[client\nport = 1"},
		{"port range", "[server]\nport = 70000"},
		{"negative backlog", "[server]\nmax_pending = -1"},
		{"empty host", "[client]\nhost = \" \""},
		{"negative timeout", "[client]\nread_timeout_ms = -5"},
		{"negative limit", "[server]\nmax_errors = -2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestClientConfig_NewClient(t *testing.T) {
	cfg := ClientConfig{
		Host:           "127.0.0.1",
		Port:           6000,
		ReadTimeoutMS:  100,
		WriteTimeoutMS: 200,
		DialTimeoutMS:  300,
		MaxErrors:      4,
		MaxFrameSize:   1024,
	}

	client := cfg.NewClient(LoggerOption(DiscardLogger()))

	if client.Addr() != "127.0.0.1:6000" {
		t.Errorf("Addr = %q", client.Addr())
	}
	opts := client.opts
	if opts.readTimeout != 100*time.Millisecond || opts.writeTimeout != 200*time.Millisecond ||
		opts.dialTimeout != 300*time.Millisecond {
		t.Errorf("timeouts = %v/%v/%v", opts.readTimeout, opts.writeTimeout, opts.dialTimeout)
	}
	if opts.maxErrors != 4 || opts.maxFrameSize != 1024 {
		t.Errorf("limits = %d/%d", opts.maxErrors, opts.maxFrameSize)
	}
}

func TestServerConfig_NewServer(t *testing.T) {
	cfg := ServerConfig{
		Host:                 "127.0.0.1",
		Port:                 0,
		MaxPending:           4,
		HandlerReadTimeoutMS: 150,
		ShutdownTimeoutMS:    250,
		MaxErrors:            6,
	}

	server := cfg.NewServer(ServerLoggerOption(DiscardLogger()))

	if server.host != "127.0.0.1" || server.maxPending != 4 {
		t.Errorf("server = %s/%d", server.host, server.maxPending)
	}
	if server.shutdownTimeout != 250*time.Millisecond {
		t.Errorf("shutdownTimeout = %v", server.shutdownTimeout)
	}
	if server.opts.readTimeout != 150*time.Millisecond || server.opts.maxErrors != 6 {
		t.Errorf("handler opts = %v/%d", server.opts.readTimeout, server.opts.maxErrors)
	}
	if server.opts.logger != server.logger {
		t.Error("handlers should inherit the server logger")
	}

	if err := server.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer server.Stop()
}
