package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if !strings.HasSuffix(cfg.DataDir, ".deschool") {
		t.Errorf("expected data dir under .deschool, got %s", cfg.DataDir)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("expected default storage backend 'file', got %s", cfg.Storage.Backend)
	}
	if cfg.Wallet.DefaultType != "MetaMask" {
		t.Errorf("expected default wallet type 'MetaMask', got %s", cfg.Wallet.DefaultType)
	}
	if cfg.Wallet.KeystoreDir != filepath.Join(cfg.DataDir, "keystore") {
		t.Errorf("unexpected keystore dir %s", cfg.Wallet.KeystoreDir)
	}
	if cfg.CyberConnect.Domain != "test.com" {
		t.Errorf("expected default login domain 'test.com', got %s", cfg.CyberConnect.Domain)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected 30s request timeout, got %s", cfg.RequestTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty data dir is invalid",
			modify:  func(c *Config) { c.DataDir = "" },
			wantErr: true,
		},
		{
			name:    "zero timeout is invalid",
			modify:  func(c *Config) { c.RequestTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "keyring backend is valid",
			modify:  func(c *Config) { c.Storage.Backend = "keyring" },
			wantErr: false,
		},
		{
			name: "keyring backend needs a service",
			modify: func(c *Config) {
				c.Storage.Backend = "keyring"
				c.Storage.KeyringService = ""
			},
			wantErr: true,
		},
		{
			name:    "memory backend is valid",
			modify:  func(c *Config) { c.Storage.Backend = "memory" },
			wantErr: false,
		},
		{
			name:    "unknown storage backend",
			modify:  func(c *Config) { c.Storage.Backend = "sqlite" },
			wantErr: true,
		},
		{
			name:    "UniPass wallet type is valid",
			modify:  func(c *Config) { c.Wallet.DefaultType = "UniPass" },
			wantErr: false,
		},
		{
			name:    "unknown wallet type",
			modify:  func(c *Config) { c.Wallet.DefaultType = "Ledger" },
			wantErr: true,
		},
		{
			name:    "negative poll interval",
			modify:  func(c *Config) { c.Wallet.PollInterval = -time.Second },
			wantErr: true,
		},
		{
			name:    "missing cyberconnect endpoint",
			modify:  func(c *Config) { c.CyberConnect.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "relative booth endpoint",
			modify:  func(c *Config) { c.Booth.Endpoint = "booth/api" },
			wantErr: true,
		},
		{
			name:    "empty extension rpc is valid",
			modify:  func(c *Config) { c.Wallet.ExtensionRPC = "" },
			wantErr: false,
		},
		{
			name:    "bad fallback chain rpc",
			modify:  func(c *Config) { c.Wallet.ChainRPCURLs = []string{"not a url"} },
			wantErr: true,
		},
		{
			name:    "json log format is valid",
			modify:  func(c *Config) { c.Log.Format = "JSON" },
			wantErr: false,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolvedChainRPCURLs(t *testing.T) {
	w := WalletConfig{
		ChainRPCURL:  "https://a",
		ChainRPCURLs: []string{"https://b", "https://a", "", "https://b", "https://c"},
	}
	got := w.ResolvedChainRPCURLs()
	want := []string{"https://a", "https://b", "https://c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ResolvedChainRPCURLs() = %v, want %v", got, want)
	}

	if got := (&WalletConfig{}).ResolvedChainRPCURLs(); len(got) != 0 {
		t.Errorf("expected no URLs, got %v", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Storage.Backend = "keyring"
	cfg.Wallet.DefaultType = "UniPass"
	cfg.Wallet.PollInterval = 5 * time.Second
	cfg.CyberConnect.APIKey = "cc-key"
	cfg.Metrics.Textfile = filepath.Join(tmpDir, "deschool.prom")

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected file permissions 0600, got %o", perm)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Storage.Backend != "keyring" {
		t.Errorf("expected backend 'keyring', got %s", loaded.Storage.Backend)
	}
	if loaded.Wallet.DefaultType != "UniPass" {
		t.Errorf("expected wallet type 'UniPass', got %s", loaded.Wallet.DefaultType)
	}
	if loaded.Wallet.PollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %s", loaded.Wallet.PollInterval)
	}
	if loaded.CyberConnect.APIKey != "cc-key" {
		t.Errorf("expected api key to round trip, got %q", loaded.CyberConnect.APIKey)
	}
	if loaded.Metrics.Textfile != cfg.Metrics.Textfile {
		t.Errorf("expected textfile %s, got %s", cfg.Metrics.Textfile, loaded.Metrics.Textfile)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: debug\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level 'debug', got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("expected default format 'text', got %s", cfg.Log.Format)
	}
	if cfg.Booth.Endpoint == "" {
		t.Error("expected default booth endpoint")
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load() of nonexistent file should not error, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("expected default backend, got %s", cfg.Storage.Backend)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("{{{{invalid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("storage:\n  backend: sqlite\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected invalid configuration error, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("DESCHOOL_DATA_DIR", tmpDir)
	t.Setenv("DESCHOOL_STORAGE_BACKEND", "memory")
	t.Setenv("DESCHOOL_LOG_LEVEL", "debug")
	t.Setenv("DESCHOOL_CYBERCONNECT_API_KEY", "from-env")
	t.Setenv("DESCHOOL_POLL_INTERVAL", "250ms")

	cfg, err := Load(filepath.Join(tmpDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DataDir != tmpDir {
		t.Errorf("expected data dir %s, got %s", tmpDir, cfg.DataDir)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected backend 'memory', got %s", cfg.Storage.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected level 'debug', got %s", cfg.Log.Level)
	}
	if cfg.CyberConnect.APIKey != "from-env" {
		t.Errorf("expected api key from env, got %q", cfg.CyberConnect.APIKey)
	}
	if cfg.Wallet.PollInterval != 250*time.Millisecond {
		t.Errorf("expected poll interval 250ms, got %s", cfg.Wallet.PollInterval)
	}
}

func TestLoadEnvInvalidDuration(t *testing.T) {
	t.Setenv("DESCHOOL_REQUEST_TIMEOUT", "soon")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(homeDir, "test")},
		{"~/.deschool", filepath.Join(homeDir, ".deschool")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := expandPath(tt.input)
			if got != tt.expected {
				t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(tmpDir, "data")
	cfg.Wallet.KeystoreDir = filepath.Join(tmpDir, "data", "keystore")
	cfg.Storage.KeyringFileDir = ""

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error: %v", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.Wallet.KeystoreDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
			continue
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("expected %s permissions 0700, got %o", dir, perm)
		}
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("expected config.yaml, got %s", filepath.Base(path))
	}
	if filepath.Base(filepath.Dir(path)) != ".deschool" {
		t.Errorf("expected .deschool directory, got %s", filepath.Dir(path))
	}
}
