package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DESCHOOL_LOG_LEVEL.
const EnvPrefix = "DESCHOOL_"

// Config represents the complete client configuration
type Config struct {
	DataDir        string             `yaml:"data_dir"`
	RequestTimeout time.Duration      `yaml:"request_timeout"`
	Storage        StorageConfig      `yaml:"storage"`
	Wallet         WalletConfig       `yaml:"wallet"`
	CyberConnect   CyberConnectConfig `yaml:"cyberconnect"`
	Booth          BoothConfig        `yaml:"booth"`
	Log            LogConfig          `yaml:"log"`
	Metrics        MetricsConfig      `yaml:"metrics"`
}

// StorageConfig selects where the account slots are persisted
type StorageConfig struct {
	// Backend is "file", "keyring" or "memory"
	Backend        string `yaml:"backend"`
	KeyringService string `yaml:"keyring_service"`
	// KeyringFileDir enables the encrypted-file keyring backend, for
	// machines without a platform keyring.
	KeyringFileDir string `yaml:"keyring_file_dir,omitempty"`
}

// WalletConfig contains wallet backend settings
type WalletConfig struct {
	// DefaultType is the backend used by login when none is given
	DefaultType string `yaml:"default_type"`
	ChainID     string `yaml:"chain_id"`
	// ExtensionRPC is the JSON-RPC bridge of the browser-extension wallet
	ExtensionRPC string        `yaml:"extension_rpc"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Chain node used by the custody wallet to submit transactions
	ChainRPCURL  string   `yaml:"chain_rpc_url"`
	ChainRPCURLs []string `yaml:"chain_rpc_urls,omitempty"`

	KeystoreDir  string `yaml:"keystore_dir"`
	PasswordFile string `yaml:"password_file,omitempty"`
}

// ResolvedChainRPCURLs returns the primary chain RPC URL followed by the
// fallbacks, without duplicates.
func (w *WalletConfig) ResolvedChainRPCURLs() []string {
	return mergeURLs(w.ChainRPCURL, w.ChainRPCURLs)
}

func mergeURLs(primary string, extras []string) []string {
	seen := make(map[string]bool)
	var result []string
	if primary != "" {
		seen[primary] = true
		result = append(result, primary)
	}
	for _, u := range extras {
		if u != "" && !seen[u] {
			seen[u] = true
			result = append(result, u)
		}
	}
	return result
}

// CyberConnectConfig contains the CyberConnect API settings
type CyberConnectConfig struct {
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key,omitempty"`
	Domain    string `yaml:"domain"`
	ClaimSite string `yaml:"claim_site"`
}

// BoothConfig contains the Deschool Booth API settings
type BoothConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	// Textfile, when set, receives the metrics after every command
	Textfile string `yaml:"textfile,omitempty"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".deschool")

	return &Config{
		DataDir:        dataDir,
		RequestTimeout: 30 * time.Second,
		Storage: StorageConfig{
			Backend:        "file",
			KeyringService: "deschool",
		},
		Wallet: WalletConfig{
			DefaultType:  "MetaMask",
			ChainID:      "137",
			ExtensionRPC: "http://127.0.0.1:1248",
			PollInterval: 2 * time.Second,
			ChainRPCURL:  "https://polygon-rpc.com",
			KeystoreDir:  filepath.Join(dataDir, "keystore"),
		},
		CyberConnect: CyberConnectConfig{
			Endpoint:  "https://api.cyberconnect.dev/testnet/",
			Domain:    "test.com",
			ClaimSite: "https://link3.to",
		},
		Booth: BoothConfig{
			Endpoint: "https://booth.deschool.app/api",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from file, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnv overrides fields from DESCHOOL_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_DIR":              &c.DataDir,
		"STORAGE_BACKEND":       &c.Storage.Backend,
		"KEYRING_FILE_DIR":      &c.Storage.KeyringFileDir,
		"WALLET_TYPE":           &c.Wallet.DefaultType,
		"CHAIN_ID":              &c.Wallet.ChainID,
		"EXTENSION_RPC":         &c.Wallet.ExtensionRPC,
		"CHAIN_RPC_URL":         &c.Wallet.ChainRPCURL,
		"KEYSTORE_DIR":          &c.Wallet.KeystoreDir,
		"WALLET_PASSWORD_FILE":  &c.Wallet.PasswordFile,
		"CYBERCONNECT_ENDPOINT": &c.CyberConnect.Endpoint,
		"CYBERCONNECT_API_KEY":  &c.CyberConnect.APIKey,
		"CYBERCONNECT_DOMAIN":   &c.CyberConnect.Domain,
		"BOOTH_ENDPOINT":        &c.Booth.Endpoint,
		"LOG_LEVEL":             &c.Log.Level,
		"LOG_FORMAT":            &c.Log.Format,
		"METRICS_TEXTFILE":      &c.Metrics.Textfile,
	}
	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = v
		}
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT": &c.RequestTimeout,
		"POLL_INTERVAL":   &c.Wallet.PollInterval,
	}
	for name, field := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*field = d
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}

	switch c.Storage.Backend {
	case "file", "memory":
	case "keyring":
		if c.Storage.KeyringService == "" {
			return fmt.Errorf("storage.keyring_service is required for the keyring backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Wallet.DefaultType != "MetaMask" && c.Wallet.DefaultType != "UniPass" {
		return fmt.Errorf("invalid wallet default_type: %s", c.Wallet.DefaultType)
	}
	if c.Wallet.PollInterval < 0 {
		return fmt.Errorf("wallet poll_interval must not be negative")
	}

	endpoints := map[string]string{
		"cyberconnect.endpoint": c.CyberConnect.Endpoint,
		"booth.endpoint":        c.Booth.Endpoint,
	}
	for name, u := range endpoints {
		if err := validateURL(name, u, true); err != nil {
			return err
		}
	}
	if err := validateURL("wallet.extension_rpc", c.Wallet.ExtensionRPC, false); err != nil {
		return err
	}
	for _, u := range c.Wallet.ResolvedChainRPCURLs() {
		if err := validateURL("wallet.chain_rpc_url", u, false); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// validateURL checks that u is an absolute URL. Empty values are accepted
// unless required is set.
func validateURL(name, u string, required bool) error {
	if u == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, u)
	}
	return nil
}

// expandPaths expands ~ in all path fields
func (c *Config) expandPaths() {
	c.DataDir = expandPath(c.DataDir)
	c.Storage.KeyringFileDir = expandPath(c.Storage.KeyringFileDir)
	c.Wallet.KeystoreDir = expandPath(c.Wallet.KeystoreDir)
	c.Wallet.PasswordFile = expandPath(c.Wallet.PasswordFile)
	c.Metrics.Textfile = expandPath(c.Metrics.Textfile)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".deschool", "config.yaml")
}

// EnsureDirectories creates the data and keystore directories
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.Wallet.KeystoreDir, c.Storage.KeyringFileDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
