// Package config handles configuration for the groupd server,
// including defaults, environment overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the groupd relay.
//
// Fields:
//   - DatabasePath: filesystem path of the SQLite identity database.
//   - KeysDir: directory holding the server PGP keypair.
//   - SecretPath: file containing the keypair passphrase, read once at startup.
//   - LogFilePath: log sink path (JSON lines, also mirrored to stdout).
//   - NymClientID: identity under which the server keypair is filed.
//   - NymSDKStorage: nym-client storage directory, created if missing.
//   - NymWSURL: websocket endpoint of the local nym-client.
//   - RedisURL: stream broker URL.
//   - AdminPublicKey / AdminPublicKeyPath: armored admin key, inline or file.
//   - SessionIdleTimeout: idle eviction for authenticated sessions.
//   - RequestTimeout: budget for store/broker work per request.
type Config struct {
	DatabasePath       string
	KeysDir            string
	SecretPath         string
	LogFilePath        string
	NymClientID        string
	NymSDKStorage      string
	NymWSURL           string
	RedisURL           string
	AdminPublicKey     string
	AdminPublicKeyPath string
	SessionIdleTimeout time.Duration
	RequestTimeout     time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "storage/groupd.db"
	c.KeysDir = "storage/keys"
	c.SecretPath = "secrets/encryption_password"
	c.LogFilePath = "logs/groupd.log"
	c.NymClientID = "groupd"
	c.NymSDKStorage = "storage/groupd"
	c.NymWSURL = "ws://127.0.0.1:1977"
	c.RedisURL = "redis://127.0.0.1/"
	c.SessionIdleTimeout = 30 * time.Minute
	c.RequestTimeout = 5 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the environment and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
