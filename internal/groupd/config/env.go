package config

import (
	"os"
	"time"
)

// parseEnv overlays recognized environment variables onto the Config.
// Unset variables leave the current value untouched; malformed durations
// are ignored rather than failing startup.
func parseEnv(config *Config) {
	setString := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString(&config.DatabasePath, "DATABASE_PATH")
	setString(&config.KeysDir, "KEYS_DIR")
	setString(&config.SecretPath, "SECRET_PATH")
	setString(&config.LogFilePath, "LOG_FILE_PATH")
	setString(&config.NymClientID, "NYM_CLIENT_ID")
	setString(&config.NymSDKStorage, "NYM_SDK_STORAGE")
	setString(&config.NymWSURL, "NYM_WS_URL")
	setString(&config.RedisURL, "REDIS_URL")
	setString(&config.AdminPublicKey, "ADMIN_PUBLIC_KEY")
	setString(&config.AdminPublicKeyPath, "ADMIN_PUBLIC_KEY_PATH")
	setDuration(&config.SessionIdleTimeout, "SESSION_IDLE_TIMEOUT")
	setDuration(&config.RequestTimeout, "REQUEST_TIMEOUT")
}
