package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer      string // Issuer claim for tokens (default: orgauth)
	EmailDomain string // Domain for derived corporate email addresses (default: example.org)

	SigningKeyFile string // Optional: path to an Ed25519 PEM key; generated there if missing. Empty means an ephemeral key.
	KeyringSecrets string // Required: identity encryption secrets as "version:secret" pairs, comma separated
	KeyringActive  int    // Optional: active keyring version (default: highest version present)

	DatabaseFile string // Path to SQLite database file (default: ./orgauth.db)
	PepperFile   string // Path to file containing pepper for password hashing (default: ./pepper)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)

	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	AccessTokenTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 168h)
}

func LoadConfig() Config {
	return Config{
		Issuer:      getEnvOrDefault("AUTH_ISSUER", "orgauth"),
		EmailDomain: getEnvOrDefault("AUTH_EMAIL_DOMAIN", "example.org"),

		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),
		KeyringSecrets: os.Getenv("AUTH_KEYRING_SECRETS"),
		KeyringActive:  getEnvIntOrDefault("AUTH_KEYRING_ACTIVE", 0),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "orgauth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),

		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", 0),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", 0),
	}
}

// ParseKeyringSecrets turns "1:oldsecret,2:newsecret" into the versioned
// secret map the keyring expects. Returns the highest version seen so it can
// stand in as the default active version.
func ParseKeyringSecrets(raw string) (map[int][]byte, int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, 0, fmt.Errorf("no keyring secrets configured")
	}

	secrets := make(map[int][]byte)
	highest := 0
	for _, pair := range strings.Split(raw, ",") {
		version, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, 0, fmt.Errorf("malformed keyring secret entry %q, want version:secret", pair)
		}
		v, err := strconv.Atoi(version)
		if err != nil || v <= 0 {
			return nil, 0, fmt.Errorf("invalid keyring secret version %q", version)
		}
		if secret == "" {
			return nil, 0, fmt.Errorf("empty secret for keyring version %d", v)
		}
		if _, dup := secrets[v]; dup {
			return nil, 0, fmt.Errorf("duplicate keyring version %d", v)
		}
		secrets[v] = []byte(secret)
		if v > highest {
			highest = v
		}
	}
	return secrets, highest, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer values are taken as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
