package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the MINIRCD_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MINIRCD_LISTEN"); v != "" {
		cfg.ListenAddress = v
	}
	if v := envInt("MINIRCD_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("MINIRCD_SERVER_TAG"); v != "" {
		cfg.ServerTag = v
	}
	if v := os.Getenv("MINIRCD_SERVER_NAME"); v != "" {
		cfg.ServerName = v
	}
	if v := envInt("MINIRCD_MAX_CONNS"); v > 0 {
		cfg.MaxConnections = v
	}

	// WebSocket
	if v := os.Getenv("MINIRCD_WS_LISTEN"); v != "" {
		cfg.WebSocketAddress = v
	}
	if v := os.Getenv("MINIRCD_WS_PATH"); v != "" {
		cfg.WebSocketPath = v
	}
	if v := os.Getenv("MINIRCD_WS_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	// SSH gateway
	if v := os.Getenv("MINIRCD_GATEWAY"); v != "" {
		cfg.GatewaySpec = v
	}
	if v := envInt("MINIRCD_REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := os.Getenv("MINIRCD_REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := os.Getenv("MINIRCD_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("MINIRCD_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("MINIRCD_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("MINIRCD_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("MINIRCD_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := os.Getenv("MINIRCD_KEEPALIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.KeepAlive = secondsDuration(n)
		}
	}

	// Output
	if v := envInt("MINIRCD_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := envInt("MINIRCD_STATS_INTERVAL"); v > 0 {
		cfg.StatsInterval = secondsDuration(v)
	}
}

// ConfigFileFromEnv returns MINIRCD_CONFIG, the config file to load
// when --config is not given.
func ConfigFileFromEnv() string {
	return os.Getenv("MINIRCD_CONFIG")
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
