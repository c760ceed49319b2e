package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultListenAddress binds every interface.
	DefaultListenAddress = "0.0.0.0"

	// DefaultPort is the conventional plaintext IRC port.
	DefaultPort = 6667

	// DefaultServerTag is the prefix of server-originated lines.
	DefaultServerTag = "minircd"

	// DefaultServerName appears in the welcome line.
	DefaultServerName = "minircd"

	// DefaultMaxConnections of zero means no limit.
	DefaultMaxConnections = 0

	// DefaultWebSocketPath is where the WebSocket transport upgrades.
	DefaultWebSocketPath = "/irc"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultRemoteBindAddress asks the SSH server to listen on all of
	// its interfaces (requires GatewayPorts on OpenSSH).
	DefaultRemoteBindAddress = "0.0.0.0"

	// DefaultKeepAlive is the SSH gateway keepalive interval.
	DefaultKeepAlive = 30 * time.Second

	// DefaultConnTimeout is the SSH gateway connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for sessions to
	// finish after their streams are closed.
	DefaultGracePeriod = 5 * time.Second
)

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		ListenAddress:     DefaultListenAddress,
		Port:              DefaultPort,
		ServerTag:         DefaultServerTag,
		ServerName:        DefaultServerName,
		MaxConnections:    DefaultMaxConnections,
		WebSocketPath:     DefaultWebSocketPath,
		GatewayPort:       DefaultSSHPort,
		RemoteBindAddress: DefaultRemoteBindAddress,
		KeepAlive:         DefaultKeepAlive,
	}
}
