package core

import (
	"minircd/config"
	"minircd/internal/irc"
	"minircd/internal/metrics"
	"minircd/internal/session"
	"minircd/internal/transport"
	"minircd/util"
)

// Build resolves and validates cfg and assembles a ServeMode with one
// acceptor per enabled transport.  Plain TCP is always enabled.  A nil
// collector is replaced with a fresh one.
func Build(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) (*ServeMode, error) {
	if err := cfg.ResolveGateway(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collector == nil {
		collector = metrics.New()
	}

	acceptors := []transport.Acceptor{
		&transport.TCPAcceptor{Address: cfg.TCPAddress()},
	}
	if cfg.WebSocketAddress != "" {
		acceptors = append(acceptors, buildWebSocket(cfg, logger, collector))
	}
	if cfg.GatewayEnabled {
		acceptors = append(acceptors, buildGateway(cfg, logger))
	}

	return &ServeMode{
		Acceptors: acceptors,
		Registry:  irc.NewRegistry(collector),
		Options: session.Options{
			ServerTag:  cfg.ServerTag,
			ServerName: cfg.ServerName,
		},
		MaxConnections: cfg.MaxConnections,
		StatsInterval:  cfg.StatsInterval,
		GracePeriod:    config.DefaultGracePeriod,
		Logger:         logger,
		Metrics:        collector,
	}, nil
}

// ── transport builders ───────────────────────────────────────────────

func buildWebSocket(cfg *config.Config, logger *util.Logger, collector *metrics.Collector) *transport.WebSocketAcceptor {
	return &transport.WebSocketAcceptor{
		Address:        cfg.WebSocketAddress,
		Path:           cfg.WebSocketPath,
		AllowedOrigins: cfg.AllowedOrigins,
		Stats:          collector.JSON,
		Logger:         logger.Named("websocket"),
	}
}

func buildGateway(cfg *config.Config, logger *util.Logger) *transport.GatewayAcceptor {
	return &transport.GatewayAcceptor{
		SSH: &transport.SSHConfig{
			User:          cfg.GatewayUser,
			Host:          cfg.GatewayHost,
			Port:          cfg.GatewayPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   config.DefaultConnTimeout,
		},
		RemoteBindAddress: cfg.RemoteBindAddress,
		RemotePort:        cfg.RemotePort,
		KeepAlive:         cfg.KeepAlive,
		Logger:            logger.Named("gateway"),
	}
}
