// Package cmd wires up the CLI flags and starts the server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"minircd/config"
	"minircd/internal/core"
	"minircd/internal/metrics"
	"minircd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X minircd/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// output receives help, version and dry-run text.
var output io.Writer = os.Stderr //nolint:gochecknoglobals

// cliOptions are the flags that control the command itself rather than
// the server configuration.
type cliOptions struct {
	showVersion bool
	showHelp    bool
	dryRun      bool
}

// Execute parses args and runs the server until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	cfg, opts, err := loadConfig(args)
	if err != nil {
		return err
	}
	switch {
	case opts.showHelp:
		printUsage(newFlagSet(config.Default(), &cliOptions{}))
		return nil
	case opts.showVersion:
		fmt.Fprintf(output, "minircd %s\n", version)
		return nil
	}

	// Level 1 shows listeners and periodic stats; each -v adds one.
	logger := util.NewLogger(int(util.LogNormal) + cfg.Verbose)
	collector := metrics.New()

	mode, err := core.Build(cfg, logger, collector)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Fprintf(output, "configuration OK, %d transport(s):\n", len(mode.Acceptors))
		for _, a := range mode.Acceptors {
			fmt.Fprintf(output, "  %s\n", a)
		}
		return nil
	}
	return mode.Run(ctx)
}

// loadConfig layers the configuration sources, lowest precedence
// first: defaults, the config file, MINIRCD_* variables, then flags.
//
// Flags are parsed twice.  The first pass only finds --config and the
// command options; the second binds to the loaded config so that only
// flags given on the command line overwrite it.
func loadConfig(args []string) (*config.Config, cliOptions, error) {
	var opts cliOptions
	probe := config.Default()
	fs := newFlagSet(probe, &opts)
	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}
	if opts.showHelp || opts.showVersion {
		return probe, opts, nil
	}
	if fs.NArg() > 0 {
		return nil, opts, fmt.Errorf("unexpected arguments: %s (use --help for usage)",
			strings.Join(fs.Args(), " "))
	}

	cfg := config.Default()
	path := probe.ConfigFile
	if path == "" {
		path = config.ConfigFileFromEnv()
	}
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return nil, opts, err
		}
		cfg.ConfigFile = path
	}
	config.LoadFromEnv(cfg)

	// Registering a count flag zeroes its target.
	verbose := cfg.Verbose
	fs = newFlagSet(cfg, &opts)
	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = verbose
	}
	return cfg, opts, nil
}

// newFlagSet binds every flag to cfg.  Flag defaults are the values
// already in cfg.
func newFlagSet(cfg *config.Config, opts *cliOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("minircd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	// ── IRC listener ─────────────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddress, "listen", "l", cfg.ListenAddress, "Address to listen on")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "TCP port for IRC clients")
	fs.StringVar(&cfg.ServerTag, "server-tag", cfg.ServerTag, "Prefix of server lines")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "Network name in the welcome line")
	fs.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "Maximum concurrent clients (0 = unlimited)")

	// ── WebSocket ────────────────────────────────────────────────
	fs.StringVar(&cfg.WebSocketAddress, "ws-listen", cfg.WebSocketAddress, "Serve WebSocket clients on host:port")
	fs.StringVar(&cfg.WebSocketPath, "ws-path", cfg.WebSocketPath, "WebSocket upgrade path")
	fs.StringSliceVar(&cfg.AllowedOrigins, "ws-origin", cfg.AllowedOrigins, "Allowed browser origin (repeatable, * for any)")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.GatewaySpec, "gateway", "R", cfg.GatewaySpec, "Publish via SSH remote forward on [user@]host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port the gateway listens on")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind", cfg.RemoteBindAddress, "Address the gateway binds")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "SSH gateway keepalive interval (0 = off)")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file (or MINIRCD_CONFIG)")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "Log statistics at this interval (0 = off)")
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate the configuration and exit")

	return fs
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(output, `minircd - minimal IRC relay server v%s

Every registered client receives every PRIVMSG.

Usage:
  minircd [options]

Options:
`, version)
	fs.SetOutput(output)
	fs.PrintDefaults()
	fmt.Fprintf(output, `
Examples:
  minircd                                     Serve on 0.0.0.0:6667
  minircd -l 127.0.0.1 -p 7000 -v             Local only, verbose
  minircd --ws-listen :8080 --ws-origin '*'   Also serve WebSocket clients
  minircd -R irc@gw.example.com --remote-port 6667
                                              Publish through an SSH gateway
  minircd --config /etc/minircd.yaml --dry-run
`)
}
