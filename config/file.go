package config

// file.go - configuration loading from a YAML or TOML file.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	ncerr "minircd/internal/errors"
)

// fileConfig mirrors the file layout, shown here in YAML.  TOML files
// use the same keys with [websocket] and [gateway] tables.  Pointer
// fields distinguish "absent" from the zero value so the file only
// overrides what it sets.
//
//	listen: 0.0.0.0
//	port: 6667
//	server_tag: irc.example.com
//	server_name: Example IRC
//	max_connections: 500
//	stats_interval: 1m
//	verbose: 1
//	websocket:
//	  listen: 0.0.0.0:8080
//	  path: /irc
//	  allowed_origins: [https://chat.example.com]
//	gateway:
//	  spec: irc@gw.example.com:22
//	  remote_bind: 0.0.0.0
//	  remote_port: 6667
//	  ssh_key: /etc/minircd/id_ed25519
//	  ssh_agent: false
//	  strict_host_key: true
//	  known_hosts: /etc/minircd/known_hosts
//	  keepalive: 30s
type fileConfig struct {
	Listen         *string `yaml:"listen" toml:"listen"`
	Port           *int    `yaml:"port" toml:"port"`
	ServerTag      *string `yaml:"server_tag" toml:"server_tag"`
	ServerName     *string `yaml:"server_name" toml:"server_name"`
	MaxConnections *int    `yaml:"max_connections" toml:"max_connections"`
	StatsInterval  *string `yaml:"stats_interval" toml:"stats_interval"`
	Verbose        *int    `yaml:"verbose" toml:"verbose"`

	WebSocket *struct {
		Listen         *string  `yaml:"listen" toml:"listen"`
		Path           *string  `yaml:"path" toml:"path"`
		AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	} `yaml:"websocket" toml:"websocket"`

	Gateway *struct {
		Spec          *string `yaml:"spec" toml:"spec"`
		RemoteBind    *string `yaml:"remote_bind" toml:"remote_bind"`
		RemotePort    *int    `yaml:"remote_port" toml:"remote_port"`
		SSHKey        *string `yaml:"ssh_key" toml:"ssh_key"`
		SSHAgent      *bool   `yaml:"ssh_agent" toml:"ssh_agent"`
		StrictHostKey *bool   `yaml:"strict_host_key" toml:"strict_host_key"`
		KnownHosts    *string `yaml:"known_hosts" toml:"known_hosts"`
		KeepAlive     *string `yaml:"keepalive" toml:"keepalive"`
	} `yaml:"gateway" toml:"gateway"`
}

// LoadFile overlays the config file at path onto cfg.  Files ending in
// ".toml" are read as TOML, anything else as YAML.  Unknown keys are
// rejected so that typos do not go unnoticed.  An empty file is valid.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "config",
			Value:   path,
			Message: err.Error(),
		}
	}

	var fc fileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = decodeTOML(data, &fc)
	} else {
		err = decodeYAML(data, &fc)
	}
	if err != nil {
		return &ncerr.ConfigError{
			Field:   "config",
			Value:   path,
			Message: err.Error(),
			Hint:    "see the fileConfig layout in config/file.go",
		}
	}
	return fc.apply(cfg)
}

func decodeYAML(data []byte, fc *fileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, fc *fileConfig) error {
	md, err := toml.Decode(string(data), fc)
	if err != nil {
		return err
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return fmt.Errorf("unknown keys %v", keys)
	}
	return nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.ListenAddress, fc.Listen)
	setInt(&cfg.Port, fc.Port)
	setString(&cfg.ServerTag, fc.ServerTag)
	setString(&cfg.ServerName, fc.ServerName)
	setInt(&cfg.MaxConnections, fc.MaxConnections)
	setInt(&cfg.Verbose, fc.Verbose)

	if err := setDuration(&cfg.StatsInterval, "stats-interval", fc.StatsInterval); err != nil {
		return err
	}

	if ws := fc.WebSocket; ws != nil {
		setString(&cfg.WebSocketAddress, ws.Listen)
		setString(&cfg.WebSocketPath, ws.Path)
		if ws.AllowedOrigins != nil {
			cfg.AllowedOrigins = ws.AllowedOrigins
		}
	}

	if gw := fc.Gateway; gw != nil {
		setString(&cfg.GatewaySpec, gw.Spec)
		setString(&cfg.RemoteBindAddress, gw.RemoteBind)
		setInt(&cfg.RemotePort, gw.RemotePort)
		setString(&cfg.SSHKeyPath, gw.SSHKey)
		setBool(&cfg.UseSSHAgent, gw.SSHAgent)
		setBool(&cfg.StrictHostKey, gw.StrictHostKey)
		setString(&cfg.KnownHostsPath, gw.KnownHosts)
		if err := setDuration(&cfg.KeepAlive, "keepalive", gw.KeepAlive); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, field string, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return &ncerr.ConfigError{
			Field:   field,
			Value:   *v,
			Message: fmt.Sprintf("invalid duration: %v", err),
			Hint:    `use a Go duration such as "30s" or "5m"`,
		}
	}
	*dst = d
	return nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
