// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the daemon configuration from HCL.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/stonewall/internal/errors"
	"grimm.is/stonewall/internal/install"
)

// Config is the daemon configuration.
type Config struct {
	// RuleFile is the filter rule CSV path.
	RuleFile string `hcl:"rule_file,optional"`
	// NATRuleFile is the NAT rule CSV path.
	NATRuleFile string `hcl:"nat_rule_file,optional"`
	// LogFile receives a copy of every log line.
	LogFile string `hcl:"log_file,optional"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `hcl:"log_level,optional"`
	// SyslogHost, when set, forwards log lines to a remote collector.
	SyslogHost string `hcl:"syslog_host,optional"`
	// SyslogPort defaults to 514.
	SyslogPort int `hcl:"syslog_port,optional"`

	// ControlSocket is the unixpacket command endpoint path.
	ControlSocket string `hcl:"control_socket,optional"`
	// ListenHTTP is the observability listen address.
	ListenHTTP string `hcl:"listen_http,optional"`

	// DefaultAction governs unmatched packets: accept or drop.
	DefaultAction string `hcl:"default_action,optional"`

	// ReaperTick and IdleTimeout are Go duration strings.
	ReaperTick  string `hcl:"reaper_tick,optional"`
	IdleTimeout string `hcl:"idle_timeout,optional"`

	// IngressQueue and EgressQueue are the nfqueue numbers the hooks bind.
	IngressQueue int `hcl:"ingress_queue,optional"`
	EgressQueue  int `hcl:"egress_queue,optional"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.RuleFile == "" {
		c.RuleFile = filepath.Join(install.GetConfigDir(), "net_rule.csv")
	}
	if c.NATRuleFile == "" {
		c.NATRuleFile = filepath.Join(install.GetConfigDir(), "nat_rule.csv")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(install.GetLogDir(), "net_log.txt")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ControlSocket == "" {
		c.ControlSocket = install.DefaultSocketPath()
	}
	if c.ListenHTTP == "" {
		c.ListenHTTP = "127.0.0.1:9880"
	}
	if c.DefaultAction == "" {
		c.DefaultAction = "accept"
	}
	if c.ReaperTick == "" {
		c.ReaperTick = "5s"
	}
	if c.IdleTimeout == "" {
		c.IdleTimeout = "5s"
	}
	if c.IngressQueue == 0 {
		c.IngressQueue = 8700
	}
	if c.EgressQueue == 0 {
		c.EgressQueue = 8701
	}
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
				return nil, errors.Wrapf(err, errors.KindParse, "cannot parse config %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.KindIO, "cannot read config %s", path)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	switch c.DefaultAction {
	case "accept", "drop":
	default:
		return errors.Errorf(errors.KindInvalid, "default_action must be accept or drop, got %q", c.DefaultAction)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf(errors.KindInvalid, "log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if _, err := time.ParseDuration(c.ReaperTick); err != nil {
		return errors.Wrapf(err, errors.KindInvalid, "bad reaper_tick %q", c.ReaperTick)
	}
	if _, err := time.ParseDuration(c.IdleTimeout); err != nil {
		return errors.Wrapf(err, errors.KindInvalid, "bad idle_timeout %q", c.IdleTimeout)
	}
	if c.IngressQueue < 0 || c.IngressQueue > 0xffff || c.EgressQueue < 0 || c.EgressQueue > 0xffff {
		return errors.New(errors.KindInvalid, "queue numbers must fit uint16")
	}
	if c.IngressQueue == c.EgressQueue {
		return errors.New(errors.KindInvalid, "ingress_queue and egress_queue must differ")
	}
	return nil
}

// ReaperTickDuration returns the parsed reaper tick.
func (c *Config) ReaperTickDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReaperTick)
	return d
}

// IdleTimeoutDuration returns the parsed idle timeout.
func (c *Config) IdleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	return d
}
