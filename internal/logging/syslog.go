// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"time"

	"grimm.is/stonewall/internal/brand"
	"grimm.is/stonewall/internal/errors"
)

// SyslogConfig configures forwarding of log lines to a remote syslog
// collector.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns the disabled default configuration.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      brand.LowerName,
		Facility: 1,
	}
}

// SyslogWriter sends RFC 3164 formatted lines to a collector.
type SyslogWriter struct {
	conn     net.Conn
	tag      string
	facility int
}

// NewSyslogWriter connects to the configured collector, applying defaults
// for unset fields.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.KindInvalid, "syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = brand.LowerName
	}

	conn, err := net.DialTimeout(cfg.Protocol, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), 5*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "cannot reach syslog collector %s:%d", cfg.Host, cfg.Port)
	}
	return &SyslogWriter{
		conn:     conn,
		tag:      cfg.Tag,
		facility: cfg.Facility,
	}, nil
}

// severity maps our levels onto syslog severities.
func severity(level Level) int {
	switch {
	case level >= LevelError:
		return 3
	case level >= LevelWarn:
		return 4
	case level >= LevelInfo:
		return 6
	default:
		return 7
	}
}

// WriteLine sends one log line at the given level.
func (w *SyslogWriter) WriteLine(level Level, line string) error {
	pri := w.facility*8 + severity(level)
	ts := time.Now().Format(time.Stamp)
	_, err := fmt.Fprintf(w.conn, "<%d>%s %s: %s\n", pri, ts, w.tag, line)
	return err
}

// Close shuts down the collector connection.
func (w *SyslogWriter) Close() error {
	return w.conn.Close()
}
