// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"grimm.is/stonewall/internal/brand"
	"grimm.is/stonewall/internal/config"
	"grimm.is/stonewall/internal/ctlplane"
	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/install"
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/metrics"
	"grimm.is/stonewall/internal/rules"
)

var enableOnStart bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the firewall daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	startCmd.Flags().BoolVar(&enableOnStart, "enable", false,
		"install the packet hooks immediately instead of waiting for the enable command")
	rootCmd.AddCommand(startCmd)
}

func runDaemon() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	ring := logging.NewRing()

	var syslogWriter *logging.SyslogWriter
	if cfg.SyslogHost != "" {
		sw, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Enabled: true,
			Host:    cfg.SyslogHost,
			Port:    cfg.SyslogPort,
		})
		if err != nil {
			return err
		}
		syslogWriter = sw
		defer syslogWriter.Close()
	}

	logger := logging.New(logging.Config{
		Level:  parseLevel(cfg.LogLevel),
		File:   cfg.LogFile,
		Ring:   ring,
		Syslog: syslogWriter,
	})
	logging.SetDefault(logger)
	defer logger.Close()

	m := metrics.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	if err := m.Register(registry); err != nil {
		return err
	}

	defaultAction := rules.ActionAccept
	if cfg.DefaultAction == "drop" {
		defaultAction = rules.ActionDrop
	}

	pipeline := engine.NewPipeline(engine.Options{
		DefaultAction: defaultAction,
		ReaperTick:    cfg.ReaperTickDuration(),
		IdleTimeout:   cfg.IdleTimeoutDuration(),
		Logger:        logger,
		Metrics:       m,
	})
	defer pipeline.Close()

	pipeline.Rules.SetPath(cfg.RuleFile)
	pipeline.NATRules.SetPath(cfg.NATRuleFile)
	if err := pipeline.Reload(); err != nil {
		// Missing rule files are not fatal at boot; the firewall starts
		// with empty rule lists and the default action.
		logger.Warn("initial rule load failed", "error", err)
	}

	hooks := ctlplane.NewHookManager(pipeline,
		uint16(cfg.IngressQueue), uint16(cfg.EgressQueue),
		logger.WithComponent("hooks"))

	ctl := ctlplane.NewServer(pipeline, hooks, cfg.ControlSocket, logger.WithComponent("ctl"))
	if err := ctl.Start(); err != nil {
		return err
	}
	defer ctl.Stop()

	obs := ctlplane.NewHTTPServer(pipeline, ring, registry, logger.WithComponent("http"))
	if err := obs.Start(cfg.ListenHTTP); err != nil {
		return err
	}
	defer obs.Stop()

	if enableOnStart {
		if err := hooks.Install(); err != nil {
			return err
		}
	}
	defer func() { _ = hooks.Uninstall() }()

	if err := writePIDFile(); err != nil {
		logger.Warn("cannot write PID file", "error", err)
	} else {
		defer removePIDFile()
	}

	logger.Info("daemon started",
		"config", configPath(),
		"control_socket", cfg.ControlSocket,
		"listen_http", cfg.ListenHTTP)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	return nil
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func pidFilePath() string {
	return filepath.Join(install.GetRunDir(), brand.LowerName+".pid")
}

func writePIDFile() error {
	if err := os.MkdirAll(install.GetRunDir(), 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile() {
	_ = os.Remove(pidFilePath())
}

func readPIDFile() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("corrupt PID file %s: %w", pidFilePath(), err)
	}
	return pid, nil
}
