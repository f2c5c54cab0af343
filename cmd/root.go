// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd holds the stonewall CLI.
package cmd

import (
	"github.com/spf13/cobra"

	"grimm.is/stonewall/internal/brand"
	"grimm.is/stonewall/internal/install"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           brand.BinaryName,
	Short:         brand.Name + " is a stateful IPv4 packet-filtering firewall with NAT",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file (default "+install.DefaultConfigFile()+")")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func configPath() string {
	if configFile != "" {
		return configFile
	}
	return install.DefaultConfigFile()
}
