// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package install

import (
	"os"
	"path/filepath"

	"grimm.is/stonewall/internal/brand"
)

// Compiled-in defaults. Distributions can override via -ldflags.
var (
	DefaultConfigDir = "/etc/" + brand.LowerName
	DefaultStateDir  = "/var/lib/" + brand.LowerName
	DefaultLogDir    = "/var/log/" + brand.LowerName
	DefaultRunDir    = "/run/" + brand.LowerName
)

// GetConfigDir returns the configuration directory, checking env vars first.
// Priority: STONEWALL_CONFIG_DIR > STONEWALL_PREFIX/etc > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "etc")
	}
	return DefaultConfigDir
}

// GetLogDir returns the log directory, checking env vars first.
func GetLogDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_LOG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "log")
	}
	return DefaultLogDir
}

// GetRunDir returns the runtime directory for PID and socket files.
func GetRunDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_RUN_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "run")
	}
	return DefaultRunDir
}

// DefaultConfigFile returns the full path to the default config file.
func DefaultConfigFile() string {
	return filepath.Join(GetConfigDir(), brand.ConfigFileName)
}

// DefaultSocketPath returns the full path to the control socket.
func DefaultSocketPath() string {
	return filepath.Join(GetRunDir(), brand.SocketName)
}
