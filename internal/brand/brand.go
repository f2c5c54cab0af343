// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand provides centralized naming constants for the firewall.
package brand

const (
	Name        = "Stonewall"
	LowerName   = "stonewall"
	BinaryName  = "stonewall"
	ServiceName = "stonewall"

	// ConfigEnvPrefix is the prefix for environment variable overrides.
	ConfigEnvPrefix = "STONEWALL"

	ConfigFileName = "stonewall.hcl"
	SocketName     = "stonewall.sock"

	// NFTableName is the nftables table owned by the hook manager.
	NFTableName = "stonewall"
)
