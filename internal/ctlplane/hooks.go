// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

// HookManager installs and removes the datapath hooks that steer ingress
// and egress traffic into the pipeline. Install is all-or-nothing: a
// partial installation is rolled back before the error returns.
type HookManager interface {
	Install() error
	Uninstall() error
	Installed() bool
}
