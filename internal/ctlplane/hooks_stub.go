// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package ctlplane

import (
	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/errors"
	"grimm.is/stonewall/internal/logging"
)

// stubHookManager is the non-Linux placeholder; hooks need nfqueue.
type stubHookManager struct{}

// NewHookManager returns a stub on non-Linux systems.
func NewHookManager(p *engine.Pipeline, ingressQueue, egressQueue uint16, logger *logging.Logger) HookManager {
	return stubHookManager{}
}

func (stubHookManager) Install() error {
	return errors.New(errors.KindHook, "packet hooks are only supported on Linux")
}

func (stubHookManager) Uninstall() error { return nil }

func (stubHookManager) Installed() bool { return false }
