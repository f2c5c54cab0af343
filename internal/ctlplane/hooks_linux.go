// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package ctlplane

import (
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"grimm.is/stonewall/internal/brand"
	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/errors"
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/packet"
)

// nftHookManager owns an nftables table with input and output base chains
// that steer local traffic into the two nfqueues, plus the readers that
// consume them. Queue-bypass keeps traffic flowing if the daemon dies.
type nftHookManager struct {
	mu        sync.Mutex
	installed bool

	ingressQueue uint16
	egressQueue  uint16

	ingress *NFQueueReader
	egress  *NFQueueReader
	logger  *logging.Logger
}

// NewHookManager creates the Linux hook manager.
func NewHookManager(p *engine.Pipeline, ingressQueue, egressQueue uint16, logger *logging.Logger) HookManager {
	return &nftHookManager{
		ingressQueue: ingressQueue,
		egressQueue:  egressQueue,
		ingress:      NewNFQueueReader(ingressQueue, packet.DirInbound, p, logger.WithComponent("nfqueue-in")),
		egress:       NewNFQueueReader(egressQueue, packet.DirOutbound, p, logger.WithComponent("nfqueue-out")),
		logger:       logger,
	}
}

// Install binds both queue readers and publishes the steering rules.
// Any partially installed piece is rolled back before the error returns.
func (m *nftHookManager) Install() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installed {
		return nil
	}

	if err := m.ingress.Start(); err != nil {
		return err
	}
	if err := m.egress.Start(); err != nil {
		m.ingress.Stop()
		return err
	}
	if err := m.applyNFTables(); err != nil {
		m.egress.Stop()
		m.ingress.Stop()
		return err
	}

	m.installed = true
	m.logger.Info("firewall hooks installed",
		"ingress_queue", m.ingressQueue, "egress_queue", m.egressQueue)
	return nil
}

// Uninstall removes the steering rules and detaches the readers.
func (m *nftHookManager) Uninstall() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.installed {
		return nil
	}

	err := m.deleteNFTables()
	m.egress.Stop()
	m.ingress.Stop()
	m.installed = false
	if err != nil {
		return err
	}
	m.logger.Info("firewall hooks uninstalled")
	return nil
}

// Installed reports whether the hooks are live.
func (m *nftHookManager) Installed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installed
}

func (m *nftHookManager) applyNFTables() error {
	conn, err := nftables.New()
	if err != nil {
		return errors.Wrap(err, errors.KindHook, "cannot open netlink")
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   brand.NFTableName,
	})

	input := conn.AddChain(&nftables.Chain{
		Name:     "input",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
	})
	output := conn.AddChain(&nftables.Chain{
		Name:     "output",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityFilter,
	})

	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: input,
		Exprs: []expr.Any{
			&expr.Counter{},
			&expr.Queue{Num: m.ingressQueue, Flag: expr.QueueFlagBypass},
		},
	})
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: output,
		Exprs: []expr.Any{
			&expr.Counter{},
			&expr.Queue{Num: m.egressQueue, Flag: expr.QueueFlagBypass},
		},
	})

	if err := conn.Flush(); err != nil {
		// Best effort: drop whatever half-state the kernel kept.
		_ = m.deleteNFTables()
		return errors.Wrap(err, errors.KindHook, "cannot install nftables steering rules")
	}
	return nil
}

func (m *nftHookManager) deleteNFTables() error {
	conn, err := nftables.New()
	if err != nil {
		return errors.Wrap(err, errors.KindHook, "cannot open netlink")
	}
	conn.DelTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   brand.NFTableName,
	})
	if err := conn.Flush(); err != nil {
		return errors.Wrap(err, errors.KindHook, "cannot remove nftables steering rules")
	}
	return nil
}
