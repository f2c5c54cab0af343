// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/packet"
	"grimm.is/stonewall/internal/rules"
)

// NAT rewrites egress packets according to the first matching NAT rule.
// It never changes the verdict.
type NAT struct {
	store  *rules.NATStore
	logger *logging.Logger

	// OnRewrite, when set, observes every applied rewrite.
	OnRewrite func()
}

// NewNAT creates a NAT engine over store.
func NewNAT(store *rules.NATStore, logger *logging.Logger) *NAT {
	return &NAT{store: store, logger: logger}
}

// Rewrite applies the first matching rule to an egress packet view,
// mutating addresses, ports, and checksums in place. Returns whether a
// rewrite happened. Ingress packets are never rewritten.
func (n *NAT) Rewrite(v *packet.View) bool {
	if v.Dir != packet.DirOutbound {
		return false
	}
	snapshot := n.store.Snapshot()
	for i := range snapshot {
		r := &snapshot[i]
		if !r.Matches(v) {
			continue
		}
		switch r.Dir {
		case rules.SNAT:
			v.SetSrcIP(r.NewIP)
			v.SetSrcPort(r.NewPort)
		case rules.DNAT:
			v.SetDstIP(r.NewIP)
			v.SetDstPort(r.NewPort)
		}
		n.logger.Debug("applied NAT rewrite",
			"rule", i, "dir", r.Dir.String(),
			"new_ip", r.NewIP.String(), "new_port", r.NewPort)
		if n.OnRewrite != nil {
			n.OnRewrite()
		}
		return true
	}
	return false
}
