// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine is the per-packet datapath: filter verdicts, derived flow
// state, and NAT rewriting, wired together by Pipeline.
package engine

import (
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/packet"
	"grimm.is/stonewall/internal/rules"
)

// Verdict is the per-packet decision returned to the host stack.
type Verdict int

const (
	VerdictDrop Verdict = iota
	VerdictAccept
)

func (v Verdict) String() string {
	if v == VerdictAccept {
		return "accept"
	}
	return "drop"
}

// Filter matches packets against the active rule snapshot.
type Filter struct {
	store  *rules.Store
	logger *logging.Logger
}

// NewFilter creates a Filter over store.
func NewFilter(store *rules.Store, logger *logging.Logger) *Filter {
	return &Filter{store: store, logger: logger}
}

// Evaluate walks the rule snapshot in order; the first matching rule
// decides. Unmatched packets get the store's default action. The returned
// flag reports whether a logging rule matched.
func (f *Filter) Evaluate(v *packet.View) (Verdict, bool) {
	snapshot := f.store.Snapshot()
	for i := range snapshot {
		r := &snapshot[i]
		if !r.Matches(v) {
			continue
		}
		logged := r.Log
		if logged {
			f.logger.Info("packet matched logging rule",
				"rule", i,
				"action", r.Action.String(),
				"dir", v.Dir.String(),
				"src", v.SrcIP.String(), "sport", v.SrcPort,
				"dst", v.DstIP.String(), "dport", v.DstPort,
				"proto", packet.ProtoName(v.Protocol))
		}
		if r.Action == rules.ActionDrop {
			f.logger.Warn("dropping packet",
				"rule", i,
				"src", v.SrcIP.String(), "dst", v.DstIP.String())
			return VerdictDrop, logged
		}
		return VerdictAccept, logged
	}

	if f.store.DefaultAction() == rules.ActionDrop {
		return VerdictDrop, false
	}
	return VerdictAccept, false
}
