// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"context"
	"time"

	"grimm.is/stonewall/internal/clock"
	"grimm.is/stonewall/internal/conntrack"
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/metrics"
	"grimm.is/stonewall/internal/packet"
	"grimm.is/stonewall/internal/rules"
)

// Pipeline is the owning datapath context: rule stores, connection table,
// reaper, and the three engines, wired dissector → filter → state (→ NAT).
// Every external entry point carries it by reference; Close tears it down
// deterministically.
type Pipeline struct {
	Rules    *rules.Store
	NATRules *rules.NATStore
	Table    *conntrack.Table

	filter *Filter
	state  *StateTracker
	nat    *NAT
	reaper *conntrack.Reaper

	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics

	cancel context.CancelFunc
}

// Options configures pipeline construction.
type Options struct {
	DefaultAction rules.Action
	ReaperTick    time.Duration
	IdleTimeout   time.Duration
	Clock         clock.Clock
	Logger        *logging.Logger
	Metrics       *metrics.Metrics
}

// NewPipeline builds the datapath context and starts the reaper.
func NewPipeline(opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	p := &Pipeline{
		Rules:    rules.NewStore(opts.DefaultAction),
		NATRules: rules.NewNATStore(),
		Table:    conntrack.NewTable(),
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	p.filter = NewFilter(p.Rules, opts.Logger.WithComponent("filter"))
	p.state = NewStateTracker(p.Table, opts.Clock)
	p.nat = NewNAT(p.NATRules, opts.Logger.WithComponent("nat"))
	p.nat.OnRewrite = func() { p.metrics.NATRewrites.Inc() }

	p.reaper = conntrack.NewReaper(p.Table, opts.Clock, opts.Logger.WithComponent("reaper"),
		opts.ReaperTick, opts.IdleTimeout)
	p.reaper.OnReap = func(evicted int) {
		if evicted > 0 {
			p.metrics.FlowsReaped.Add(float64(evicted))
		}
		p.metrics.FlowsActive.Set(float64(p.Table.Len()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.reaper.Run(ctx)

	return p
}

// Process runs one packet through the datapath and returns its verdict.
// The buffer is exclusively owned by this invocation; on egress it may be
// rewritten in place by NAT. The path never blocks.
func (p *Pipeline) Process(buf []byte, dir packet.Direction) Verdict {
	p.metrics.PacketsProcessed.Inc()

	v, err := packet.Dissect(buf, dir)
	if err != nil {
		p.metrics.ParseErrors.Inc()
		p.metrics.PacketsDropped.Inc()
		p.logger.Debug("dropping unparseable packet", "dir", dir.String(), "error", err)
		return VerdictDrop
	}

	verdict, _ := p.filter.Evaluate(v)
	if verdict == VerdictDrop {
		p.metrics.PacketsDropped.Inc()
		return VerdictDrop
	}

	p.state.Observe(v)
	p.metrics.FlowsActive.Set(float64(p.Table.Len()))

	if dir == packet.DirOutbound {
		p.nat.Rewrite(v)
	}

	p.metrics.PacketsAccepted.Inc()
	return VerdictAccept
}

// Reload re-reads both rule files and atomically publishes the new lists.
// Loading happens fully before anything is published, so a failed reload
// leaves both stores untouched.
func (p *Pipeline) Reload() error {
	var (
		filterRules []rules.Rule
		natRules    []rules.NATRule
		haveFilter  bool
		haveNAT     bool
	)

	if path := p.Rules.Path(); path != "" {
		loaded, err := rules.LoadFilterRules(path, p.logger)
		if err != nil {
			p.metrics.RuleReloads.WithLabelValues("failure").Inc()
			return err
		}
		filterRules, haveFilter = loaded, true
	}
	if path := p.NATRules.Path(); path != "" {
		loaded, err := rules.LoadNATRules(path, p.logger)
		if err != nil {
			p.metrics.RuleReloads.WithLabelValues("failure").Inc()
			return err
		}
		natRules, haveNAT = loaded, true
	}

	if haveFilter {
		p.Rules.Replace(filterRules)
	}
	if haveNAT {
		p.NATRules.Replace(natRules)
	}
	p.metrics.RuleReloads.WithLabelValues("success").Inc()
	return nil
}

// Sweep runs one reaper pass immediately. Exposed for tests and shutdown.
func (p *Pipeline) Sweep() int {
	return p.reaper.Sweep()
}

// Close stops the reaper and drops all runtime state.
func (p *Pipeline) Close() {
	p.cancel()
	p.Table.Scan(func(*conntrack.Flow) bool { return true })
}
