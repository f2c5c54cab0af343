// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package conntrack

import (
	"context"
	"time"

	"grimm.is/stonewall/internal/clock"
	"grimm.is/stonewall/internal/logging"
)

// DefaultTimeout is both the default reap tick and the default idle
// threshold.
const DefaultTimeout = 5 * time.Second

// Reaper periodically retires idle flows. Outside shutdown it is the only
// origin of record destruction.
type Reaper struct {
	table  *Table
	clock  clock.Clock
	logger *logging.Logger

	tick time.Duration
	idle time.Duration

	// OnReap, when set, observes the number of evicted records per sweep.
	OnReap func(evicted int)
}

// NewReaper creates a reaper over table. Zero tick or idle fall back to
// DefaultTimeout.
func NewReaper(table *Table, clk clock.Clock, logger *logging.Logger, tick, idle time.Duration) *Reaper {
	if tick <= 0 {
		tick = DefaultTimeout
	}
	if idle <= 0 {
		idle = DefaultTimeout
	}
	return &Reaper{
		table:  table,
		clock:  clk,
		logger: logger,
		tick:   tick,
		idle:   idle,
	}
}

// Run sweeps the table on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Sweep evicts every record idle longer than the threshold. Exposed so
// tests and shutdown can reap without a timer.
func (r *Reaper) Sweep() int {
	now := r.clock.Now()
	evicted := 0
	r.table.Scan(func(f *Flow) bool {
		if now.Sub(f.LastSeen()) > r.idle {
			evicted++
			return true
		}
		return false
	})
	if evicted > 0 {
		r.logger.Debug("reaped idle flows", "evicted", evicted, "live", r.table.Len())
	}
	if r.OnReap != nil {
		r.OnReap(evicted)
	}
	return evicted
}
