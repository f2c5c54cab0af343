// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package conntrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"grimm.is/stonewall/internal/clock"
	"grimm.is/stonewall/internal/logging"
)

func TestSweepEvictsIdleFlows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	tbl := NewTable()
	logger := logging.New(logging.Config{Level: logging.LevelError})
	r := NewReaper(tbl, clk, logger, DefaultTimeout, DefaultTimeout)

	tbl.Insert(NewFlow(key(1, 1000), clk.Now()))

	// Still within the idle threshold: nothing reaped.
	clk.Advance(DefaultTimeout)
	assert.Equal(t, 0, r.Sweep())
	assert.Equal(t, 1, tbl.Len())

	// Just past it: gone.
	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 0, tbl.Len())
}

func TestSweepSparesActiveFlows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	tbl := NewTable()
	logger := logging.New(logging.Config{Level: logging.LevelError})
	r := NewReaper(tbl, clk, logger, DefaultTimeout, DefaultTimeout)

	idle := NewFlow(key(1, 1000), clk.Now())
	busy := NewFlow(key(2, 2000), clk.Now())
	tbl.Insert(idle)
	tbl.Insert(busy)

	clk.Advance(3 * time.Second)
	busy.Touch(clk.Now())

	clk.Advance(3 * time.Second)
	assert.Equal(t, 1, r.Sweep())
	assert.Nil(t, tbl.Lookup(idle.Key))
	assert.NotNil(t, tbl.Lookup(busy.Key))
}

func TestSweepReportsEvictions(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	tbl := NewTable()
	logger := logging.New(logging.Config{Level: logging.LevelError})
	r := NewReaper(tbl, clk, logger, 0, 0)

	var reported int
	r.OnReap = func(evicted int) { reported = evicted }

	tbl.Insert(NewFlow(key(1, 1), clk.Now()))
	tbl.Insert(NewFlow(key(2, 2), clk.Now()))
	clk.Advance(DefaultTimeout + time.Second)
	r.Sweep()
	assert.Equal(t, 2, reported)
}
