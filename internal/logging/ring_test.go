// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"strings"
	"testing"
	"time"
)

func TestRingEmpty(t *testing.T) {
	r := NewRing()
	if got := r.Bytes(); len(got) != 0 {
		t.Errorf("empty ring returned %d bytes", len(got))
	}
}

func TestRingOrdering(t *testing.T) {
	r := NewRing()
	r.WriteLine("first")
	r.WriteLine("second")

	out := string(r.Bytes())
	if out != "first\nsecond\n" {
		t.Errorf("unexpected ring contents: %q", out)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing()
	// Each line is 100 bytes + newline; enough to wrap the 4096-byte ring.
	line := strings.Repeat("x", 100)
	for i := 0; i < 60; i++ {
		r.WriteLine(line)
	}

	out := r.Bytes()
	if len(out) != RingSize {
		t.Fatalf("wrapped ring returned %d bytes, want %d", len(out), RingSize)
	}
	// The newest line must be fully present at the tail.
	if !strings.HasSuffix(string(out), line+"\n") {
		t.Error("newest line missing from ring tail")
	}
}

func TestRingExactFill(t *testing.T) {
	r := NewRing()
	// 8 lines of 511 bytes + newline = exactly 4096 bytes.
	line := strings.Repeat("y", 511)
	for i := 0; i < 8; i++ {
		r.WriteLine(line)
	}
	if got := len(r.Bytes()); got != RingSize {
		t.Errorf("exactly-full ring returned %d bytes, want %d", got, RingSize)
	}
}

func TestRingReset(t *testing.T) {
	r := NewRing()
	r.WriteLine("something")
	r.Reset()
	if got := r.Bytes(); len(got) != 0 {
		t.Errorf("reset ring returned %d bytes", len(got))
	}
}

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := formatLine(ts, LevelWarn, "dropping packet", "src", "10.0.0.1")
	want := "[2026-03-14 09:26:53] [WARN] dropping packet src=10.0.0.1"
	if got != want {
		t.Errorf("formatLine = %q, want %q", got, want)
	}
}

func TestLoggerWritesRing(t *testing.T) {
	ring := NewRing()
	l := New(Config{Level: LevelInfo, Ring: ring, Output: discard{}})
	l.Info("hello", "k", "v")
	l.Debug("suppressed")

	out := string(ring.Bytes())
	if !strings.Contains(out, "[INFO] hello k=v") {
		t.Errorf("ring missing info line: %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Error("debug line leaked past level filter")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
