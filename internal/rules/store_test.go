// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/stonewall/internal/packet"
)

func TestStoreSnapshotIsStable(t *testing.T) {
	s := NewStore(ActionAccept)
	s.Replace([]Rule{{Proto: 6, Action: ActionDrop}})

	snap := s.Snapshot()
	s.Replace([]Rule{})

	// The traversal keeps the snapshot it took.
	assert.Len(t, snap, 1)
	assert.Empty(t, s.Snapshot())
}

func TestStoreReplaceIsAtomic(t *testing.T) {
	s := NewStore(ActionAccept)

	old := []Rule{{Proto: 6}, {Proto: 17}}
	next := []Rule{{Proto: 1}}
	s.Replace(old)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := s.Snapshot()
			// Readers see either list in its entirety, never a mixture.
			if len(snap) != 1 && len(snap) != 2 {
				t.Errorf("snapshot has %d rules", len(snap))
				return
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		s.Replace(next)
		s.Replace(old)
	}
	close(stop)
	wg.Wait()
}

func TestDefaultActionToggle(t *testing.T) {
	s := NewStore(ActionAccept)
	assert.Equal(t, ActionDrop, s.ToggleDefaultAction())
	assert.Equal(t, ActionAccept, s.ToggleDefaultAction())
	s.SetDefaultAction(ActionDrop)
	assert.Equal(t, ActionDrop, s.DefaultAction())
}

func TestRuleWildcards(t *testing.T) {
	v := &packet.View{
		Dir:      packet.DirInbound,
		Protocol: 6,
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("10.0.0.2"),
		SrcPort:  1234,
		DstPort:  80,
	}

	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{"all wildcards", Rule{Dir: packet.DirInbound}, true},
		{"zero IP is wildcard", Rule{SrcIP: netip.MustParseAddr("0.0.0.0"), Dir: packet.DirInbound}, true},
		{"proto match", Rule{Proto: 6, Dir: packet.DirInbound}, true},
		{"proto mismatch", Rule{Proto: 17, Dir: packet.DirInbound}, false},
		{"src ip match", Rule{SrcIP: netip.MustParseAddr("10.0.0.1"), Dir: packet.DirInbound}, true},
		{"src ip mismatch", Rule{SrcIP: netip.MustParseAddr("10.0.0.3"), Dir: packet.DirInbound}, false},
		{"dst port match", Rule{DstPort: 80, Dir: packet.DirInbound}, true},
		{"dst port mismatch", Rule{DstPort: 443, Dir: packet.DirInbound}, false},
		{"direction mismatch", Rule{Dir: packet.DirOutbound}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Matches(v))
		})
	}
}

func TestRulePortNeverMatchesICMP(t *testing.T) {
	// ICMP packets carry port 0; a rule with a non-zero port cannot match.
	v := &packet.View{
		Dir:      packet.DirInbound,
		Protocol: packet.ProtoICMP,
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("10.0.0.2"),
	}
	r := Rule{DstPort: 80, Dir: packet.DirInbound}
	assert.False(t, r.Matches(v))
}

func TestNATRuleMatching(t *testing.T) {
	out := &packet.View{
		Dir:      packet.DirOutbound,
		Protocol: 6,
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("8.8.8.8"),
		SrcPort:  1234,
		DstPort:  80,
	}

	snat := NATRule{OrigIP: netip.MustParseAddr("10.0.0.1"), OrigPort: 1234, Proto: 6, Dir: SNAT}
	assert.True(t, snat.Matches(out))

	snatWild := NATRule{OrigIP: netip.MustParseAddr("10.0.0.1"), Proto: 6, Dir: SNAT}
	assert.True(t, snatWild.Matches(out), "port 0 wildcards the port")

	snatWrongProto := NATRule{OrigIP: netip.MustParseAddr("10.0.0.1"), Proto: 17, Dir: SNAT}
	assert.False(t, snatWrongProto.Matches(out), "NAT protocol never wildcards")

	dnat := NATRule{OrigIP: netip.MustParseAddr("8.8.8.8"), OrigPort: 80, Proto: 6, Dir: DNAT}
	assert.True(t, dnat.Matches(out))

	dnatWrong := NATRule{OrigIP: netip.MustParseAddr("9.9.9.9"), Proto: 6, Dir: DNAT}
	assert.False(t, dnatWrong.Matches(out))
}
