// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ctlplane

import (
	"fmt"
	"strings"

	"grimm.is/stonewall/internal/conntrack"
	"grimm.is/stonewall/internal/engine"
	"grimm.is/stonewall/internal/packet"
)

// exportHeader is the first row of the connection table export.
const exportHeader = "src_ip,dst_ip,src_port,dst_port,proto,state,last_seen"

// ExportConnections renders the live connection table as CSV, one row per
// flow, preceded by a header row. Rows are rendered under the bucket locks
// so each record is coherent.
func ExportConnections(table *conntrack.Table) []byte {
	var b strings.Builder
	b.WriteString(exportHeader)
	b.WriteByte('\n')
	table.Scan(func(f *conntrack.Flow) bool {
		fmt.Fprintf(&b, "%s,%s,%d,%d,%s,%s,%s\n",
			f.Key.SrcAddr(), f.Key.DstAddr(),
			f.Key.SrcPort, f.Key.DstPort,
			packet.ProtoName(f.Key.Protocol),
			engine.StateName(f.Key.Protocol, f.State()),
			f.LastSeen().Format("2006-01-02 15:04:05"))
		return false
	})
	return []byte(b.String())
}
