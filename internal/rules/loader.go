// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"encoding/csv"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"grimm.is/stonewall/internal/errors"
	"grimm.is/stonewall/internal/logging"
	"grimm.is/stonewall/internal/packet"
)

// LoadFilterRules reads the filter rule CSV at path. The first line is a
// header and skipped. Malformed lines are skipped with a warning; the
// remaining rules still load. Field order:
// src_ip,dst_ip,src_port,dst_port,proto,direction,action,log
func LoadFilterRules(path string, logger *logging.Logger) ([]Rule, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	var out []Rule
	for i, rec := range records {
		r, err := parseFilterRule(rec)
		if err != nil {
			logger.Warn("skipping malformed rule line", "file", path, "line", i+2, "error", err)
			continue
		}
		out = append(out, r)
	}
	logger.Info("loaded filter rules", "file", path, "count", len(out))
	return out, nil
}

// LoadNATRules reads the NAT rule CSV at path. Field order:
// orig_ip,orig_port,new_ip,new_port,proto,direction
func LoadNATRules(path string, logger *logging.Logger) ([]NATRule, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}

	var out []NATRule
	for i, rec := range records {
		r, err := parseNATRule(rec)
		if err != nil {
			logger.Warn("skipping malformed NAT rule line", "file", path, "line", i+2, "error", err)
			continue
		}
		out = append(out, r)
	}
	logger.Info("loaded NAT rules", "file", path, "count", len(out))
	return out, nil
}

// readCSV returns all data records, header line dropped.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "cannot open rule file %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken line; drop it and keep going.
			continue
		}
		if first {
			first = false
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseFilterRule(rec []string) (Rule, error) {
	if len(rec) < 8 {
		return Rule{}, errors.Errorf(errors.KindParse, "want 8 fields, got %d", len(rec))
	}

	var r Rule
	var err error
	if r.SrcIP, err = parseAddr(rec[0]); err != nil {
		return Rule{}, err
	}
	if r.DstIP, err = parseAddr(rec[1]); err != nil {
		return Rule{}, err
	}
	srcPort, err := parseUint(rec[2], 16)
	if err != nil {
		return Rule{}, err
	}
	dstPort, err := parseUint(rec[3], 16)
	if err != nil {
		return Rule{}, err
	}
	proto, err := parseUint(rec[4], 8)
	if err != nil {
		return Rule{}, err
	}
	dir, err := parseUint(rec[5], 8)
	if err != nil {
		return Rule{}, err
	}
	if dir > 1 {
		return Rule{}, errors.Errorf(errors.KindParse, "bad direction %d", dir)
	}
	action, err := parseUint(rec[6], 8)
	if err != nil {
		return Rule{}, err
	}
	if action > 1 {
		return Rule{}, errors.Errorf(errors.KindParse, "bad action %d", action)
	}
	logFlag, err := parseUint(rec[7], 8)
	if err != nil {
		return Rule{}, err
	}

	r.SrcPort = uint16(srcPort)
	r.DstPort = uint16(dstPort)
	r.Proto = uint8(proto)
	r.Dir = packet.Direction(dir)
	r.Action = Action(action)
	r.Log = logFlag != 0
	return r, nil
}

func parseNATRule(rec []string) (NATRule, error) {
	if len(rec) < 6 {
		return NATRule{}, errors.Errorf(errors.KindParse, "want 6 fields, got %d", len(rec))
	}

	var r NATRule
	var err error
	if r.OrigIP, err = parseAddr(rec[0]); err != nil {
		return NATRule{}, err
	}
	origPort, err := parseUint(rec[1], 16)
	if err != nil {
		return NATRule{}, err
	}
	if r.NewIP, err = parseAddr(rec[2]); err != nil {
		return NATRule{}, err
	}
	newPort, err := parseUint(rec[3], 16)
	if err != nil {
		return NATRule{}, err
	}
	proto, err := parseUint(rec[4], 8)
	if err != nil {
		return NATRule{}, err
	}
	dir, err := parseUint(rec[5], 8)
	if err != nil {
		return NATRule{}, err
	}
	if dir > 1 {
		return NATRule{}, errors.Errorf(errors.KindParse, "bad NAT direction %d", dir)
	}

	r.OrigPort = uint16(origPort)
	r.NewPort = uint16(newPort)
	r.Proto = uint8(proto)
	r.Dir = NATDirection(dir)
	return r, nil
}

// parseAddr parses a dotted-quad IPv4 address. Empty means wildcard.
func parseAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, errors.KindParse, "bad IP %q", s)
	}
	if !addr.Is4() {
		return netip.Addr{}, errors.Errorf(errors.KindParse, "not an IPv4 address: %q", s)
	}
	return addr, nil
}

// parseUint parses a decimal field. Empty means 0.
func parseUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, errors.Wrapf(err, errors.KindParse, "bad numeric field %q", s)
	}
	return n, nil
}
