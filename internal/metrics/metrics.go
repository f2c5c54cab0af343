// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics holds the Prometheus instrumentation for the datapath.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all datapath Prometheus metrics.
type Metrics struct {
	PacketsProcessed prometheus.Counter
	PacketsAccepted  prometheus.Counter
	PacketsDropped   prometheus.Counter
	ParseErrors      prometheus.Counter
	NATRewrites      prometheus.Counter

	FlowsActive prometheus.Gauge
	FlowsReaped prometheus.Counter

	// RuleReloads counts reload attempts by result: success or failure.
	RuleReloads *prometheus.CounterVec
}

// New creates the metric set.
func New() *Metrics {
	return &Metrics{
		PacketsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonewall_packets_processed_total",
			Help: "Total number of packets seen by the datapath",
		}),
		PacketsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonewall_packets_accepted_total",
			Help: "Total number of packets accepted",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonewall_packets_dropped_total",
			Help: "Total number of packets dropped",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonewall_parse_errors_total",
			Help: "Total number of packets dropped because dissection failed",
		}),
		NATRewrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonewall_nat_rewrites_total",
			Help: "Total number of NAT rewrites applied on egress",
		}),
		FlowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stonewall_flows_active",
			Help: "Number of live flow records in the connection table",
		}),
		FlowsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stonewall_flows_reaped_total",
			Help: "Total number of flow records retired by the timeout reaper",
		}),
		RuleReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stonewall_rule_reloads_total",
			Help: "Rule reload attempts by result",
		}, []string{"result"}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.PacketsProcessed,
		m.PacketsAccepted,
		m.PacketsDropped,
		m.ParseErrors,
		m.NATRewrites,
		m.FlowsActive,
		m.FlowsReaped,
		m.RuleReloads,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
