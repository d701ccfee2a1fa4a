package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/questie/progression-engine/pkg/metrics"
)

const pushJob = "questengine"

// metricsPusher owns the registry of one command run and pushes it to a
// Pushgateway when the command ends.
type metricsPusher struct {
	registry  *prometheus.Registry
	collector *metrics.Collector
	url       string
	command   string
}

// newMetricsPusher returns nil when url is empty; commands then run without
// a collector.
func newMetricsPusher(url, command string) *metricsPusher {
	if url == "" {
		return nil
	}
	registry := prometheus.NewRegistry()
	return &metricsPusher{
		registry:  registry,
		collector: metrics.NewCollector(registry),
		url:       url,
		command:   command,
	}
}

func (p *metricsPusher) push(ctx context.Context) error {
	err := push.New(p.url, pushJob).
		Grouping("command", p.command).
		Gatherer(p.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", p.url, err)
	}
	return nil
}
