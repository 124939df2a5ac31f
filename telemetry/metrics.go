/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"chainguard.dev/buildledger/updater"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name.
const DefaultJob = "buildledger"

// Metrics implements updater.Recorder with Prometheus collectors held in
// a private registry.
type Metrics struct {
	registry *prometheus.Registry

	updates      *prometheus.CounterVec
	pushAttempts prometheus.Counter
	lockWait     prometheus.Histogram
	buildNumber  prometheus.Gauge
}

var _ updater.Recorder = (*Metrics)(nil)

// NewMetrics registers the build ledger collectors in a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildledger_updates_total",
				Help: "Build number updates by outcome",
			},
			[]string{"result", "incremented"},
		),
		pushAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "buildledger_push_attempts_total",
			Help: "Pushes of the ledger branch, including rejected ones",
		}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "buildledger_lock_wait_seconds",
			Help:    "Time spent waiting for the ledger lock",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 30, 60, 120},
		}),
		// Unlabelled: identifiers are unbounded, the job grouping key is not.
		buildNumber: factory.NewGauge(prometheus.GaugeOpts{
			Name: "buildledger_build_number",
			Help: "Build number handed out by the last update",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveLockWait implements updater.Recorder.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

// ObservePushAttempt implements updater.Recorder.
func (m *Metrics) ObservePushAttempt() {
	m.pushAttempts.Inc()
}

// ObserveResult implements updater.Recorder.
func (m *Metrics) ObserveResult(res *updater.Result, err error) {
	incremented := err == nil && res != nil && res.Incremented
	m.updates.With(prometheus.Labels{
		"result":      updater.Category(err),
		"incremented": strconv.FormatBool(incremented),
	}).Inc()
	if err == nil && res != nil {
		m.buildNumber.Set(float64(res.BuildNumber))
	}
}

// Push delivers the collected metrics to the Pushgateway at url, replacing
// whatever job last pushed. Extra grouping labels may be passed as
// name/value pairs.
func (m *Metrics) Push(ctx context.Context, url, job string, grouping ...string) error {
	if len(grouping)%2 != 0 {
		return fmt.Errorf("grouping labels must be name/value pairs, got %d values", len(grouping))
	}
	if job == "" {
		job = DefaultJob
	}
	p := push.New(url, job).Gatherer(m.registry)
	for i := 0; i < len(grouping); i += 2 {
		p = p.Grouping(grouping[i], grouping[i+1])
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
