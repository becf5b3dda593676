// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/deploydiag/cmd/deploydiag/internal/process"
)

// Metrics holds the Prometheus collectors for diagnostic runs.
//
// # Description
//
// All collectors are registered on a private registry so that tests and
// repeated runs in watch mode never collide with the global default
// registry.
//
// # Thread Safety
//
// Prometheus collectors are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	stepsTotal      *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	filesCreated    prometheus.Counter
	runDuration     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deploydiag",
				Name:      "runs_total",
				Help:      "Diagnostic runs by policy and outcome.",
			},
			[]string{"policy", "outcome"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deploydiag",
				Name:      "steps_total",
				Help:      "Diagnostic steps by step name and status.",
			},
			[]string{"step", "status"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "deploydiag",
				Name:      "commands_total",
				Help:      "External commands run, by executable and result.",
			},
			[]string{"command", "result"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "deploydiag",
				Name:      "command_duration_seconds",
				Help:      "Wall time of external commands.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"command"},
		),
		filesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "deploydiag",
				Name:      "files_created_total",
				Help:      "Placeholder files scaffolded.",
			},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "deploydiag",
				Name:      "last_run_duration_seconds",
				Help:      "Duration of the most recent run.",
			},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "deploydiag",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the most recent run finished.",
			},
		),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.stepsTotal,
		m.commandsTotal,
		m.commandDuration,
		m.filesCreated,
		m.runDuration,
		m.lastRun,
	)
	return m
}

// RecordStep counts one finished step.
func (m *Metrics) RecordStep(step, status string, filesCreated int) {
	m.stepsTotal.WithLabelValues(step, status).Inc()
	if filesCreated > 0 {
		m.filesCreated.Add(float64(filesCreated))
	}
}

// RecordCommand counts one command. Only the executable's base name is
// used as a label to keep cardinality bounded.
func (m *Metrics) RecordCommand(argv0 string, exitCode int, d time.Duration) {
	name := filepath.Base(argv0)
	m.commandsTotal.WithLabelValues(name, commandResult(exitCode)).Inc()
	m.commandDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RecordRun records the outcome of a whole run.
func (m *Metrics) RecordRun(policy string, completed, warnings bool, d time.Duration, finished time.Time) {
	outcome := "completed"
	switch {
	case !completed:
		outcome = "aborted"
	case warnings:
		outcome = "completed_with_warnings"
	}
	m.runsTotal.WithLabelValues(policy, outcome).Inc()
	m.runDuration.Set(d.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile atomically writes every metric to path in the Prometheus
// text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func commandResult(exitCode int) string {
	switch exitCode {
	case 0:
		return "success"
	case process.ExitNotStarted:
		return "not_started"
	case process.ExitTimedOut:
		return "timeout"
	default:
		return "failure"
	}
}
