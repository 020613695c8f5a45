package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime         time.Time
	requests          atomic.Int64
	serverErrors      atomic.Int64
	clientErrors      atomic.Int64
	pullRequests      atomic.Int64
	changesApplied    atomic.Int64
	conflictsDetected atomic.Int64
	devicesRegistered atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          int64   `json:"requests"`
	ServerErrors      int64   `json:"server_errors"`
	ClientErrors      int64   `json:"client_errors"`
	PullRequests      int64   `json:"pull_requests"`
	ChangesApplied    int64   `json:"changes_applied"`
	ConflictsDetected int64   `json:"conflicts_detected"`
	DevicesRegistered int64   `json:"devices_registered"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordPullRequest increments the pull request counter.
func (m *Metrics) RecordPullRequest() {
	m.pullRequests.Add(1)
}

// RecordChangesApplied adds n to the applied change counter.
func (m *Metrics) RecordChangesApplied(n int64) {
	m.changesApplied.Add(n)
}

// RecordConflicts adds n to the detected conflict counter.
func (m *Metrics) RecordConflicts(n int64) {
	m.conflictsDetected.Add(n)
}

// RecordDeviceRegistered increments the device registration counter.
func (m *Metrics) RecordDeviceRegistered() {
	m.devicesRegistered.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
		Requests:          m.requests.Load(),
		ServerErrors:      m.serverErrors.Load(),
		ClientErrors:      m.clientErrors.Load(),
		PullRequests:      m.pullRequests.Load(),
		ChangesApplied:    m.changesApplied.Load(),
		ConflictsDetected: m.conflictsDetected.Load(),
		DevicesRegistered: m.devicesRegistered.Load(),
	}
}
