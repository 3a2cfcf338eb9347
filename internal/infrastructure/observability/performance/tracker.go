// Package performance provides marker-based operation timing with alert
// thresholds for the request path and the generation pipeline.
package performance

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AtRiskMedia/lessonforge-go/internal/infrastructure/observability/logging"
)

// Marker tracks one in-flight or completed operation.
type Marker struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Completed bool          `json:"completed"`
	Success   bool          `json:"success"`

	tracker *Tracker
}

// AlertThresholds defines response time levels that trigger alert logging.
type AlertThresholds struct {
	SlowResponse     time.Duration `json:"slowResponse"`
	VerySlowResponse time.Duration `json:"verySlowResponse"`
	CriticalResponse time.Duration `json:"criticalResponse"`
}

// DefaultAlertThresholds returns the default response time thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		SlowResponse:     500 * time.Millisecond,
		VerySlowResponse: 2 * time.Second,
		CriticalResponse: 5 * time.Second,
	}
}

// Tracker records operation markers and raises alerts when completions cross
// the configured thresholds.
type Tracker struct {
	mu         sync.RWMutex
	markers    map[string]*Marker
	maxMarkers int
	thresholds AlertThresholds
	logger     *logging.ChanneledLogger
	started    time.Time
}

// NewTracker creates a tracker with the given thresholds.
func NewTracker(thresholds AlertThresholds, logger *logging.ChanneledLogger) *Tracker {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Tracker{
		markers:    make(map[string]*Marker),
		maxMarkers: 10000,
		thresholds: thresholds,
		logger:     logger,
		started:    time.Now().UTC(),
	}
}

// StartOperation begins tracking a named operation and returns its marker.
func (t *Tracker) StartOperation(operation string) *Marker {
	m := &Marker{
		ID:        ulid.Make().String(),
		Operation: operation,
		StartTime: time.Now().UTC(),
		tracker:   t,
	}
	t.mu.Lock()
	if len(t.markers) >= t.maxMarkers {
		t.evictOldest()
	}
	t.markers[m.ID] = m
	t.mu.Unlock()
	return m
}

// Complete finalizes the marker and evaluates alert thresholds. The mutation
// goes through the tracker's lock because the admin surface iterates resident
// markers concurrently.
func (m *Marker) Complete() {
	m.tracker.complete(m)
}

// SetSuccess records whether the operation succeeded.
func (m *Marker) SetSuccess(success bool) {
	m.tracker.mu.Lock()
	m.Success = success
	m.tracker.mu.Unlock()
}

func (t *Tracker) complete(m *Marker) {
	t.mu.Lock()
	m.Duration = time.Since(m.StartTime)
	m.Completed = true
	duration := m.Duration
	t.mu.Unlock()
	t.checkForAlerts(m.Operation, duration)
}

func (t *Tracker) checkForAlerts(operation string, duration time.Duration) {
	var severity string
	switch {
	case duration >= t.thresholds.CriticalResponse:
		severity = "critical"
	case duration >= t.thresholds.VerySlowResponse:
		severity = "warning"
	case duration >= t.thresholds.SlowResponse:
		severity = "info"
	default:
		return
	}
	t.logger.Alert().Warn("Slow operation detected",
		"operation", operation, "severity", severity,
		"duration", duration, "threshold", t.thresholds.SlowResponse)
}

// GetRecentMetrics returns completed markers within the given window.
func (t *Tracker) GetRecentMetrics(within time.Duration) []Marker {
	cutoff := time.Now().UTC().Add(-within)
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Marker
	for _, m := range t.markers {
		if m.Completed && m.StartTime.After(cutoff) {
			out = append(out, *m)
		}
	}
	return out
}

// GetOverallStats summarizes tracked operations for the admin surface.
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var completed, succeeded, active int
	var total time.Duration
	for _, m := range t.markers {
		if !m.Completed {
			active++
			continue
		}
		completed++
		total += m.Duration
		if m.Success {
			succeeded++
		}
	}

	stats := map[string]any{
		"uptime":              time.Since(t.started).String(),
		"activeOperations":    active,
		"completedOperations": completed,
	}
	if completed > 0 {
		stats["avgDuration"] = (total / time.Duration(completed)).String()
		stats["successRate"] = fmt.Sprintf("%.2f", float64(succeeded)/float64(completed))
	}
	return stats
}

// Cleanup drops completed markers older than an hour and returns how many
// were removed. Called by the background maintenance loop.
func (t *Tracker) Cleanup() int {
	cutoff := time.Now().UTC().Add(-time.Hour)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, m := range t.markers {
		if m.Completed && m.StartTime.Before(cutoff) {
			delete(t.markers, id)
			removed++
		}
	}
	return removed
}

// evictOldest removes the oldest marker. Caller holds the lock.
func (t *Tracker) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, m := range t.markers {
		if oldestID == "" || m.StartTime.Before(oldest) {
			oldestID = id
			oldest = m.StartTime
		}
	}
	if oldestID != "" {
		delete(t.markers, oldestID)
	}
}
