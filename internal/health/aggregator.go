// Package health runs the system probes and folds them into one status.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/monitoring"
	"github.com/davido182/depositdigest/internal/storage"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	// DefaultProbeTimeout bounds a single probe
	DefaultProbeTimeout = 10 * time.Second
	// DefaultRetention is how long health snapshots survive cleanup
	DefaultRetention = 7 * 24 * time.Hour
)

// AlertEvaluator turns a health cycle into at most one alert
type AlertEvaluator interface {
	EvaluateHealth(h models.SystemHealth) *models.Alert
}

// Sink receives every completed health cycle, e.g. a time-series database
type Sink interface {
	WriteHealth(h models.SystemHealth) error
}

// Aggregator runs every registered probe concurrently and keeps a capped
// history of the results in the key-value store
type Aggregator struct {
	mu      sync.Mutex
	probes  []Probe
	timeout time.Duration
	latest  *models.SystemHealth

	kv        storage.KVStore
	clock     clock.Clock
	startedAt time.Time
	alerts    AlertEvaluator
	sink      Sink
	publisher events.Publisher
	log       *logger.FieldLogger
}

// NewAggregator creates a health aggregator with the given probes
func NewAggregator(kv storage.KVStore, clk clock.Clock, probes ...Probe) *Aggregator {
	return &Aggregator{
		probes:    probes,
		timeout:   DefaultProbeTimeout,
		kv:        kv,
		clock:     clk,
		startedAt: clk.Now(),
		log:       logger.ForComponent("health"),
	}
}

// AddProbe registers another probe for subsequent cycles
func (a *Aggregator) AddProbe(p Probe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes = append(a.probes, p)
}

// SetProbeTimeout overrides the per-probe deadline
func (a *Aggregator) SetProbeTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d > 0 {
		a.timeout = d
	}
}

// SetAlertEvaluator hands each cycle to the alert manager
func (a *Aggregator) SetAlertEvaluator(e AlertEvaluator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = e
}

// SetSink forwards each cycle to a time-series store
func (a *Aggregator) SetSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sink = s
}

// SetPublisher fans completed cycles out to the event bus
func (a *Aggregator) SetPublisher(p events.Publisher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.publisher = p
}

// PerformHealthCheck runs one full cycle. Probe errors and panics become
// failed checks; the cycle itself never fails.
func (a *Aggregator) PerformHealthCheck(ctx context.Context) models.SystemHealth {
	a.mu.Lock()
	probes := append([]Probe(nil), a.probes...)
	timeout := a.timeout
	a.mu.Unlock()

	checks := make([]models.HealthCheck, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			checks[i] = a.runProbe(gctx, p, timeout)
			return nil
		})
	}
	_ = g.Wait()

	now := a.clock.Now()
	result := models.SystemHealth{
		Status:    Fold(checks),
		Checks:    checks,
		Timestamp: now,
		Uptime:    now.Sub(a.startedAt),
	}

	a.mu.Lock()
	if _, err := storage.AppendCapped(a.kv, storage.KeyHealthHistory, result, storage.MaxHealthHistory); err != nil {
		a.log.Error("Failed to store health snapshot", err, nil)
	}
	latest := result
	a.latest = &latest
	evaluator, sink, publisher := a.alerts, a.sink, a.publisher
	a.mu.Unlock()

	monitoring.SystemHealthStatus.Set(monitoring.HealthStatusToFloat(string(result.Status)))
	a.logCycle(result)

	if sink != nil {
		if err := sink.WriteHealth(result); err != nil {
			a.log.Warn("Failed to write health cycle", map[string]interface{}{"error": err.Error()})
		}
	}
	if evaluator != nil {
		evaluator.EvaluateHealth(result)
	}
	if publisher != nil {
		publisher.Publish(events.Event{
			Type:      events.EventHealthChecked,
			Timestamp: now,
			Source:    "health_aggregator",
			Severity:  severityFor(result.Status),
			Data: map[string]interface{}{
				"status":        string(result.Status),
				"failed_checks": result.ChecksWithStatus(models.CheckFail),
				"warn_checks":   result.ChecksWithStatus(models.CheckWarn),
			},
		})
	}
	return result
}

// Fold derives the system status: unhealthy if any check fails, else
// degraded if any warns, else healthy
func Fold(checks []models.HealthCheck) models.SystemStatus {
	status := models.StatusHealthy
	for _, c := range checks {
		switch c.Status {
		case models.CheckFail:
			return models.StatusUnhealthy
		case models.CheckWarn:
			status = models.StatusDegraded
		}
	}
	return status
}

// Latest returns the most recent cycle, if any ran since startup
func (a *Aggregator) Latest() (models.SystemHealth, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil {
		return models.SystemHealth{}, false
	}
	return *a.latest, true
}

// History returns the stored snapshots, oldest first
func (a *Aggregator) History() []models.SystemHealth {
	a.mu.Lock()
	defer a.mu.Unlock()

	items, err := storage.LoadList[models.SystemHealth](a.kv, storage.KeyHealthHistory)
	if err != nil {
		a.log.Warn("Failed to read health history", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return items
}

// Cleanup drops snapshots older than maxAge and returns how many were removed
func (a *Aggregator) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}
	cutoff := a.clock.Now().Add(-maxAge)

	a.mu.Lock()
	defer a.mu.Unlock()

	items, err := storage.LoadList[models.SystemHealth](a.kv, storage.KeyHealthHistory)
	if err != nil {
		a.log.Warn("Failed to read health history", map[string]interface{}{"error": err.Error()})
		return 0
	}

	kept := items[:0]
	for _, h := range items {
		if !h.Timestamp.Before(cutoff) {
			kept = append(kept, h)
		}
	}
	removed := len(items) - len(kept)
	if removed > 0 {
		if err := storage.SaveList(a.kv, storage.KeyHealthHistory, kept); err != nil {
			a.log.Error("Failed to prune health history", err, nil)
			return 0
		}
	}
	return removed
}

func (a *Aggregator) runProbe(ctx context.Context, p Probe, timeout time.Duration) (check models.HealthCheck) {
	check.Name = p.Name()
	start := a.clock.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			check.Status = models.CheckFail
			check.Message = fmt.Sprintf("probe panicked: %v", r)
			check.Metadata = nil
		}
		elapsed := a.clock.Now().Sub(start)
		check.DurationMs = elapsed.Milliseconds()
		monitoring.RecordHealthProbe(check.Name, string(check.Status), elapsed)
	}()

	result, err := p.Check(ctx)
	if err != nil {
		check.Status = models.CheckFail
		check.Message = err.Error()
		return check
	}

	check.Status = result.Status
	if check.Status == "" {
		check.Status = models.CheckPass
	}
	check.Message = result.Message
	check.Metadata = result.Metadata
	return check
}

func (a *Aggregator) logCycle(h models.SystemHealth) {
	fields := map[string]interface{}{
		"status": h.Status,
		"checks": len(h.Checks),
	}
	switch h.Status {
	case models.StatusUnhealthy:
		fields["failed"] = h.ChecksWithStatus(models.CheckFail)
		a.log.Warn("Health check: system unhealthy", fields)
	case models.StatusDegraded:
		fields["warnings"] = h.ChecksWithStatus(models.CheckWarn)
		a.log.Info("Health check: system degraded", fields)
	default:
		a.log.Debug("Health check: system healthy", fields)
	}
}

func severityFor(status models.SystemStatus) string {
	switch status {
	case models.StatusUnhealthy:
		return string(models.SeverityCritical)
	case models.StatusDegraded:
		return string(models.SeverityMedium)
	default:
		return string(models.SeverityLow)
	}
}
