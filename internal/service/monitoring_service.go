package service

import (
	"context"
	"time"

	"github.com/davido182/depositdigest/internal/alerts"
	"github.com/davido182/depositdigest/internal/audit"
	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/health"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/performance"
	"github.com/davido182/depositdigest/internal/resilience"
	"github.com/davido182/depositdigest/internal/scheduler"
	"github.com/davido182/depositdigest/internal/security"
	"github.com/davido182/depositdigest/internal/storage"
	"github.com/davido182/depositdigest/pkg/config"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	// PerformanceSweepWindow is the look-back of the performance-alert sweep
	PerformanceSweepWindow = 5 * time.Minute
	// MetricsWindow is the look-back of the performance block in GetSystemMetrics
	MetricsWindow = time.Hour
	// ArchiveRetention bounds the durable archive tables
	ArchiveRetention = 30 * 24 * time.Hour
)

// Pruner deletes durable records created before cutoff
type Pruner func(cutoff time.Time) (int64, error)

// Dependencies are the collaborators injected into the monitoring graph.
// Only KV is required; everything else has an in-process default.
type Dependencies struct {
	KV     storage.KVStore
	Clock  clock.Clock
	IDs    clock.IDGenerator
	Config *config.Config

	// Patterns overrides the default suspicious-activity patterns
	Patterns []security.Pattern
	// Escalator receives critical alerts; defaults to the webhook
	// escalator when an escalation URL is configured
	Escalator alerts.Escalator
	Publisher events.Publisher
	Archive   audit.Archive
	Refresher security.Refresher

	PerformanceSink performance.Sink
	HealthSink      health.Sink
	MemoryReader    performance.MemoryReader

	// ReachabilityProbes run ahead of the built-in probes, e.g. database and
	// auth service
	ReachabilityProbes []health.Probe
	// Pruners are run by the cleanup task with ArchiveRetention
	Pruners map[string]Pruner
}

// MonitoringService is the explicitly constructed monitoring graph. Callers
// use its methods; the components stay reachable for the HTTP layer.
type MonitoringService struct {
	Errors      *resilience.ErrorHandler
	Security    *security.Monitor
	Sessions    *security.SessionManager
	Audit       *audit.Logger
	Alerts      *alerts.Manager
	Performance *performance.Monitor
	Health      *health.Aggregator
	Scheduler   *scheduler.Scheduler

	clock   clock.Clock
	pruners map[string]Pruner
	log     *logger.FieldLogger
}

// SecurityMetrics is the security block of SystemMetrics
type SecurityMetrics struct {
	EventsLastHour       int `json:"events_last_hour"`
	HighSeverityLastHour int `json:"high_severity_last_hour"`
	LockedIdentifiers    int `json:"locked_identifiers"`
	ActiveWindows        int `json:"active_windows"`
}

// AlertMetrics is the alert block of SystemMetrics
type AlertMetrics struct {
	Active         int `json:"active"`
	CriticalActive int `json:"critical_active"`
	Total          int `json:"total"`
}

// SystemMetrics is the snapshot returned by GetSystemMetrics
type SystemMetrics struct {
	Performance performance.Summary   `json:"performance"`
	Security    SecurityMetrics       `json:"security"`
	Errors      resilience.ErrorStats `json:"errors"`
	Health      *models.SystemHealth  `json:"health,omitempty"`
	Alerts      AlertMetrics          `json:"alerts"`
	Timestamp   time.Time             `json:"timestamp"`
}

// NewMonitoringService wires the components together and registers the
// periodic tasks. The scheduler is not started.
func NewMonitoringService(deps Dependencies) *MonitoringService {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	ids := deps.IDs
	if ids == nil {
		ids = clock.UUIDGenerator{}
	}

	auditLogger := audit.NewLogger(deps.KV, clk, ids, storage.MaxStreamEntries)
	if deps.Archive != nil {
		auditLogger.SetArchive(deps.Archive)
	}
	if deps.Publisher != nil {
		auditLogger.SetPublisher(deps.Publisher)
	}

	errs := resilience.NewErrorHandler(resilience.HandlerConfig{BaseDelay: cfg.RetryBaseDelay}, clk, ids, auditLogger)

	escalator := deps.Escalator
	if escalator == nil && cfg.EscalationWebhookURL != "" {
		escalator = alerts.NewWebhookEscalator(cfg.EscalationWebhookURL, errs, deps.Publisher)
	}
	alertManager := alerts.NewManager(deps.KV, clk, ids, escalator)
	if deps.Publisher != nil {
		alertManager.SetPublisher(deps.Publisher)
	}
	auditLogger.SetAlertSink(alertManager)

	monitor := security.NewMonitor(security.MonitorConfig{
		MaxAttempts:   cfg.MaxLoginAttempts,
		LockoutWindow: cfg.LockoutWindow,
		Patterns:      deps.Patterns,
	}, clk, auditLogger)

	sessions := security.NewSessionManager(security.SessionConfig{
		Secret:         []byte(cfg.JWTSecret),
		MaxAge:         cfg.MaxSessionAge,
		RenewThreshold: cfg.SessionRenewThreshold,
		Issuer:         cfg.AppName,
	}, clk, auditLogger, deps.Refresher)

	perf := performance.NewMonitor(clk, MetricsWindow)
	if deps.PerformanceSink != nil {
		perf.SetSink(deps.PerformanceSink)
	}
	memory := deps.MemoryReader
	if memory == nil {
		memory = performance.RuntimeMemory
	}
	perf.SetMemoryReader(memory)

	probes := append([]health.Probe(nil), deps.ReachabilityProbes...)
	probes = append(probes,
		health.PerformanceProbe(perf, PerformanceSweepWindow),
		health.MemoryProbe(memory),
		health.ErrorRateProbe(errs, clk),
		health.SecurityProbe(auditLogger, clk),
	)
	aggregator := health.NewAggregator(deps.KV, clk, probes...)
	aggregator.SetAlertEvaluator(alertManager)
	if deps.HealthSink != nil {
		aggregator.SetSink(deps.HealthSink)
	}
	if deps.Publisher != nil {
		aggregator.SetPublisher(deps.Publisher)
	}

	s := &MonitoringService{
		Errors:      errs,
		Security:    monitor,
		Sessions:    sessions,
		Audit:       auditLogger,
		Alerts:      alertManager,
		Performance: perf,
		Health:      aggregator,
		Scheduler:   scheduler.New(),
		clock:       clk,
		pruners:     deps.Pruners,
		log:         logger.ForComponent("monitoring_service"),
	}
	s.registerTasks(cfg)
	return s
}

func (s *MonitoringService) registerTasks(cfg *config.Config) {
	tasks := []scheduler.Task{
		{
			Name:       "health_check",
			Interval:   orDefault(cfg.HealthCheckInterval, scheduler.HealthCheckInterval),
			RunOnStart: true,
			Run:        func(ctx context.Context) { s.Health.PerformHealthCheck(ctx) },
		},
		{
			Name:     "performance_sweep",
			Interval: orDefault(cfg.PerformanceSweepInterval, scheduler.PerformanceSweepInterval),
			Run:      func(context.Context) { s.PerformanceSweep() },
		},
		{
			Name:     "error_sweep",
			Interval: orDefault(cfg.ErrorSweepInterval, scheduler.ErrorSweepInterval),
			Run:      func(context.Context) { s.ErrorSweep() },
		},
		{
			Name:     "resource_sweep",
			Interval: orDefault(cfg.ResourceSweepInterval, scheduler.ResourceSweepInterval),
			Run:      func(context.Context) { s.ResourceSweep() },
		},
		{
			Name:     "cleanup",
			Interval: orDefault(cfg.CleanupInterval, scheduler.CleanupInterval),
			Run:      func(context.Context) { s.Cleanup() },
		},
	}
	for _, t := range tasks {
		if err := s.Scheduler.Register(t); err != nil {
			s.log.Error("Failed to register task", err, map[string]interface{}{"task": t.Name})
		}
	}
}

// Start starts the periodic tasks; calling it twice has no effect
func (s *MonitoringService) Start(ctx context.Context) {
	s.Scheduler.Start(ctx)
}

// Stop cancels the periodic tasks
func (s *MonitoringService) Stop() {
	s.Scheduler.Stop()
}

// HandleError classifies and records a failure
func (s *MonitoringService) HandleError(err error, ectx models.ErrorContext, opts resilience.HandleOptions) {
	s.Errors.HandleError(err, ectx, opts)
}

// RetryOperation runs op through the service's error handler with
// exponential backoff
func RetryOperation[T any](ctx context.Context, s *MonitoringService, op resilience.Operation[T], ectx models.ErrorContext, maxRetries int) (T, error) {
	return resilience.Retry(ctx, s.Errors, op, ectx, maxRetries)
}

// CheckLoginAttempts reports whether identifier may attempt a login
func (s *MonitoringService) CheckLoginAttempts(identifier string) bool {
	return s.Security.CheckLoginAttempts(identifier)
}

// RecordFailedLogin counts a failed login for identifier
func (s *MonitoringService) RecordFailedLogin(identifier, userID string) {
	s.Security.RecordFailedLogin(identifier, userID)
}

// RecordSuccessfulLogin clears the identifier's counter
func (s *MonitoringService) RecordSuccessfulLogin(userID, identifier string) {
	s.Security.RecordSuccessfulLogin(userID, identifier)
}

// DetectSuspiciousActivity feeds an action into the pattern windows
func (s *MonitoringService) DetectSuspiciousActivity(userID, action string, metadata map[string]interface{}) {
	s.Security.DetectSuspiciousActivity(userID, action, metadata)
}

// ValidatePassword checks a password against the policy
func (s *MonitoringService) ValidatePassword(password string) security.PasswordValidation {
	return security.ValidatePassword(password)
}

// PerformHealthCheck runs one health cycle immediately
func (s *MonitoringService) PerformHealthCheck(ctx context.Context) models.SystemHealth {
	return s.Health.PerformHealthCheck(ctx)
}

// CreateAlert raises an alert
func (s *MonitoringService) CreateAlert(alertType models.AlertType, severity models.Severity, title, description string, metadata map[string]interface{}) models.Alert {
	return s.Alerts.CreateAlert(alertType, severity, title, description, metadata)
}

// ResolveAlert resolves an alert; resolving twice is a no-op
func (s *MonitoringService) ResolveAlert(id, resolution string) (models.Alert, error) {
	return s.Alerts.ResolveAlert(id, resolution)
}

// RecordPerformance appends a performance sample
func (s *MonitoringService) RecordPerformance(m models.PerformanceMetric) {
	s.Performance.Record(m)
}

// GetSystemMetrics returns a point-in-time snapshot of every component
func (s *MonitoringService) GetSystemMetrics() SystemMetrics {
	now := s.clock.Now()

	recent := s.Audit.SecurityEventsSince(now.Add(-time.Hour))
	high := 0
	for _, ev := range recent {
		if ev.Severity.AtLeast(models.SeverityHigh) {
			high++
		}
	}
	monitorStats := s.Security.Stats()
	alertStats := s.Alerts.Stats()

	metrics := SystemMetrics{
		Performance: s.Performance.Summary(MetricsWindow),
		Security: SecurityMetrics{
			EventsLastHour:       len(recent),
			HighSeverityLastHour: high,
			LockedIdentifiers:    monitorStats.LockedIdentifiers,
			ActiveWindows:        monitorStats.ActiveWindows,
		},
		Errors: s.Errors.Stats(),
		Alerts: AlertMetrics{
			Active:         alertStats.Active,
			CriticalActive: alertStats.CriticalActive,
			Total:          alertStats.Total,
		},
		Timestamp: now,
	}
	if h, ok := s.Health.Latest(); ok {
		metrics.Health = &h
	}
	return metrics
}

// PerformanceSweep raises alerts for the last five minutes of samples
func (s *MonitoringService) PerformanceSweep() []models.Alert {
	return s.Alerts.CheckPerformance(s.Performance.Summary(PerformanceSweepWindow))
}

// ErrorSweep raises alerts for error spikes and unresolved critical reports
func (s *MonitoringService) ErrorSweep() []models.Alert {
	return s.Alerts.CheckErrorPatterns(s.Errors.Reports())
}

// ResourceSweep samples memory and alerts on heap pressure
func (s *MonitoringService) ResourceSweep() *models.Alert {
	return s.Alerts.CheckResources(s.Performance.SampleMemory())
}

// CleanupResult counts what one cleanup pass removed
type CleanupResult struct {
	Alerts          int            `json:"alerts"`
	HealthSnapshots int            `json:"health_snapshots"`
	LoginCounters   int            `json:"login_counters"`
	PatternWindows  int            `json:"pattern_windows"`
	Metrics         int            `json:"metrics"`
	Archived        map[string]int `json:"archived,omitempty"`
}

// Cleanup drops alerts and health snapshots older than seven days, expired
// security state, stale performance samples and old archive rows
func (s *MonitoringService) Cleanup() CleanupResult {
	var res CleanupResult
	res.Alerts = s.Alerts.Cleanup(alerts.DefaultRetention)
	res.HealthSnapshots = s.Health.Cleanup(health.DefaultRetention)
	res.LoginCounters, res.PatternWindows = s.Security.Cleanup()
	res.Metrics = s.Performance.Prune()

	cutoff := s.clock.Now().Add(-ArchiveRetention)
	for name, prune := range s.pruners {
		n, err := prune(cutoff)
		if err != nil {
			s.log.Error("Failed to prune archive", err, map[string]interface{}{"archive": name})
			continue
		}
		if res.Archived == nil {
			res.Archived = make(map[string]int)
		}
		res.Archived[name] = int(n)
	}

	s.log.Info("Cleanup completed", map[string]interface{}{
		"alerts":           res.Alerts,
		"health_snapshots": res.HealthSnapshots,
		"login_counters":   res.LoginCounters,
		"pattern_windows":  res.PatternWindows,
		"metrics":          res.Metrics,
	})
	return res
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
