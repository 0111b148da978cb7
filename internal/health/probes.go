package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/davido182/depositdigest/internal/clock"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/performance"
)

const (
	// RecentWindow is the look-back of the error-rate and security probes
	RecentWindow = time.Hour

	MemoryFailPercent = 90.0
	MemoryWarnPercent = 70.0

	MaxRecentHighErrors  = 5
	MaxRecentErrors      = 20
	MaxRecentSecurityHit = 3
)

// Result is what a probe reports; the aggregator adds name and timing
type Result struct {
	Status   models.CheckStatus
	Message  string
	Metadata map[string]interface{}
}

// Probe is one independent health check. Returning an error marks the
// check as failed with the error message.
type Probe interface {
	Name() string
	Check(ctx context.Context) (Result, error)
}

type probeFunc struct {
	name string
	fn   func(ctx context.Context) (Result, error)
}

func (p probeFunc) Name() string { return p.name }

func (p probeFunc) Check(ctx context.Context) (Result, error) { return p.fn(ctx) }

// NewProbe adapts a function to Probe
func NewProbe(name string, fn func(ctx context.Context) (Result, error)) Probe {
	return probeFunc{name: name, fn: fn}
}

// Pinger is anything with a reachability check: database providers,
// the redis store and the InfluxDB client all qualify
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReachabilityProbe passes while check returns nil
func ReachabilityProbe(name string, check func(ctx context.Context) error) Probe {
	return NewProbe(name, func(ctx context.Context) (Result, error) {
		if err := check(ctx); err != nil {
			return Result{}, err
		}
		return Result{Status: models.CheckPass, Message: "reachable"}, nil
	})
}

// PingProbe checks a Pinger
func PingProbe(name string, p Pinger) Probe {
	return ReachabilityProbe(name, p.Ping)
}

// HTTPProbe issues GET url and passes on any 2xx or 3xx answer
func HTTPProbe(name, url string, client *http.Client) Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return ReachabilityProbe(name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s unreachable: %w", name, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s returned status %d", name, resp.StatusCode)
		}
		return nil
	})
}

// PerformanceProbe grades the average response time over window
func PerformanceProbe(perf *performance.Monitor, window time.Duration) Probe {
	return NewProbe("performance", func(context.Context) (Result, error) {
		s := perf.Summary(window)
		if s.Samples == 0 {
			return Result{Status: models.CheckPass, Message: "no samples"}, nil
		}
		return Result{
			Status:  performance.StatusFor(s.AvgResponseTimeMs),
			Message: fmt.Sprintf("average response time %.0fms", s.AvgResponseTimeMs),
			Metadata: map[string]interface{}{
				"avg_response_time_ms": s.AvgResponseTimeMs,
				"p95_response_time_ms": s.P95ResponseTimeMs,
				"samples":              s.Samples,
			},
		}, nil
	})
}

// MemoryProbe fails above 90% heap usage and warns above 70%
func MemoryProbe(read performance.MemoryReader) Probe {
	return NewProbe("memory", func(context.Context) (Result, error) {
		usage := read()

		status := models.CheckPass
		switch {
		case usage.UsedPercent > MemoryFailPercent:
			status = models.CheckFail
		case usage.UsedPercent > MemoryWarnPercent:
			status = models.CheckWarn
		}
		return Result{
			Status:  status,
			Message: fmt.Sprintf("heap usage %.1f%%", usage.UsedPercent),
			Metadata: map[string]interface{}{
				"heap_alloc_bytes": usage.HeapAllocBytes,
				"heap_sys_bytes":   usage.HeapSysBytes,
				"used_percent":     usage.UsedPercent,
			},
		}, nil
	})
}

// ReportSource exposes recent error reports
type ReportSource interface {
	ReportsSince(since time.Time) []models.ErrorReport
}

// ErrorRateProbe fails on any critical report in the last hour and warns on
// more than 5 high-severity or more than 20 total reports
func ErrorRateProbe(src ReportSource, clk clock.Clock) Probe {
	return NewProbe("error_rate", func(context.Context) (Result, error) {
		reports := src.ReportsSince(clk.Now().Add(-RecentWindow))

		var critical, high int
		for _, r := range reports {
			switch r.Severity {
			case models.SeverityCritical:
				critical++
			case models.SeverityHigh:
				high++
			}
		}

		status := models.CheckPass
		switch {
		case critical > 0:
			status = models.CheckFail
		case high > MaxRecentHighErrors || len(reports) > MaxRecentErrors:
			status = models.CheckWarn
		}
		return Result{
			Status:  status,
			Message: fmt.Sprintf("%d errors in the last hour", len(reports)),
			Metadata: map[string]interface{}{
				"total":    len(reports),
				"high":     high,
				"critical": critical,
			},
		}, nil
	})
}

// SecurityEventSource exposes recent security events
type SecurityEventSource interface {
	SecurityEventsSince(since time.Time) []models.SecurityEvent
}

// SecurityProbe fails on more than 3 high or critical security events in the
// last hour and warns on 1 to 3
func SecurityProbe(src SecurityEventSource, clk clock.Clock) Probe {
	return NewProbe("security", func(context.Context) (Result, error) {
		evs := src.SecurityEventsSince(clk.Now().Add(-RecentWindow))

		severe := 0
		for _, ev := range evs {
			if ev.Severity.AtLeast(models.SeverityHigh) {
				severe++
			}
		}

		status := models.CheckPass
		switch {
		case severe > MaxRecentSecurityHit:
			status = models.CheckFail
		case severe > 0:
			status = models.CheckWarn
		}
		return Result{
			Status:  status,
			Message: fmt.Sprintf("%d high-severity security events in the last hour", severe),
			Metadata: map[string]interface{}{
				"events":        len(evs),
				"high_severity": severe,
			},
		}, nil
	})
}
