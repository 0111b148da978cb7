package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/pkg/logger"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const (
	measurementEvent       = "monitoring_event"
	measurementPerformance = "performance_metric"
	measurementHealth      = "system_health"
)

// EventData is a generic event structure that doesn't depend on internal/events
type EventData struct {
	ID        string
	Type      string
	Timestamp time.Time
	Source    string
	SubjectID string
	UserID    string
	Severity  string
	Data      map[string]interface{}
}

// EventFilters for querying events
type EventFilters struct {
	Types     []string
	UserID    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// InfluxDBClient writes monitoring time series (events, performance samples,
// health cycles) to InfluxDB
type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	org      string
	bucket   string
}

// InfluxDBConfig holds InfluxDB connection configuration
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewInfluxDBClient creates a new InfluxDB client
func NewInfluxDBClient(config InfluxDBConfig) (*InfluxDBClient, error) {
	client := influxdb2.NewClient(config.URL, config.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	logger.Info("InfluxDB connection established", map[string]interface{}{
		"url":    config.URL,
		"org":    config.Org,
		"bucket": config.Bucket,
	})

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPI(config.Org, config.Bucket),
		queryAPI: client.QueryAPI(config.Org),
		org:      config.Org,
		bucket:   config.Bucket,
	}, nil
}

// WriteEvent writes an event as a time-series point (non-blocking)
func (c *InfluxDBClient) WriteEvent(event EventData) error {
	fields := make(map[string]interface{}, len(event.Data)+1)
	for k, v := range event.Data {
		fields[k] = influxFieldValue(v)
	}
	// a point needs at least one field
	fields["count"] = 1

	p := influxdb2.NewPoint(
		measurementEvent,
		map[string]string{
			"event_id":   event.ID,
			"event_type": event.Type,
			"source":     event.Source,
			"subject_id": event.SubjectID,
			"user_id":    event.UserID,
			"severity":   event.Severity,
		},
		fields,
		event.Timestamp,
	)

	c.writeAPI.WritePoint(p)
	return nil
}

// WritePerformanceMetric writes one performance sample
func (c *InfluxDBClient) WritePerformanceMetric(m models.PerformanceMetric) error {
	tags := map[string]string{}
	if m.Endpoint != "" {
		tags["endpoint"] = m.Endpoint
	}
	if m.UserID != "" {
		tags["user_id"] = m.UserID
	}

	p := influxdb2.NewPoint(
		measurementPerformance,
		tags,
		map[string]interface{}{
			"response_time_ms":   m.ResponseTimeMs,
			"memory_usage_bytes": int64(m.MemoryUsageBytes),
			"db_query_time_ms":   m.DBQueryTimeMs,
			"cache_hit_rate":     m.CacheHitRate,
		},
		m.Timestamp,
	)

	c.writeAPI.WritePoint(p)
	return nil
}

// WriteHealth writes one point per probe of a health cycle
func (c *InfluxDBClient) WriteHealth(h models.SystemHealth) error {
	for _, check := range h.Checks {
		p := influxdb2.NewPoint(
			measurementHealth,
			map[string]string{
				"probe":         check.Name,
				"system_status": string(h.Status),
			},
			map[string]interface{}{
				"status":      string(check.Status),
				"duration_ms": check.DurationMs,
			},
			h.Timestamp,
		)
		c.writeAPI.WritePoint(p)
	}
	return nil
}

// Ping checks that InfluxDB answers its health endpoint
func (c *InfluxDBClient) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("InfluxDB ping failed")
	}
	return nil
}

// Flush ensures all pending writes are sent to InfluxDB
func (c *InfluxDBClient) Flush() {
	c.writeAPI.Flush()
}

// QueryEvents queries events from InfluxDB with filters
func (c *InfluxDBClient) QueryEvents(ctx context.Context, filters EventFilters) ([]EventData, error) {
	result, err := c.queryAPI.Query(ctx, c.buildFluxQuery(filters))
	if err != nil {
		return nil, fmt.Errorf("failed to query InfluxDB: %w", err)
	}

	var eventsList []EventData
	for result.Next() {
		record := result.Record()

		event := EventData{
			ID:        stringValue(record.ValueByKey("event_id")),
			Type:      stringValue(record.ValueByKey("event_type")),
			Timestamp: record.Time(),
			Source:    stringValue(record.ValueByKey("source")),
			SubjectID: stringValue(record.ValueByKey("subject_id")),
			UserID:    stringValue(record.ValueByKey("user_id")),
			Severity:  stringValue(record.ValueByKey("severity")),
			Data:      make(map[string]interface{}),
		}

		if field := record.Field(); field != "" && field != "count" {
			event.Data[field] = record.Value()
		}

		eventsList = append(eventsList, event)

		if filters.Limit > 0 && len(eventsList) >= filters.Limit {
			break
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	return eventsList, nil
}

// buildFluxQuery builds a Flux query from filters
func (c *InfluxDBClient) buildFluxQuery(filters EventFilters) string {
	var b strings.Builder
	fmt.Fprintf(&b, `from(bucket: "%s")`, c.bucket)

	if !filters.StartTime.IsZero() {
		fmt.Fprintf(&b, "\n  |> range(start: %s", filters.StartTime.Format(time.RFC3339))
		if !filters.EndTime.IsZero() {
			fmt.Fprintf(&b, ", stop: %s", filters.EndTime.Format(time.RFC3339))
		}
		b.WriteString(")")
	} else {
		b.WriteString("\n  |> range(start: -24h)")
	}

	fmt.Fprintf(&b, "\n  |> filter(fn: (r) => r._measurement == %q)", measurementEvent)

	if len(filters.Types) > 0 {
		conds := make([]string, len(filters.Types))
		for i, t := range filters.Types {
			conds[i] = fmt.Sprintf("r.event_type == %q", t)
		}
		fmt.Fprintf(&b, "\n  |> filter(fn: (r) => %s)", strings.Join(conds, " or "))
	}

	if filters.UserID != "" {
		fmt.Fprintf(&b, "\n  |> filter(fn: (r) => r.user_id == %q)", filters.UserID)
	}

	b.WriteString("\n  |> sort(columns: [\"_time\"], desc: true)")

	if filters.Limit > 0 {
		fmt.Fprintf(&b, "\n  |> limit(n: %d)", filters.Limit)
	}

	return b.String()
}

// Close closes the InfluxDB client and flushes pending writes
func (c *InfluxDBClient) Close() {
	c.writeAPI.Flush()
	c.client.Close()
	logger.Info("InfluxDB client closed", nil)
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// influxFieldValue flattens values the line protocol cannot carry
func influxFieldValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string, bool, int, int64, float64, float32, int32, uint, uint64:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
