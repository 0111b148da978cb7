package events

import (
	"context"
	"time"

	"github.com/davido182/depositdigest/internal/storage"
)

const influxQueryTimeout = 10 * time.Second

// InfluxDBEventStorage stores events in InfluxDB for time-series analytics
type InfluxDBEventStorage struct {
	client *storage.InfluxDBClient
}

// NewInfluxDBEventStorage creates a new InfluxDB event storage
func NewInfluxDBEventStorage(client *storage.InfluxDBClient) *InfluxDBEventStorage {
	return &InfluxDBEventStorage{client: client}
}

// Store writes the event as a point
func (s *InfluxDBEventStorage) Store(event Event) error {
	return s.client.WriteEvent(storage.EventData{
		ID:        event.ID,
		Type:      string(event.Type),
		Timestamp: event.Timestamp,
		Source:    event.Source,
		SubjectID: event.SubjectID,
		UserID:    event.UserID,
		Severity:  event.Severity,
		Data:      event.Data,
	})
}

// Query reads events back through Flux
func (s *InfluxDBEventStorage) Query(filters EventFilters) ([]Event, error) {
	types := make([]string, len(filters.Types))
	for i, t := range filters.Types {
		types[i] = string(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), influxQueryTimeout)
	defer cancel()

	points, err := s.client.QueryEvents(ctx, storage.EventFilters{
		Types:     types,
		UserID:    filters.UserID,
		StartTime: filters.StartTime,
		EndTime:   filters.EndTime,
		Limit:     filters.Limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Event, len(points))
	for i, p := range points {
		out[i] = Event{
			ID:        p.ID,
			Type:      EventType(p.Type),
			Timestamp: p.Timestamp,
			Source:    p.Source,
			SubjectID: p.SubjectID,
			UserID:    p.UserID,
			Severity:  p.Severity,
			Data:      p.Data,
		}
	}
	return out, nil
}
