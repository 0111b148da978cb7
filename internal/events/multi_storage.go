package events

import (
	"errors"

	"github.com/davido182/depositdigest/pkg/logger"
)

// MultiEventStorage writes every event to all backends and reads from the
// first backend that answers
type MultiEventStorage struct {
	storages []EventStorage
}

// NewMultiEventStorage creates a storage that writes to multiple backends
func NewMultiEventStorage(storages ...EventStorage) *MultiEventStorage {
	return &MultiEventStorage{storages: storages}
}

// Store saves the event everywhere; one failing backend does not stop the others
func (s *MultiEventStorage) Store(event Event) error {
	var errs []error
	for _, storage := range s.storages {
		if err := storage.Store(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query tries backends in order and returns the first successful result
func (s *MultiEventStorage) Query(filters EventFilters) ([]Event, error) {
	var errs []error
	for i, storage := range s.storages {
		events, err := storage.Query(filters)
		if err == nil {
			return events, nil
		}
		logger.Warn("Failed to query events from storage backend", map[string]interface{}{
			"backend_index": i,
			"error":         err.Error(),
		})
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
