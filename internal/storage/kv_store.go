package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davido182/depositdigest/pkg/logger"
)

// Persisted key names and bounds. Other implementations reading the same
// store rely on these, so they must not change.
const (
	KeySecurityEvents = "security_events"
	KeyAuditLogs      = "audit_logs"
	KeyHealthHistory  = "system_health_history"
	KeyCriticalAlerts = "critical_alerts"

	MaxStreamEntries  = 100
	MaxHealthHistory  = 24
	MaxCriticalAlerts = 10
	MetricWindow      = time.Hour

	// CorruptSuffix is appended to a key when an undecodable value is moved aside
	CorruptSuffix = ".corrupt"
)

// ErrCorruptValue is returned when a stored list is not a JSON array
var ErrCorruptValue = errors.New("corrupt list value")

// KVStore is a synchronous string-valued key-value store
type KVStore interface {
	// Get returns the value and whether the key exists
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// MemoryStore is a process-local KVStore
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// LoadList decodes the JSON array stored under key. A missing key is an empty list.
func LoadList[T any](kv KVStore, key string) ([]T, error) {
	raw, ok, err := kv.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrCorruptValue, key, err)
	}
	return items, nil
}

// SaveList encodes items as a JSON array under key
func SaveList[T any](kv KVStore, key string, items []T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Set(key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// AppendCapped appends item to the list under key and keeps only the most
// recent max entries (oldest dropped first). It returns the stored list.
// An undecodable value is moved to key+CorruptSuffix and the list restarts
// empty, so one bad write cannot block the stream.
func AppendCapped[T any](kv KVStore, key string, item T, max int) ([]T, error) {
	items, err := LoadList[T](kv, key)
	if errors.Is(err, ErrCorruptValue) {
		quarantine(kv, key, err)
		items, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	items = append(items, item)
	if max > 0 && len(items) > max {
		items = items[len(items)-max:]
	}

	if err := SaveList(kv, key, items); err != nil {
		return nil, err
	}
	return items, nil
}

func quarantine(kv KVStore, key string, cause error) {
	fields := map[string]interface{}{
		"key":   key,
		"error": cause.Error(),
	}

	raw, ok, err := kv.Get(key)
	if err == nil && ok {
		if err := kv.Set(key+CorruptSuffix, raw); err != nil {
			fields["quarantine_error"] = err.Error()
		}
	}
	logger.Warn("Corrupt list value moved aside, starting a fresh list", fields)
}
