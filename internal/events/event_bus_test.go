package events

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/davido182/depositdigest/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingStorage struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingStorage) Store(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingStorage) Query(EventFilters) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]Event(nil), r.events...), nil
}

func TestPublishStoresAndNotifies(t *testing.T) {
	store := &recordingStorage{}
	bus := NewEventBus(store)

	received := make(chan Event, 2)
	bus.Subscribe(EventAlertCreated, func(e Event) { received <- e })
	bus.SubscribeAll(func(e Event) { received <- e })

	bus.Publish(Event{Type: EventAlertCreated, Source: "test", SubjectID: "alert-1"})

	for i := 0; i < 2; i++ {
		select {
		case e := <-received:
			assert.Equal(t, "alert-1", e.SubjectID)
			assert.NotEmpty(t, e.ID)
			assert.False(t, e.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}

	stored, err := bus.Query(EventFilters{})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestPublishSurvivesPanickingHandler(t *testing.T) {
	bus := NewEventBus(nil)
	done := make(chan struct{})
	bus.Subscribe(EventHealthChecked, func(Event) { panic("boom") })
	bus.Subscribe(EventHealthChecked, func(Event) { close(done) })

	bus.Publish(Event{Type: EventHealthChecked})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second handler not called")
	}
}

func TestMultiStorageFallsBackOnQuery(t *testing.T) {
	broken := &recordingStorage{err: errors.New("influx down")}
	healthy := &recordingStorage{}
	multi := NewMultiEventStorage(broken, healthy)

	err := multi.Store(Event{ID: "e1", Type: EventAudit})
	assert.Error(t, err)

	events, err := multi.Query(EventFilters{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestDatabaseEventStorage(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "events.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SystemEvent{}))

	s := NewDatabaseEventStorage(db)
	now := time.Now().UTC()

	require.NoError(t, s.Store(Event{ID: "old", Type: EventSecurity, Timestamp: now.Add(-48 * time.Hour), Data: map[string]interface{}{}}))
	require.NoError(t, s.Store(Event{ID: "new", Type: EventAlertCreated, Timestamp: now, Severity: "critical", Data: map[string]interface{}{"title": "db down"}}))

	events, err := s.Query(EventFilters{Types: []EventType{EventAlertCreated}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "critical", events[0].Severity)
	assert.Equal(t, "db down", events[0].Data["title"])

	deleted, err := s.DeleteBefore(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}
