package eventlogger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLogger struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memoryLogger) Save(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memoryLogger) GetByType(_ context.Context, eventType string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	logger := &memoryLogger{}
	w := NewWorker(logger, 10)

	// queued before Start, so everything is saved by the drain
	for i := 0; i < 5; i++ {
		require.True(t, w.Log(NewEvent(WithType("ledger.event_rebuilt"))))
	}
	w.Start()
	w.Shutdown()

	events, err := logger.GetByType(context.Background(), "ledger.event_rebuilt")
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestWorker_DropsWhenFull(t *testing.T) {
	w := NewWorker(&memoryLogger{}, 1)
	assert.True(t, w.Log(NewEvent()))
	assert.False(t, w.Log(NewEvent()))
}

func TestWorker_SaveErrorsAreLogged(t *testing.T) {
	logger := &memoryLogger{err: errors.New("disk full")}
	w := NewWorker(logger, 1)
	w.Start()
	w.Log(NewEvent(WithType("x")))
	w.Shutdown()
	assert.Empty(t, logger.events)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(
		WithType("ledger.event_deleted"),
		WithData(map[string]string{"event_id": "7"}),
		WithMetadata("user_id", "3"),
	)

	assert.NotZero(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, "ledger.event_deleted", e.Type)
	assert.Equal(t, "7", e.Data["event_id"])
	assert.Equal(t, "3", e.Metadata["user_id"])
}
