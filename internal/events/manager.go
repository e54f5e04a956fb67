package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the channel capacity of each subscriber.
const subscriberBuffer = 100

// Manager handles event emission, logging and fan-out to subscribers
type Manager struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	now    func() time.Time
	log    zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		subs: make(map[int]chan Event),
		now:  time.Now,
		log:  log.With().Str("service", "events").Logger(),
	}
}

// Emit logs the event and delivers it to every subscriber. Subscribers whose
// buffer is full miss the event.
func (m *Manager) Emit(module string, data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: m.now(),
		Module:    module,
		Data:      data,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, ch := range m.subs {
		select {
		case ch <- event:
		default:
			m.log.Warn().
				Int("subscriber", id).
				Str("event_type", string(event.Type)).
				Msg("Subscriber channel full, dropping event")
		}
	}
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}

// Subscribe returns a channel receiving every subsequent event and a function
// that unsubscribes and closes it.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of active subscribers
func (m *Manager) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}
