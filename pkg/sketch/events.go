package sketch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a change of the sketch's entity map.
type EventType string

// Event types published by a Sketch.
const (
	EventAdded         EventType = "added"
	EventAboutToRemove EventType = "about_to_remove"
	EventRemoved       EventType = "removed"
	EventChanged       EventType = "changed"
)

// Event describes one change of the entity map.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	Type EventType `json:"type"`

	// Entity is the ID of the affected entity.
	Entity int `json:"entity"`

	// EntityType is the script name of the affected entity.
	EntityType string `json:"entity_type"`
}

// EventHandler receives events.
type EventHandler func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventBus delivers sketch events synchronously, in subscription order,
// on the goroutine that mutated the sketch.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []subscriberEntry
}

type subscriberEntry struct {
	id      string
	handler EventHandler
	filter  EventFilter
}

// Subscribe registers handler and returns a subscription ID. A nil filter
// accepts every event.
func (b *EventBus) Subscribe(filter EventFilter, handler EventHandler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscribers = append(b.subscribers, subscriberEntry{id: id, handler: handler, filter: filter})
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

func (b *EventBus) publish(typ EventType, id int, e Entity) {
	b.mu.RLock()
	subs := append([]subscriberEntry(nil), b.subscribers...)
	b.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      typ,
		Entity:    id,
	}
	if e != nil {
		event.EntityType = e.TypeName()
	}
	for _, s := range subs {
		if s.filter != nil && !s.filter(event) {
			continue
		}
		s.handler(event)
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...EventType) EventFilter {
	typeSet := make(map[EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByEntity creates a filter that only allows events for the given
// entity IDs.
func FilterByEntity(ids ...int) EventFilter {
	idSet := make(map[int]bool)
	for _, id := range ids {
		idSet[id] = true
	}

	return func(event Event) bool {
		return idSet[event.Entity]
	}
}
