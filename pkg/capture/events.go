package capture

import (
	"slices"
	"sync"
	"time"
)

// EventType identifies a property change published by a Controller.
type EventType int

const (
	EventStateChanged EventType = iota
	EventPositionChanged
	EventFlashModeChanged
	EventQualityChanged
	EventPhotoTaken
	EventRecordingStarted
	EventRecordingFinished
	EventDevicesChanged
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventPositionChanged:
		return "position_changed"
	case EventFlashModeChanged:
		return "flash_mode_changed"
	case EventQualityChanged:
		return "quality_changed"
	case EventPhotoTaken:
		return "photo_taken"
	case EventRecordingStarted:
		return "recording_started"
	case EventRecordingFinished:
		return "recording_finished"
	case EventDevicesChanged:
		return "devices_changed"
	}
	return "unknown"
}

// Event carries the new value of whatever changed; unrelated fields are zero.
type Event struct {
	Type        EventType
	Time        time.Time
	State       SetupState
	Position    Position
	FlashMode   FlashMode
	Quality     Quality
	RecordingID string
	Path        string
	Err         error
}

// Bus fans events out to subscribers on the callback context. It holds
// subscribers by id only; a subscriber stops receiving events once it calls
// Unsubscribe, including events already queued for it.
type Bus struct {
	callbacks Dispatcher

	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(Event)
}

func NewBus(callbacks Dispatcher) *Bus {
	return &Bus{callbacks: callbacks, subs: make(map[uint64]func(Event))}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// Unsubscribe is idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// Subscribe registers fn.
func (b *Bus) Subscribe(fn func(Event)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[b.next] = fn
	return &Subscription{bus: b, id: b.next}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) handler(id uint64) (func(Event), bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn, ok := b.subs[id]
	return fn, ok
}

// Publish queues e for every current subscriber.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	slices.Sort(ids)

	if len(ids) == 0 {
		return
	}
	b.callbacks.Dispatch(func() {
		for _, id := range ids {
			if fn, ok := b.handler(id); ok {
				fn(e)
			}
		}
	})
}
