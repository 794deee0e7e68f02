package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published inside prayerfirst.
const (
	// TypeDeepLinkOpen carries a deep-link URL (Data: string) from a cold
	// start or a tapped notification.
	TypeDeepLinkOpen = "deeplink.open"
	// TypeNotificationDelivered carries a notifier.Delivery.
	TypeNotificationDelivered = "notification.delivered"
	// TypeLockChanged carries a lock.Status after a shield change.
	TypeLockChanged = "lock.changed"
	// TypeRemindersSynced carries a reminder.Result.
	TypeRemindersSynced = "reminders.synced"
	// TypePrayerCompleted carries the completed session's start time.
	TypePrayerCompleted = "prayer.completed"
)

// Event is a lightweight in-memory signal used to decouple components.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a full buffer drops the event for
//     that subscriber only.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			select {
			case s.ch <- e:
			default:
			}
		}
		s.mu.Unlock()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.mu.Lock()
			s.closed = true
			close(s.ch)
			s.mu.Unlock()
		})
	}
	return s.ch, unsub
}
