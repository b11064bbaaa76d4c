package events

import (
	"sync"

	"matchpool/core/types"
)

// Log is an append-only, ordered notification log. Observers read it by
// sequence number or subscribe to receive new records as they are published.
// Log is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	capacity int
	records  []*types.Event
	subs     map[int]chan *types.Event
	nextSub  int
}

// NewLog returns a log retaining at most capacity records in memory. A
// capacity of zero retains everything.
func NewLog(capacity int) *Log {
	return &Log{capacity: capacity, subs: make(map[int]chan *types.Event)}
}

// Emit implements Emitter. Subscribers that cannot keep up miss records; they
// can catch up through Since.
func (l *Log) Emit(evt Event) {
	if evt == nil || evt.Event() == nil {
		return
	}
	record := evt.Event().Clone()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	if l.capacity > 0 && len(l.records) > l.capacity {
		l.records = append([]*types.Event(nil), l.records[len(l.records)-l.capacity:]...)
	}
	for _, ch := range l.subs {
		select {
		case ch <- record.Clone():
		default:
		}
	}
}

// Since returns up to limit records with a sequence number >= from.
func (l *Log) Since(from uint64, limit int) []*types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.Event, 0)
	for _, record := range l.records {
		if record.Sequence < from {
			continue
		}
		out = append(out, record.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Subscribe registers a channel receiving every record published after the
// call. The returned function cancels the subscription and closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan *types.Event, buffer)
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Fanout forwards every event to each emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
