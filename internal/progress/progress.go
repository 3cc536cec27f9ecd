// Package progress carries load progress from page loaders to observers.
package progress

import (
	"sync"
)

// Event is a single progress notification. Current never exceeds Total.
type Event struct {
	RequestID string `json:"request_id,omitempty"`
	Current   uint64 `json:"current"`
	Total     uint64 `json:"total"`
	Message   string `json:"message"`
}

// Func receives progress events. It is called from the worker running the
// operation and must not block for long.
type Func func(Event)

// Messages emitted by the loaders.
const (
	MessageStart     = "starting"
	MessageLoading   = "loading rows"
	MessageDone      = "done"
	MessageFromCache = "loaded from cache"
)

// Reporter throttles row-level progress to a fixed interval and keeps the
// emitted sequence non-decreasing.
type Reporter struct {
	fn       Func
	total    uint64
	interval uint64
	last     uint64
	next     uint64
	finished bool
}

// NewReporter emits (0,total) immediately. A nil fn yields a no-op reporter.
func NewReporter(fn Func, total, interval uint64) *Reporter {
	if interval == 0 {
		interval = 1
	}
	r := &Reporter{fn: fn, total: total, interval: interval, next: interval}
	r.emit(0, total, MessageStart)
	return r
}

// Row records that n rows have been materialized so far.
func (r *Reporter) Row(n uint64) {
	if r.finished || n < r.next {
		return
	}
	r.next = n - n%r.interval + r.interval
	if n > r.total {
		n = r.total
	}
	r.emit(n, r.total, MessageLoading)
}

// Done emits the final event (actual,total). A short page ends with
// current below total; a full page ends with current == total.
func (r *Reporter) Done(actual uint64) {
	if r.finished {
		return
	}
	r.finished = true
	if actual > r.total {
		actual = r.total
	}
	r.emit(actual, r.total, MessageDone)
}

func (r *Reporter) emit(current, total uint64, msg string) {
	if r.fn == nil {
		return
	}
	if current < r.last {
		current = r.last
	}
	r.last = current
	r.fn(Event{Current: current, Total: total, Message: msg})
}

// Cached emits the single event used when a page is served from cache.
func Cached(fn Func, rows uint64) {
	if fn != nil {
		fn(Event{Current: rows, Total: rows, Message: MessageFromCache})
	}
}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than stall the loader.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener with the given buffer size. The returned
// cancel function unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Func returns a progress callback publishing events tagged with requestID.
func (b *Bus) Func(requestID string) Func {
	return func(ev Event) {
		ev.RequestID = requestID
		b.Publish(ev)
	}
}

// Close unregisters all subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Tee combines callbacks. Nil entries are ignored.
func Tee(fns ...Func) Func {
	var live []Func
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(ev Event) {
		for _, fn := range live {
			fn(ev)
		}
	}
}
