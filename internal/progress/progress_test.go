package progress_test

import (
	"sync"
	"testing"

	"github.com/paveg/datascope/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) fn(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestReporter_Cadence(t *testing.T) {
	rec := &recorder{}
	rep := progress.NewReporter(rec.fn, 5000, 2000)
	for i := uint64(1); i <= 5000; i++ {
		rep.Row(i)
	}
	rep.Done(5000)

	require.Len(t, rec.events, 4)
	assert.Equal(t, progress.Event{Current: 0, Total: 5000, Message: progress.MessageStart}, rec.events[0])
	assert.Equal(t, uint64(2000), rec.events[1].Current)
	assert.Equal(t, uint64(4000), rec.events[2].Current)
	assert.Equal(t, progress.Event{Current: 5000, Total: 5000, Message: progress.MessageDone}, rec.events[3])
}

func TestReporter_ShortfallKeepsTotal(t *testing.T) {
	rec := &recorder{}
	rep := progress.NewReporter(rec.fn, 10, 2000)
	rep.Done(7)

	for _, ev := range rec.events {
		assert.Equal(t, uint64(10), ev.Total)
	}
	assert.Equal(t, progress.Event{Current: 7, Total: 10, Message: progress.MessageDone}, rec.events[len(rec.events)-1])
}

func TestReporter_NonDecreasing(t *testing.T) {
	rec := &recorder{}
	rep := progress.NewReporter(rec.fn, 100, 10)
	for _, n := range []uint64{5, 10, 9, 25, 24, 100} {
		rep.Row(n)
	}
	rep.Done(100)
	rep.Done(100) // second call is ignored

	var prev uint64
	for _, ev := range rec.events {
		assert.GreaterOrEqual(t, ev.Current, prev)
		assert.LessOrEqual(t, ev.Current, ev.Total)
		prev = ev.Current
	}
	assert.Equal(t, progress.MessageDone, rec.events[len(rec.events)-1].Message)
	assert.Equal(t, 1, countMessage(rec.events, progress.MessageDone))
}

func TestReporter_NilFunc(t *testing.T) {
	rep := progress.NewReporter(nil, 10, 1)
	assert.NotPanics(t, func() {
		rep.Row(5)
		rep.Done(10)
		progress.Cached(nil, 3)
	})
}

func TestCached(t *testing.T) {
	rec := &recorder{}
	progress.Cached(rec.fn, 42)
	require.Len(t, rec.events, 1)
	assert.Equal(t, progress.Event{Current: 42, Total: 42, Message: progress.MessageFromCache}, rec.events[0])
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := progress.NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	fn := bus.Func("req-1")
	fn(progress.Event{Current: 1, Total: 2})

	ev := <-ch
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, uint64(1), ev.Current)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "channel closed after cancel")
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := progress.NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(progress.Event{Current: 1})
	bus.Publish(progress.Event{Current: 2})

	assert.Len(t, ch, 1)
	assert.Equal(t, uint64(1), (<-ch).Current)
}

func TestBus_Close(t *testing.T) {
	bus := progress.NewBus()
	ch, cancel := bus.Subscribe(1)
	bus.Close()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()

	late, _ := bus.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestTee(t *testing.T) {
	assert.Nil(t, progress.Tee(nil, nil))

	a, b := &recorder{}, &recorder{}
	fn := progress.Tee(a.fn, nil, b.fn)
	fn(progress.Event{Current: 1, Total: 1})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func countMessage(events []progress.Event, msg string) int {
	n := 0
	for _, ev := range events {
		if ev.Message == msg {
			n++
		}
	}
	return n
}
