package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// CancelFunc removes a subscription. Calling it more than once is a no-op.
type CancelFunc func()

// Subscriber is anything display surfaces can subscribe to.
type Subscriber interface {
	Subscribe(fn func(Event)) CancelFunc
}

// Pipe turns a callback subscription into a buffered channel. Sends never
// block the publisher; events are dropped when the reader is slow.
type Pipe struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped int
	cancel  CancelFunc
}

// NewPipe subscribes to s and returns a pipe delivering its events.
func NewPipe(s Subscriber, size int) *Pipe {
	if size <= 0 {
		size = 16
	}
	p := &Pipe{ch: make(chan Event, size)}
	p.cancel = s.Subscribe(p.send)
	return p
}

func (p *Pipe) send(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	// Non-blocking send; drop if subscriber is slow
	select {
	case p.ch <- e:
	default:
		p.dropped++
		logrus.WithFields(logrus.Fields{
			"event":   e.Name(),
			"dropped": p.dropped,
		}).Debug("pipe full, dropping event")
	}
}

// C returns the receiving channel. It is closed by Close.
func (p *Pipe) C() <-chan Event {
	return p.ch
}

// Dropped returns the number of events dropped so far.
func (p *Pipe) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close cancels the subscription and closes the channel. It is safe to call
// more than once.
func (p *Pipe) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}

var _ Subscriber = &Feed{}

// Feed is a Subscriber fed by hand, e.g. with events decoded from the
// daemon stream.
type Feed struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[int]func(Event))}
}

func (f *Feed) Subscribe(fn func(Event)) CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	f.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
		})
	}
}

// Len returns the number of live subscriptions.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Publish calls every subscriber with e, outside the lock.
func (f *Feed) Publish(e Event) {
	f.mu.Lock()
	fns := make([]func(Event), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
