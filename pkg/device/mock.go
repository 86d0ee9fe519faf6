package device

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var _ Closer = &Mock{}

// Mock is an in-memory Handle. Tests drive it with Emit.
type Mock struct {
	mu       sync.Mutex
	handlers map[string][]func(args ...any)
	closed   int
	closeErr error
}

// NewMock returns a new Mock handle.
func NewMock() *Mock {
	return &Mock{handlers: make(map[string][]func(args ...any))}
}

// On registers fn for name.
func (m *Mock) On(name string, fn func(args ...any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], fn)
}

// Emit calls every handler registered for name. Emitting on a closed mock is
// a no-op, like a library that stopped its event loop.
func (m *Mock) Emit(name string, args ...any) {
	m.mu.Lock()
	if m.closed > 0 {
		m.mu.Unlock()
		logrus.WithField("event", name).Trace("mock closed, not emitting")
		return
	}
	fns := append([]func(args ...any){}, m.handlers[name]...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(args...)
	}
}

// EmitAlways calls the handlers even after Close, to simulate a library that
// keeps delivering late events.
func (m *Mock) EmitAlways(name string, args ...any) {
	m.mu.Lock()
	fns := append([]func(args ...any){}, m.handlers[name]...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(args...)
	}
}

// SetCloseError makes Close return err.
func (m *Mock) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

// Closed returns how many times Close was called.
func (m *Mock) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Registered reports whether a handler exists for name.
func (m *Mock) Registered(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[name]) > 0
}

// MockOpener hands out Mock handles and records every open.
type MockOpener struct {
	mu      sync.Mutex
	handles []*Mock
	err     error
	calls   int
}

// NewMockOpener returns a new MockOpener.
func NewMockOpener() *MockOpener {
	return &MockOpener{}
}

// Open creates a new Mock, unless an error was set with Fail.
func (o *MockOpener) Open() (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	m := NewMock()
	o.handles = append(o.handles, m)
	return m, nil
}

// Fail makes subsequent opens return err. A nil err clears it.
func (o *MockOpener) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Calls returns the number of Open calls, failed ones included.
func (o *MockOpener) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// Opens returns the number of successful opens.
func (o *MockOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

// Last returns the most recently opened handle, or nil.
func (o *MockOpener) Last() *Mock {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.handles) == 0 {
		return nil
	}
	return o.handles[len(o.handles)-1]
}
