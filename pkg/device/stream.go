package device

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	_ Closer  = &Stream{}
	_ Starter = &Stream{}
)

// RawLine is one line of the JSON-lines raw event protocol, e.g.
//
//	{"event":"battery","args":[42]}
type RawLine struct {
	Event string `json:"event"`
	Args  []any  `json:"args,omitempty"`
}

// Stream is a Handle decoding raw events from a reader. It is how the
// vendor library is bridged when it runs out of process.
//
// Reading starts with Start. Lines without a handler for their name are
// discarded.
type Stream struct {
	r io.ReadCloser

	mu       sync.RWMutex
	handlers map[string][]func(args ...any)

	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	onClose   func() error
}

// NewStream returns a Stream reading from r. Close closes r.
func NewStream(r io.ReadCloser) *Stream {
	return &Stream{
		r:        r,
		handlers: make(map[string][]func(args ...any)),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// On registers fn for name.
func (s *Stream) On(name string, fn func(args ...any)) {
	s.mu.Lock()
	s.handlers[name] = append(s.handlers[name], fn)
	s.mu.Unlock()
}

// Start begins reading. Calls after the first are no-ops.
func (s *Stream) Start() {
	s.startOnce.Do(func() {
		go s.readLoop()
	})
}

// Done is closed when the read loop exits.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) readLoop() {
	defer close(s.done)

	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		if s.isClosed() {
			return
		}

		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw RawLine
		if err := json.Unmarshal(line, &raw); err != nil {
			logrus.WithError(err).WithField("line", string(line)).Warn("invalid raw event line")
			continue
		}
		if raw.Event == "" {
			continue
		}
		s.dispatch(raw.Event, raw.Args...)
	}

	if s.isClosed() {
		return
	}

	err := sc.Err()
	if err != nil && !errors.Is(err, os.ErrClosed) {
		s.dispatch(EventError, pkgerrors.Wrap(err, "failed to read raw events"))
	}
	s.dispatch(EventDisconnected, io.EOF)
}

func (s *Stream) dispatch(name string, args ...any) {
	s.mu.RLock()
	fns := append([]func(args ...any){}, s.handlers[name]...)
	s.mu.RUnlock()

	if len(fns) == 0 {
		logrus.WithField("event", name).Trace("no handler for raw event")
		return
	}
	for _, fn := range fns {
		fn(args...)
	}
}

// Close stops delivering events and releases the reader. It is safe to call
// more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.onClose != nil {
			err = s.onClose()
		}
		if cerr := s.r.Close(); cerr != nil && err == nil && !errors.Is(cerr, os.ErrClosed) {
			err = cerr
		}
	})
	return err
}
