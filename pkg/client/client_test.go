package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charlie0129/hxstat/pkg/events"
)

// serveUnix serves h on a unix socket and returns its path.
func serveUnix(t *testing.T, h http.Handler) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "hx")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	p := filepath.Join(dir, "d.sock")
	l, err := net.Listen("unix", p)
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: h}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return p
}

func fakeDaemon() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `"v1.2.3"`)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"connection":"connected","subscribers":2,"status":{"battery":88,"power":"on"}}`)
	})
	mux.HandleFunc("/reconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `"connected"`)
	})
	mux.HandleFunc("/config", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `"boom"`)
	})
	return mux
}

func TestClientAPIs(t *testing.T) {
	c := NewClient(serveUnix(t, fakeDaemon()))

	v, err := c.GetVersion()
	if err != nil || v != "v1.2.3" {
		t.Fatalf("GetVersion = %q, %v", v, err)
	}

	st, err := c.GetStatus()
	if err != nil {
		t.Fatal(err)
	}
	if st.Connection != "connected" || st.Status.Battery == nil || *st.Status.Battery != 88 {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Status.Power == nil || *st.Status.Power != events.PowerOn {
		t.Fatalf("unexpected power %v", st.Status.Power)
	}

	state, err := c.Reconnect()
	if err != nil || state != "connected" {
		t.Fatalf("Reconnect = %q, %v", state, err)
	}

	if _, err := c.GetConfig(); err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected a server error, got %v", err)
	}
	if _, err := c.Get("/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Send("DELETE", "/status", ""); err == nil {
		t.Fatalf("expected an error for an unsupported method")
	}
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := c.GetVersion(); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestParseSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keepalive",
		"",
		"event:battery",
		"data:{\"value\":12}",
		"",
		"event: muted",
		"data: {\"value\":",
		"data: true}",
		"",
		"data: orphan",
		"",
		"event:power",
		"data:{\"value\":\"off\"}",
		"",
	}, "\n")

	var got []events.Message
	err := parseSSE(strings.NewReader(stream), func(m events.Message) { got = append(got, m) })
	if err == nil {
		t.Fatalf("a stream that ends should report it")
	}

	want := []events.Message{
		{Name: "battery", Data: []byte(`{"value":12}`)},
		{Name: "muted", Data: []byte("{\"value\":\ntrue}")},
		{Name: "power", Data: []byte(`{"value":"off"}`)},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i].Name || string(got[i].Data) != string(want[i].Data) {
			t.Errorf("message %d = %s %s, want %s %s", i, got[i].Name, got[i].Data, want[i].Name, want[i].Data)
		}
	}

	ev, err := events.Decode(got[1])
	if err != nil || ev != (events.Muted{Value: true}) {
		t.Fatalf("multi-line data should decode, got %v %v", ev, err)
	}
}

func TestSubscribeEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:battery\ndata:{\"value\":3}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	c := NewClient(serveUnix(t, mux))

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.SubscribeEvents(ctx)

	select {
	case m := <-ch:
		if m.Name != events.NameBattery || string(m.Data) != `{"value":3}` {
			t.Fatalf("unexpected message %s %s", m.Name, m.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected the channel to be closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestForward(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:sparkles\ndata:{}\n\nevent:muted\ndata:{\"value\":true}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	c := NewClient(serveUnix(t, mux))

	f := events.NewFeed()
	got := make(chan events.Event, 4)
	f.Subscribe(func(e events.Event) { got <- e })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Forward(ctx, f)
	}()

	select {
	case e := <-got:
		if e != (events.Muted{Value: true}) {
			t.Fatalf("unknown events should be skipped, got %v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event forwarded")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Forward did not return after cancel")
	}
}

func TestForwardReportsLostStream(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		if n == 1 {
			// The daemon goes away right after the first event.
			fmt.Fprint(w, "event:battery\ndata:{\"value\":80}\n\n")
			return
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	c := NewClient(serveUnix(t, mux))

	f := events.NewFeed()
	got := make(chan events.Event, 4)
	f.Subscribe(func(e events.Event) { got <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Forward(ctx, f)

	next := func() events.Event {
		select {
		case e := <-got:
			return e
		case <-time.After(5 * time.Second):
			t.Fatalf("no event forwarded")
		}
		return nil
	}

	if e := next(); e != (events.Battery{Percent: 80}) {
		t.Fatalf("expected Battery{80} first, got %v", e)
	}
	e, ok := next().(events.Error)
	if !ok || e.Cause == nil || !strings.Contains(e.Cause.Error(), "lost connection to hxstat daemon") {
		t.Fatalf("expected an error event after the stream ended, got %v", e)
	}
}
