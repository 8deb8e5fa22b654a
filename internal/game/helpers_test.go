package game

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

type recorded struct {
	target SessionID
	all    bool
	evt    Event
}

// recorder is a Broadcaster that keeps every delivery in order.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recorder) Broadcast(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{all: true, evt: evt})
}

func (r *recorder) Send(id SessionID, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{target: id, evt: evt})
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

func (r *recorder) ofType(t MessageType) []recorded {
	var out []recorded
	for _, ev := range r.all() {
		if ev.evt.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) lastError(id SessionID) string {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.evt.Type == MsgError && ev.target == id {
			return ev.evt.Data.(ErrorMessage).Message
		}
	}
	return ""
}

func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, *recorder) {
	t.Helper()
	opts := DefaultOptions()
	// Ticks are driven by the test through tickNow.
	opts.TickInterval = time.Hour
	opts.ResolveDelay = time.Hour
	opts.Rand = NewSeededRand(42)
	opts.Logger = zerolog.Nop()
	if mutate != nil {
		mutate(&opts)
	}

	rec := &recorder{}
	e := NewEngine(opts, rec)
	e.Start()
	t.Cleanup(e.Stop)
	return e, rec
}

func (e *Engine) tickNow(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := e.do(e.tick); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
}

func mustConnect(t *testing.T, e *Engine, id SessionID, address string) {
	t.Helper()
	if _, err := e.ConnectWallet(id, ConnectWalletRequest{Address: address}); err != nil {
		t.Fatalf("ConnectWallet(%s): %v", id, err)
	}
}
