package sync

import (
	"context"
	"testing"
	"time"

	"github.com/mneme-app/mneme/internal/bus"
	"github.com/mneme-app/mneme/internal/store"
)

func countEvents(ch <-chan bus.Event, window time.Duration) int {
	deadline := time.After(window)
	n := 0
	for {
		select {
		case <-ch:
			n++
		case <-deadline:
			return n
		}
	}
}

func TestSchedulerCoalescesBursts(t *testing.T) {
	srv := testServer(t)
	h := testHarness(t, srv.URL, "dev-1")
	s := NewScheduler(h.engine, h.bus, 30*time.Millisecond, nil)

	pushed, unsub := h.bus.Subscribe("sync.pushed", 16)
	defer unsub()

	// A burst of writes must produce one push, not one per write.
	for i := 0; i < 5; i++ {
		s.Schedule()
		time.Sleep(5 * time.Millisecond)
	}

	if got := countEvents(pushed, 500*time.Millisecond); got != 1 {
		t.Errorf("pushes after burst = %d, want 1", got)
	}
}

func TestSchedulerFiresOnRepositoryWrites(t *testing.T) {
	srv := testServer(t)
	h := testHarness(t, srv.URL, "dev-1")
	s := NewScheduler(h.engine, h.bus, 20*time.Millisecond, nil)

	s.Start(context.Background())
	defer s.Stop()

	pushed, unsub := h.bus.Subscribe("sync.pushed", 16)
	defer unsub()

	chat, err := h.chats.Create("Typed fast", nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := countEvents(pushed, 500*time.Millisecond); got != 1 {
		t.Fatalf("pushes after create = %d, want 1", got)
	}
	got, _ := h.chats.GetByID(chat.ID)
	if got.ServerID == nil {
		t.Error("scheduled push did not reach the server")
	}
}

func TestSchedulerFlushNow(t *testing.T) {
	srv := testServer(t)
	h := testHarness(t, srv.URL, "dev-1")
	// Debounce long enough that only an explicit flush can explain a push.
	s := NewScheduler(h.engine, h.bus, time.Hour, nil)

	chat, _ := h.chats.Create("Impatient", nil)
	s.Schedule()
	s.FlushNow()

	got, _ := h.chats.GetByID(chat.ID)
	if got.ServerID == nil {
		t.Error("FlushNow did not push")
	}
	if s.IsRunning() {
		t.Error("IsRunning true after synchronous flush returned")
	}

	// The armed timer was consumed by the flush; nothing else fires.
	pushed, unsub := h.bus.Subscribe("sync.pushed", 16)
	defer unsub()
	if got := countEvents(pushed, 200*time.Millisecond); got != 0 {
		t.Errorf("stray pushes after flush = %d", got)
	}
}

func TestSchedulerStopCancelsPendingPush(t *testing.T) {
	srv := testServer(t)
	h := testHarness(t, srv.URL, "dev-1")
	s := NewScheduler(h.engine, h.bus, 50*time.Millisecond, nil)

	s.Start(context.Background())
	chat, _ := h.chats.Create("Never sent", nil)
	// Let the subscription arm the timer before cancelling it.
	time.Sleep(10 * time.Millisecond)
	s.Stop()

	time.Sleep(150 * time.Millisecond)
	got, err := h.chats.GetByID(chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ServerID != nil {
		t.Error("push fired after Stop")
	}
	if got.SyncStatus != store.SyncPending {
		t.Errorf("status = %q, want pending", got.SyncStatus)
	}
}
