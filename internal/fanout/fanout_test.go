package fanout

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Olafs-World/agent-chatroom/internal/models"
)

func newTestFanout(buffer int, policy Policy) *Fanout {
	return New(Options{Buffer: buffer, Overflow: policy, Logger: zerolog.Nop()})
}

func msg(i int, text string) models.Message {
	return models.Message{Index: i, Agent: "bot", Text: text}
}

func TestSubscriberAttachedBeforeReceivesExactlyOnce(t *testing.T) {
	f := newTestFanout(8, PolicyDisconnect)
	sub, err := f.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer f.Unsubscribe(sub)

	f.Notify(msg(0, "hello"))

	select {
	case got := <-sub.C():
		if got.Text != "hello" {
			t.Fatalf("unexpected message %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	select {
	case extra := <-sub.C():
		t.Fatalf("message delivered twice: %+v", extra)
	default:
	}
}

func TestSubscriberAttachedAfterDoesNotReceive(t *testing.T) {
	f := newTestFanout(8, PolicyDisconnect)
	f.Notify(msg(0, "before"))

	sub, err := f.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer f.Unsubscribe(sub)

	select {
	case got := <-sub.C():
		t.Fatalf("late subscriber got %+v", got)
	default:
	}
}

func TestTwoSubscribersEachReceiveOne(t *testing.T) {
	f := newTestFanout(8, PolicyDisconnect)
	a, _ := f.Subscribe()
	b, _ := f.Subscribe()
	if f.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", f.Len())
	}

	f.Notify(msg(0, "hi"))

	for _, sub := range []*Subscriber{a, b} {
		if n := len(sub.queue); n != 1 {
			t.Fatalf("subscriber %s has %d queued, want 1", sub.ID, n)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	f := newTestFanout(8, PolicyDisconnect)
	sub, _ := f.Subscribe()

	f.Unsubscribe(sub)
	f.Unsubscribe(sub)
	f.Unsubscribe(nil)

	if f.Len() != 0 {
		t.Fatalf("expected empty set, got %d", f.Len())
	}
	select {
	case <-sub.Done():
	default:
		t.Fatal("expected Done to be closed after unsubscribe")
	}

	// Notifying after removal must not panic or deliver.
	f.Notify(msg(0, "late"))
	if len(sub.queue) != 0 {
		t.Fatal("removed subscriber received a message")
	}
}

func TestOverflowDisconnectEvictsOnlySlowSubscriber(t *testing.T) {
	f := newTestFanout(2, PolicyDisconnect)
	slow, _ := f.Subscribe()
	fast, _ := f.Subscribe()

	for i := 0; i < 3; i++ {
		f.Notify(msg(i, "m"))
		// Keep the fast subscriber drained.
		<-fast.C()
	}

	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber should have been evicted")
	}
	select {
	case <-fast.Done():
		t.Fatal("fast subscriber must stay attached")
	default:
	}
	if f.Len() != 1 {
		t.Fatalf("expected 1 subscriber left, got %d", f.Len())
	}
}

func TestOverflowDropOldestKeepsNewest(t *testing.T) {
	f := newTestFanout(2, PolicyDropOldest)
	sub, _ := f.Subscribe()
	defer f.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		f.Notify(msg(i, "m"))
	}

	first := <-sub.C()
	second := <-sub.C()
	if first.Index != 3 || second.Index != 4 {
		t.Fatalf("expected indices 3,4 got %d,%d", first.Index, second.Index)
	}
	select {
	case <-sub.Done():
		t.Fatal("drop-oldest must not evict")
	default:
	}
}

func TestNotifyNeverBlocks(t *testing.T) {
	f := newTestFanout(1, PolicyDropOldest)
	for i := 0; i < 10; i++ {
		sub, _ := f.Subscribe()
		defer f.Unsubscribe(sub)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			f.Notify(msg(i, "burst"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on full queues")
	}
}

func TestConcurrentSubscribeAndNotify(t *testing.T) {
	f := newTestFanout(64, PolicyDisconnect)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub, err := f.Subscribe()
				if err != nil {
					t.Errorf("subscribe: %v", err)
					return
				}
				f.Unsubscribe(sub)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			f.Notify(msg(j, "x"))
		}
	}()
	wg.Wait()

	if f.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", f.Len())
	}
}

func TestCloseEvictsAndRejects(t *testing.T) {
	f := newTestFanout(4, PolicyDisconnect)
	sub, _ := f.Subscribe()

	f.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatal("Close should evict attached subscribers")
	}
	if _, err := f.Subscribe(); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Cleanup path after Close stays safe.
	f.Unsubscribe(sub)
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":            PolicyDisconnect,
		"disconnect":  PolicyDisconnect,
		"drop-oldest": PolicyDropOldest,
		"drop_oldest": PolicyDropOldest,
	}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePolicy("block"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
