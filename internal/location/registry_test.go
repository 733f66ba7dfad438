package location

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	r := NewRegistry(nil, nil)

	sub := r.Subscribe("viewer-1", "owner-1")
	if got := r.SubscriberCount("owner-1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	r.Unsubscribe(sub)
	if got := r.SubscriberCount("owner-1"); got != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", got)
	}

	// The frame channel must be closed so the WebSocket writer loop exits.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel, got a frame")
		}
	default:
		t.Error("expected channel to be closed")
	}
}

func TestRegistryUnsubscribeTwice(t *testing.T) {
	r := NewRegistry(nil, nil)
	sub := r.Subscribe("viewer-1", "owner-1")
	r.Unsubscribe(sub)
	r.Unsubscribe(sub) // must not panic on double close
}

func TestRegistryFanoutDeliversOncePerSubscriber(t *testing.T) {
	r := NewRegistry(nil, nil)

	subs := make([]*Subscriber, 3)
	for i := range subs {
		subs[i] = r.Subscribe(fmt.Sprintf("viewer-%d", i), "owner-1")
	}
	other := r.Subscribe("viewer-x", "owner-2")

	sample := &Sample{ID: "s1", OwnerID: "owner-1", Latitude: 1, Longitude: 2, CapturedAt: time.Now()}
	r.FanoutSample("owner-1", sample)

	for i, sub := range subs {
		select {
		case frame := <-sub.C():
			var msg StreamMessage
			if err := json.Unmarshal(frame, &msg); err != nil {
				t.Fatalf("subscriber %d got invalid frame: %v", i, err)
			}
			if msg.Type != StreamTypeLocationUpdate {
				t.Errorf("subscriber %d: expected %s, got %s", i, StreamTypeLocationUpdate, msg.Type)
			}
		default:
			t.Errorf("subscriber %d got no frame", i)
		}
		// At most once: no second frame.
		select {
		case <-sub.C():
			t.Errorf("subscriber %d got a duplicate frame", i)
		default:
		}
	}

	select {
	case <-other.C():
		t.Error("subscriber of a different owner must not receive the frame")
	default:
	}
}

func TestRegistryDropsWhenSubscriberIsSlow(t *testing.T) {
	r := NewRegistry(nil, nil)
	sub := r.Subscribe("viewer-1", "owner-1")

	sample := &Sample{ID: "s1", OwnerID: "owner-1", Latitude: 1, Longitude: 2}
	// Fill the buffer without draining, then overflow it. The overflow
	// sends must return promptly instead of blocking the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			r.FanoutSample("owner-1", sample)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fan-out blocked on a slow subscriber")
	}

	if got := len(sub.ch); got != subscriberBuffer {
		t.Errorf("expected exactly %d buffered frames, got %d", subscriberBuffer, got)
	}
}

func TestRegistryConcurrentChurnAndFanout(t *testing.T) {
	r := NewRegistry(nil, nil)
	sample := &Sample{ID: "s1", OwnerID: "owner-1", Latitude: 1, Longitude: 2}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := r.Subscribe(fmt.Sprintf("viewer-%d-%d", n, j), "owner-1")
				r.FanoutSample("owner-1", sample)
				r.Unsubscribe(sub)
			}
		}(i)
	}
	wg.Wait()

	if got := r.SubscriberCount("owner-1"); got != 0 {
		t.Errorf("expected no subscribers after churn, got %d", got)
	}
}
