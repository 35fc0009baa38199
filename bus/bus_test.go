// bus/bus_test.go
package bus

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"config", "vent"})

	msg := conn.NewMessage(Topic{"config", "vent"}, "tuning", false)
	conn.Publish(msg)

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "tuning" {
			t.Errorf("expected payload 'tuning', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	msg := conn.NewMessage(Topic{"vent", "state"}, "persist", true)
	conn.Publish(msg)

	sub := conn.Subscribe(Topic{"vent", "state"})

	select {
	case got := <-sub.Channel():
		if got.Payload.(string) != "persist" {
			t.Errorf("expected retained payload 'persist', got %v", got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for retained message")
	}
}

// -----------------------------------------------------------------------------
// Wildcards
// -----------------------------------------------------------------------------

func TestWildcardSingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	s1 := c.Subscribe(Topic{"hal", "+", "value"})
	s2 := c.Subscribe(Topic{"hal", "+", "+"})
	s3 := c.Subscribe(Topic{"hal", "env", "+"})
	sNo := c.Subscribe(Topic{"hal", "+", "status"})

	c.Publish(b.NewMessage(Topic{"hal", "env", "value"}, "m1", false))

	expectPayload(t, s1, "m1")
	expectPayload(t, s2, "m1")
	expectPayload(t, s3, "m1")
	expectNoMessage(t, sNo)

	c.Publish(b.NewMessage(Topic{"hal", "io", "event"}, "m2", false))

	expectPayload(t, s2, "m2")
	expectNoMessage(t, s1)
	expectNoMessage(t, s3)
	expectNoMessage(t, sNo)

	c.Publish(b.NewMessage(Topic{"hal", "value"}, "m3", false))
	expectNoMessage(t, s1)
	expectNoMessage(t, s2)
	expectNoMessage(t, s3)
	expectNoMessage(t, sNo)
}

func TestWildcardMultiLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sVentHash := c.Subscribe(Topic{"vent", "#"})
	sHash := c.Subscribe(Topic{"#"})
	sStateHash := c.Subscribe(Topic{"vent", "state", "#"})
	sVentExact := c.Subscribe(Topic{"vent"})

	c.Publish(b.NewMessage(Topic{"vent"}, "p1", false))
	expectPayload(t, sVentHash, "p1")
	expectPayload(t, sHash, "p1")
	expectPayload(t, sVentExact, "p1")
	expectNoMessage(t, sStateHash)

	c.Publish(b.NewMessage(Topic{"vent", "state"}, "p2", false))
	expectPayload(t, sVentHash, "p2")
	expectPayload(t, sHash, "p2")
	expectPayload(t, sStateHash, "p2")
	expectNoMessage(t, sVentExact)

	c.Publish(b.NewMessage(Topic{"vent", "state", "power"}, "p3", false))
	expectPayload(t, sVentHash, "p3")
	expectPayload(t, sHash, "p3")
	expectPayload(t, sStateHash, "p3")
	expectNoMessage(t, sVentExact)
}

// Wildcard subscribers get the retained tree at subscribe time; "#" also
// matches the node it is anchored on.
func TestWildcardRetainedDeliveryAtSubscribe(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"hal"}, "r0", true))
	c.Publish(b.NewMessage(Topic{"hal", "state"}, "r1", true))
	c.Publish(b.NewMessage(Topic{"hal", "state", "level"}, "r2", true))
	c.Publish(b.NewMessage(Topic{"hal", "link"}, "r3", true))

	sAll := c.Subscribe(Topic{"hal", "#"})
	gotAll := drainPayloads(t, sAll, 4)
	assertUnorderedEqual(t, gotAll, []string{"r0", "r1", "r2", "r3"})

	sPlusHash := c.Subscribe(Topic{"hal", "+", "#"})
	gotPH := drainPayloads(t, sPlusHash, 3)
	assertUnorderedEqual(t, gotPH, []string{"r1", "r2", "r3"})

	sPlus := c.Subscribe(Topic{"hal", "+"})
	gotP := drainPayloads(t, sPlus, 2)
	assertUnorderedEqual(t, gotP, []string{"r1", "r3"})

	sRoot := c.Subscribe(Topic{"#"})
	gotRoot := drainPayloads(t, sRoot, 4)
	assertUnorderedEqual(t, gotRoot, []string{"r0", "r1", "r2", "r3"})
}

func TestWildcardRetainedClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"hal", "state"}, "keep", true))
	c.Publish(b.NewMessage(Topic{"hal", "link"}, "other", true))

	c.Publish(b.NewMessage(Topic{"hal", "state"}, nil, true))

	s := c.Subscribe(Topic{"hal", "#"})
	got := drainPayloads(t, s, 1)

	if len(got) != 1 || got[0] != "other" {
		t.Fatalf("expected only 'other' after clear, got %v", got)
	}
}

func TestWildcardNoMatchCases(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	s := c.Subscribe(Topic{"hal", "+", "value"})

	c.Publish(b.NewMessage(Topic{"hal", "value"}, "x", false))
	expectNoMessage(t, s)

	c.Publish(b.NewMessage(Topic{"hal", "env", "status"}, "y", false))
	expectNoMessage(t, s)
}

// -----------------------------------------------------------------------------
// Overflow
// -----------------------------------------------------------------------------

// A subscriber that never drains keeps the newest messages: each publish
// into a full queue evicts the oldest entry.
func TestFanoutDropsOldestOnOverflow(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("slow")

	topic := Topic{"hal", "cap", "env", "humidity", "climate", "value"}
	sub := c.Subscribe(topic)

	for _, p := range []string{"v1", "v2", "v3", "v4"} {
		c.Publish(b.NewMessage(topic, p, false))
	}

	got := drainPayloads(t, sub, 2)
	assertUnorderedEqual(t, got, []string{"v3", "v4"})
	expectNoMessage(t, sub)
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func TestRequestReplyRequestWait(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")
	respConn := b.NewConnection("responder")

	reqTopic := Topic{"hal", "cap", "io", "motor", "damper", "control", "move"}
	respSub := respConn.Subscribe(reqTopic)
	defer respConn.Unsubscribe(respSub)

	go func() {
		if msg, ok := <-respSub.Channel(); ok {
			respConn.Reply(msg, "OK", false)
		}
	}()

	req := b.NewMessage(reqTopic, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	reply, err := reqConn.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error waiting for reply: %v", err)
	}
	if got, ok := reply.Payload.(string); !ok || got != "OK" {
		t.Fatalf("unexpected reply payload: %#v", reply.Payload)
	}
	if len(req.ReplyTo) == 0 {
		t.Fatal("request lacks ReplyTo after RequestWait")
	}
	if !topicsEqual(reply.Topic, req.ReplyTo) {
		t.Fatalf("reply topic %v != request ReplyTo %v", reply.Topic, req.ReplyTo)
	}
}

func TestRequestWaitTimeoutIsErrNoReply(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")

	req := b.NewMessage(Topic{"vent", "noop"}, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := reqConn.RequestWait(ctx, req)
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
}

func TestRequestReplyManualSubscription(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")
	respConn := b.NewConnection("responder")

	reqTopic := Topic{"hal", "cap", "env", "humidity", "climate", "control", "read"}
	reqSub := respConn.Subscribe(reqTopic)
	defer respConn.Unsubscribe(reqSub)

	reqMsg := b.NewMessage(reqTopic, nil, false)
	replySub := reqConn.Request(reqMsg)
	defer reqConn.Unsubscribe(replySub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if msg, ok := <-reqSub.Channel(); ok {
			respConn.Reply(msg, map[string]any{"rh_x100": 5500}, false)
		}
	}()

	select {
	case got := <-replySub.Channel():
		m, ok := got.Payload.(map[string]any)
		if !ok {
			t.Fatalf("unexpected reply type: %#v", got.Payload)
		}
		if m["rh_x100"] != 5500 {
			t.Fatalf("unexpected reply content: %#v", m)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("timeout waiting for manual reply")
	}

	<-done
}

func TestTopicInvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token, got none")
		}
	}()

	// []byte is not comparable, so T should panic
	_ = T([]byte{1, 2, 3})
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func topicsEqual(a, b Topic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func expectPayload(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if s, ok := m.Payload.(string); ok {
				out = append(out, s)
			} else {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q, want %q (got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}
