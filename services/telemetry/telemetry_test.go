// telemetry/telemetry_test.go
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"ventcode-go/bus"
	"ventcode-go/services/config"
	"ventcode-go/types"
)

func TestTelemetryEstablishesLinkAndReportsState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("telemetry_test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.T("telemetry", "state"))
	defer conn.Unsubscribe(stateSub)

	first := nextState(t, stateSub, 500*time.Millisecond)
	assertLevelStatus(t, first, "idle", "awaiting_config")

	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	var remote io.ReadWriteCloser
	UARTDial = func(_ context.Context, _ UARTConfig) (io.ReadWriteCloser, error) {
		lc, rc := net.Pipe()
		remote = rc
		go drainPeer(rc)
		return lc, nil
	}

	cfg := `{"transport":"uart","uart":{"baud":115200,"rx_pin":1,"tx_pin":0}}`
	conn.Publish(conn.NewMessage(bus.T("config", "telemetry"), cfg, false))

	up := nextState(t, stateSub, time.Second)
	assertLevelStatus(t, up, "up", "link_established")

	// Close the remote to force link loss; expect degraded state.
	if remote != nil {
		_ = remote.Close()
	}
	degraded := nextState(t, stateSub, time.Second)
	if degraded.Level != "degraded" {
		t.Fatalf("after link loss: %+v", degraded)
	}
}

func TestTelemetryForwardsEnvAndVentState(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("telemetry_test_fwd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	frames := make(chan Frame, 16)
	RegisterTransport("test-pipe", func(Config) (Transport, error) {
		return pipeTransport{frames: frames}, nil
	})

	conn.Publish(conn.NewMessage(bus.T("config", "telemetry"),
		Config{Transport: "test-pipe"}, false))

	stateSub := conn.Subscribe(bus.T("telemetry", "state"))
	defer conn.Unsubscribe(stateSub)
	for {
		st := nextState(t, stateSub, time.Second)
		if st.Level == "up" {
			break
		}
	}

	pub := b.NewConnection("hal_fake")
	pub.Publish(pub.NewMessage(
		bus.T("hal", "cap", "env", "humidity", "climate", "value"),
		types.HumidityValue{RHx100: 6550, TSms: 42}, true))
	pub.Publish(pub.NewMessage(
		bus.T("vent", "state"),
		types.VentState{Quantized: 65, Seeded: true}, true))

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case f := <-frames:
			if f.Type != framePub {
				continue
			}
			var rec Record
			if err := json.Unmarshal(f.Payload, &rec); err != nil {
				t.Fatal("bad record:", err)
			}
			if len(rec.Topic) == 0 {
				t.Fatalf("empty topic in record: %+v", rec)
			}
			seen[rec.Topic[0]] = true
		case <-deadline:
			t.Fatalf("forwarded topics seen: %v", seen)
		}
	}
	if !seen["hal"] || !seen["vent"] {
		t.Fatalf("forwarded topics seen: %v", seen)
	}
}

func TestTelemetryCoalescesRapidReadings(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("telemetry_test_coal")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	frames := make(chan Frame, 16)
	RegisterTransport("test-pipe-coal", func(Config) (Transport, error) {
		return pipeTransport{frames: frames}, nil
	})

	conn.Publish(conn.NewMessage(bus.T("config", "telemetry"),
		Config{Transport: "test-pipe-coal", MinIntervalMS: 500}, false))

	stateSub := conn.Subscribe(bus.T("telemetry", "state"))
	defer conn.Unsubscribe(stateSub)
	for {
		st := nextState(t, stateSub, time.Second)
		if st.Level == "up" {
			break
		}
	}

	time.Sleep(20 * time.Millisecond) // let handleLink finish subscribing

	// Three readings on one topic inside the floor: the first goes straight
	// out, the middle one is replaced before the floor elapses.
	pub := b.NewConnection("hal_fake_coal")
	topic := bus.T("hal", "cap", "env", "humidity", "climate", "value")
	for _, rh := range []uint16{5000, 6000, 7000} {
		pub.Publish(pub.NewMessage(topic, types.HumidityValue{RHx100: rh}, true))
	}

	var sent []uint16
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-frames:
			if f.Type != framePub {
				continue
			}
			var rec struct {
				Payload types.HumidityValue `json:"payload"`
			}
			if err := json.Unmarshal(f.Payload, &rec); err != nil {
				t.Fatal("bad record:", err)
			}
			sent = append(sent, rec.Payload.RHx100)
			if rec.Payload.RHx100 == 7000 {
				for _, rh := range sent {
					if rh == 6000 {
						t.Fatalf("stale reading forwarded: %v", sent)
					}
				}
				if sent[0] != 5000 {
					t.Fatalf("first reading not forwarded immediately: %v", sent)
				}
				return
			}
		case <-deadline:
			t.Fatalf("latest reading never flushed, sent %v", sent)
		}
	}
}

func TestReferenceBoardConfigYieldsTransport(t *testing.T) {
	raw, ok := config.EmbeddedConfigLookup("pico-vent")
	if !ok {
		t.Fatal("no embedded config for pico-vent")
	}
	var board map[string]json.RawMessage
	if err := json.Unmarshal(raw, &board); err != nil {
		t.Fatal("reference config:", err)
	}

	cfg, err := decodeConfig([]byte(board["telemetry"]))
	if err != nil {
		t.Fatal("telemetry slice:", err)
	}
	tr, err := newTransport(cfg)
	if err != nil {
		t.Fatal("reference board telemetry cannot start:", err)
	}
	if tr.String() != "uart" {
		t.Fatalf("transport: %q", tr.String())
	}
}

func TestTelemetryUnknownTransportYieldsErrorState(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("telemetry_test_bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Start(ctx, conn)

	stateSub := conn.Subscribe(bus.T("telemetry", "state"))
	defer conn.Unsubscribe(stateSub)

	_ = nextState(t, stateSub, 500*time.Millisecond) // initial awaiting_config

	conn.Publish(conn.NewMessage(bus.T("config", "telemetry"),
		`{"transport":"bogus"}`, false))

	errState := nextState(t, stateSub, time.Second)
	if errState.Level != "error" {
		t.Fatalf("unexpected state: %+v", errState)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// pipeTransport hands the service one end of a pipe and parses frames from
// the other end into a channel.
type pipeTransport struct {
	frames chan Frame
}

func (p pipeTransport) Open(context.Context) (io.ReadWriteCloser, error) {
	lc, rc := net.Pipe()
	go func() {
		defer rc.Close()
		rd := newFramedReader(rc)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				return
			}
			select {
			case p.frames <- f:
			default:
			}
		}
	}()
	return lc, nil
}

func (p pipeTransport) String() string { return "test-pipe" }

// drainPeer reads and discards frames until the pipe dies.
func drainPeer(c io.ReadWriteCloser) {
	defer c.Close()
	buf := make([]byte, 256)
	for {
		if _, err := c.Read(buf); err != nil {
			return
		}
	}
}

func nextState(t *testing.T, sub *bus.Subscription, d time.Duration) types.HALState {
	t.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.HALState)
		if !ok {
			t.Fatalf("state payload type: got %T, want types.HALState", m.Payload)
		}
		return st
	case <-timer.C:
		t.Fatal("timeout waiting for telemetry/state")
		return types.HALState{}
	}
}

func assertLevelStatus(t *testing.T, st types.HALState, wantLevel, wantStatus string) {
	t.Helper()
	if st.Level != wantLevel || st.Status != wantStatus {
		t.Fatalf("unexpected state: level=%q status=%q, want level=%q status=%q",
			st.Level, st.Status, wantLevel, wantStatus)
	}
}
