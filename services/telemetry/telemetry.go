// telemetry/telemetry.go
//
// Forwards environmental readings and controller state over a serial link to
// a companion host (logger, dashboard, bigger box doing trend analysis).
// The link is one-way: a frame per bus message, plus a heartbeat.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"ventcode-go/bus"
	"ventcode-go/types"
	"ventcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the telemetry service. It blocks until ctx is cancelled.
// It listens for JSON config on "config/telemetry" and (re)configures the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.T("telemetry", "state"),
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/telemetry".
type Config struct {
	// "uart" (provided on RP2 boards) or other names registered via
	// RegisterTransport.
	Transport string      `json:"transport"`
	UART      *UARTConfig `json:"uart,omitempty"`

	// Forwarding interval floor; readings arriving faster are coalesced.
	MinIntervalMS int `json:"min_interval_ms,omitempty"`
}

// UARTConfig selects and configures the hardware UART.
type UARTConfig struct {
	Port  string `json:"port,omitempty"` // "uart0" (default) or "uart1"
	Baud  uint32 `json:"baud,omitempty"`
	RxPin int    `json:"rx_pin,omitempty"`
	TxPin int    `json:"tx_pin,omitempty"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "telemetry"))
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		minInterval := time.Duration(cfg.MinIntervalMS) * time.Millisecond
		if err := s.handleLink(ctx, rwc, minInterval); err != nil {
			_ = rwc.Close()
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		_ = rwc.Close()
		return
	}
}

// Record is one forwarded bus message.
type Record struct {
	Topic   []string `json:"topic"`
	Payload any      `json:"payload"`
	TSms    int64    `json:"ts_ms"`
}

// handleLink owns the active link lifetime: forwards env values and
// controller state, and keeps the heartbeat running.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, minInterval time.Duration) error {
	wr := newFramedWriter(rwc)

	envSub := s.conn.Subscribe(bus.T("hal", "cap", "env", "#"))
	ventSub := s.conn.Subscribe(bus.T("vent", "state"))
	defer s.conn.Unsubscribe(envSub)
	defer s.conn.Unsubscribe(ventSub)

	// The peer sends nothing we act on, but reading detects link loss
	// without waiting for the next outbound write.
	errCh := make(chan error, 1)
	go func() {
		rd := newFramedReader(rwc)
		for {
			if _, err := rd.ReadFrame(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	coal := newCoalescer(minInterval)
	var flushC <-chan time.Time
	if minInterval > 0 {
		ft := time.NewTicker(minInterval)
		defer ft.Stop()
		flushC = ft.C
	}

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err := <-errCh:
			return err
		case m := <-envSub.Channel():
			if out := coal.offer(m, time.Now()); out != nil {
				if err := s.forward(wr, out); err != nil {
					return err
				}
			}
		case m := <-ventSub.Channel():
			if out := coal.offer(m, time.Now()); out != nil {
				if err := s.forward(wr, out); err != nil {
					return err
				}
			}
		case <-flushC:
			for _, m := range coal.due(time.Now()) {
				if err := s.forward(wr, m); err != nil {
					return err
				}
			}
		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		}
	}
}

// coalescer enforces the per-topic forwarding floor: a message arriving
// within the interval of the previous send is queued, and a newer one for
// the same topic replaces it, so only the latest reading goes out when the
// floor elapses. A zero interval forwards everything.
type coalescer struct {
	interval time.Duration
	lastSent map[string]time.Time
	pending  map[string]*bus.Message
}

func newCoalescer(interval time.Duration) *coalescer {
	return &coalescer{
		interval: interval,
		lastSent: map[string]time.Time{},
		pending:  map[string]*bus.Message{},
	}
}

// offer returns m if it may be forwarded now, nil if it was queued.
func (c *coalescer) offer(m *bus.Message, now time.Time) *bus.Message {
	if c.interval <= 0 {
		return m
	}
	key := topicKey(m.Topic)
	if key == "" {
		return m
	}
	if now.Sub(c.lastSent[key]) >= c.interval {
		c.lastSent[key] = now
		delete(c.pending, key)
		return m
	}
	c.pending[key] = m
	return nil
}

// due flushes queued messages whose floor has elapsed.
func (c *coalescer) due(now time.Time) []*bus.Message {
	if len(c.pending) == 0 {
		return nil
	}
	var out []*bus.Message
	for key, m := range c.pending {
		if now.Sub(c.lastSent[key]) >= c.interval {
			c.lastSent[key] = now
			delete(c.pending, key)
			out = append(out, m)
		}
	}
	return out
}

func topicKey(tp bus.Topic) string {
	key := ""
	for i := 0; i < tp.Len(); i++ {
		s, ok := tp.At(i).(string)
		if !ok {
			return "" // non-string topics bypass the floor
		}
		key += "/" + s
	}
	return key
}

func (s *Service) forward(wr *framedWriter, m *bus.Message) error {
	topic := make([]string, 0, m.Topic.Len())
	for i := 0; i < m.Topic.Len(); i++ {
		ts, ok := m.Topic.At(i).(string)
		if !ok {
			return nil // non-string topics are local-only
		}
		topic = append(topic, ts)
	}
	body, err := json.Marshal(Record{Topic: topic, Payload: m.Payload, TSms: timex.NowMs()})
	if err != nil {
		// Unencodable payloads are skipped, not fatal to the link.
		return nil
	}
	return wr.WriteFrame(Frame{Type: framePub, Payload: body})
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(Config) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]transportFactory{}
)

// RegisterTransport allows external packages to add transports (eg. host test
// pipes, TCP on Linux builds).
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg Config) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Transport]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Transport {
	case "uart":
		return newUARTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Transport)
	}
}

// UARTDial is injected by platform code (see uart_rp2.go). It must open and
// return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

var errNoDial = errors.New("no UART dialler on this platform")

type uartTransport struct {
	cfg UARTConfig
}

func newUARTTransport(cfg Config) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: *cfg.UART}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, u.cfg)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case Config:
		return v, nil
	case []byte:
		err := json.Unmarshal(v, &cfg)
		return cfg, err
	case string:
		err := json.Unmarshal([]byte(v), &cfg)
		return cfg, err
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		err = json.Unmarshal(b, &cfg)
		return cfg, err
	}
}

func (s *Service) publishState(level, status string, err error) {
	st := types.HALState{Level: level, Status: status, TSms: timex.NowMs()}
	if err != nil {
		st.Status = status + ": " + err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, st, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
