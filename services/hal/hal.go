// services/hal/hal.go
package hal

import (
	"context"

	"ventcode-go/bus"
	"ventcode-go/errcode"
	"ventcode-go/types"
	"ventcode-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8
)

type capKey struct {
	domain string
	kind   string
	name   string
}

// HAL owns every configured device and is the only goroutine that touches
// them after Init. Device reads, control verbs and event publication all run
// on the Run loop.
type HAL struct {
	conn *bus.Connection
	res  Resources

	dev map[string]Device // devID -> device

	// (domain,kind,name) -> devID, plus the reverse per-kind address map
	// used when stamping device events.
	capIndex map[capKey]string
	capAddr  map[string]map[types.Kind]CapAddr // devID -> kind -> addr

	evCh   chan Event
	pollCh chan string
	poll   *poller
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	pollCh := make(chan string, pollQueueLen)
	h := &HAL{
		conn:     conn,
		res:      res,
		dev:      map[string]Device{},
		capIndex: map[capKey]string{},
		capAddr:  map[string]map[types.Kind]CapAddr{},
		evCh:     make(chan Event, eventQueueLen),
		pollCh:   pollCh,
		poll:     newPoller(pollCh),
	}
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

// Run blocks until ctx is cancelled. Configuration arrives retained on
// config/hal; controls are rejected until the first config is applied.
func Run(ctx context.Context, conn *bus.Connection, plat Platform) {
	NewHAL(conn, Resources{Plat: plat}).Run(ctx)
}

func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(topicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)

	go h.poll.Run(ctx)

	ready := false
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.pubHALState("stopped", "context_cancelled")
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HALConfig
			if err := decodeConfig(msg.Payload, &cfg); err != nil {
				println("[hal] config decode failed:", err.Error())
				continue
			}
			// applyConfig is additive/idempotent for existing devices.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}

		case m := <-ctrlSub.Channel():
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m)

		case devID := <-h.pollCh:
			h.readDevice(ctx, devID)

		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			println("[hal] no builder for type:", dc.Type, "id:", dc.ID)
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			BusRef: dc.BusRef,
			Res:    h.res,
		})
		if err != nil {
			println("[hal] build failed for:", dc.ID, "err:", err.Error())
			continue
		}
		if err := dev.Init(ctx); err != nil {
			println("[hal] init failed for:", dc.ID, "err:", err.Error())
			continue
		}
		h.dev[dev.ID()] = dev
		h.capAddr[dev.ID()] = map[types.Kind]CapAddr{}

		// Register capabilities, publish retained info + initial status:down.
		for _, cs := range dev.Capabilities() {
			domain := cs.Domain
			if domain == "" {
				domain = defaultDomainFor(cs.Kind)
			}
			name := cs.Name
			if name == "" {
				name = dev.ID()
			}
			addr := CapAddr{Domain: domain, Kind: string(cs.Kind), Name: name}

			h.capIndex[capKey{domain: domain, kind: string(cs.Kind), name: name}] = dev.ID()
			h.capAddr[dev.ID()][cs.Kind] = addr

			h.conn.Publish(h.conn.NewMessage(capInfo(addr), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				capStatus(addr),
				types.CapabilityStatus{Link: types.LinkDown, TSms: timex.NowMs()},
				true,
			))
		}

		if prod, ok := dev.(Producer); ok {
			period := prod.ReadPeriod()
			if period > 0 {
				h.poll.Upsert(dev.ID(), period, period/10)
			}
		}
	}
}

// readDevice performs a scheduled read inline. The emit callback publishes
// directly; no detour through evCh is needed on this goroutine.
func (h *HAL) readDevice(ctx context.Context, devID string) {
	dev := h.dev[devID]
	if dev == nil {
		h.poll.Stop(devID)
		return
	}
	addrs := h.capAddr[devID]
	now := timex.NowMs()

	err := dev.Read(ctx, func(kind types.Kind, payload any) {
		addr, ok := addrs[kind]
		if !ok {
			return
		}
		h.handleEvent(Event{Addr: addr, Payload: payload, TSms: now})
	})
	if err != nil {
		code := errcode.Of(err)
		for _, addr := range addrs {
			h.handleEvent(Event{Addr: addr, TSms: now, Err: string(code)})
		}
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() < 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	ownerID, ok := h.capIndex[capKey{domain: domain, kind: kind, name: name}]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	dev := h.dev[ownerID]
	if dev == nil {
		h.replyErr(msg, errcode.Error)
		return
	}

	res, err := dev.Control(types.Kind(kind), verb, msg.Payload)
	if err != nil {
		h.replyErr(msg, errcode.Of(err))
		return
	}
	if !msg.CanReply() {
		return
	}
	if res == nil {
		h.conn.Reply(msg, types.OKReply{OK: true}, false)
		return
	}
	h.conn.Reply(msg, res, false)
}

func (h *HAL) handleEvent(ev Event) {
	if ev.TSms == 0 {
		ev.TSms = timex.NowMs()
	}

	// Error → retained status:degraded; no value/event published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			capStatus(ev.Addr),
			types.CapabilityStatus{Link: types.LinkDegraded, TSms: ev.TSms, Error: ev.Err},
			true,
		))
		return
	}

	if ev.IsEvent {
		h.conn.Publish(h.conn.NewMessage(capEvent(ev.Addr), ev.Payload, false))
	} else {
		h.conn.Publish(h.conn.NewMessage(capValue(ev.Addr), ev.Payload, true))
	}
	h.conn.Publish(h.conn.NewMessage(
		capStatus(ev.Addr),
		types.CapabilityStatus{Link: types.LinkUp, TSms: ev.TSms},
		true,
	))
}

func (h *HAL) closeAll() {
	for id, dev := range h.dev {
		h.poll.Stop(id)
		if err := dev.Close(); err != nil {
			println("[hal] close failed for:", id, "err:", err.Error())
		}
	}
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		bus.T("hal", "state"),
		types.HALState{Level: level, Status: status, TSms: timex.NowMs()},
		true,
	))
}

func (h *HAL) replyErr(m *bus.Message, code errcode.Code) {
	if !m.CanReply() {
		return
	}
	if code == "" {
		code = errcode.Error
	}
	h.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}

func defaultDomainFor(kind types.Kind) string {
	switch kind {
	case types.KindTemperature, types.KindHumidity, types.KindPressure:
		return "env"
	default:
		return "io"
	}
}

func decodeConfig(src any, dst *types.HALConfig) error {
	return DecodeParams(src, dst)
}

// ---- HAL as EventEmitter (enqueue to the single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
