// services/hal/platform/factories_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"tinygo.org/x/drivers"

	"ventcode-go/services/hal"
)

// ----------------------------- I²C (host) ------------------------------------

// HostI2C implements tinygo drivers.I2C for host-side tests and the
// simulator. Register handlers emulate a device; without handlers reads
// come back zeroed.
type HostI2C struct {
	mu     sync.Mutex
	onTx   func(addr uint16, w, r []byte) error
	LastTx struct {
		Addr uint16
		W    []byte
		Rn   int
	}
}

// OnTx installs a transaction handler emulating an attached device.
func (h *HostI2C) OnTx(fn func(addr uint16, w, r []byte) error) {
	h.mu.Lock()
	h.onTx = fn
	h.mu.Unlock()
}

func (h *HostI2C) Tx(addr uint16, w, r []byte) error {
	h.mu.Lock()
	h.LastTx.Addr = addr
	h.LastTx.W = append([]byte(nil), w...)
	h.LastTx.Rn = len(r)
	fn := h.onTx
	h.mu.Unlock()
	if fn != nil {
		return fn(addr, w, r)
	}
	for i := range r {
		r[i] = 0
	}
	return nil
}

// ----------------------------- Motor (host) ----------------------------------

// SimMotor records moves for tests and the simulator.
type SimMotor struct {
	mu    sync.Mutex
	moves []int32
	offs  int
}

func (m *SimMotor) Move(steps int32) {
	m.mu.Lock()
	m.moves = append(m.moves, steps)
	m.mu.Unlock()
}

func (m *SimMotor) Off() {
	m.mu.Lock()
	m.offs++
	m.mu.Unlock()
}

// Moves returns a copy of the recorded move history.
func (m *SimMotor) Moves() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int32(nil), m.moves...)
}

// NetSteps sums all recorded moves.
func (m *SimMotor) NetSteps() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int32
	for _, s := range m.moves {
		n += s
	}
	return n
}

// ----------------------------- Platform (host) --------------------------------

type hostPlatform struct {
	buses  map[string]*HostI2C
	mu     sync.Mutex
	motors []*SimMotor
}

// DefaultPlatform creates a host platform with inert "i2c0" and "i2c1" buses
// and recording motors.
func DefaultPlatform() *HostPlatform {
	return &HostPlatform{hostPlatform{
		buses: map[string]*HostI2C{
			"i2c0": {},
			"i2c1": {},
		},
	}}
}

// HostPlatform implements hal.Platform and exposes the fakes to tests.
type HostPlatform struct {
	hostPlatform
}

func (p *HostPlatform) I2CByID(id string) (drivers.I2C, bool) {
	b, ok := p.buses[id]
	if !ok {
		return nil, false
	}
	return b, true
}

func (p *HostPlatform) NewMotor(_ [4]int, _, _ uint32) (hal.Motor, error) {
	m := &SimMotor{}
	p.mu.Lock()
	p.motors = append(p.motors, m)
	p.mu.Unlock()
	return m, nil
}

// Bus exposes the underlying *HostI2C for tests (e.g. to install OnTx).
func (p *HostPlatform) Bus(id string) (*HostI2C, bool) {
	b, ok := p.buses[id]
	return b, ok
}

// Motors returns every motor handed out so far.
func (p *HostPlatform) Motors() []*SimMotor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*SimMotor(nil), p.motors...)
}
