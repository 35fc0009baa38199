// services/hal/types.go
package hal

import (
	"context"
	"encoding/json"
	"time"

	"tinygo.org/x/drivers"

	"ventcode-go/types"
)

// CapAddr addresses one capability: hal/cap/<domain>/<kind>/<name>.
type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

// CapabilitySpec describes one capability a device exposes.
type CapabilitySpec struct {
	Domain string // defaulted by kind if empty
	Kind   types.Kind
	Name   string // defaulted to the device ID if empty
	Info   types.Info
}

// Device owns a concrete driver and exposes generic hooks.
// Devices must NOT touch the bus; telemetry goes through the emitter.
type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	// Read fetches a measurement batch, emitting one payload per kind.
	Read(ctx context.Context, emit func(kind types.Kind, payload any)) error
	// Control handles a verb for one of the device's kinds.
	// Return (nil, errcode.Unsupported) for unknown verbs.
	Control(kind types.Kind, verb string, payload any) (any, error)
	Close() error
}

// Producer is implemented by devices that want periodic reads.
type Producer interface {
	ReadPeriod() time.Duration
}

// Event is device-to-HAL telemetry, published from the HAL goroutine.
type Event struct {
	Addr    CapAddr
	Payload any
	TSms    int64
	Err     string // non-empty => retained status degraded, no value
	IsEvent bool   // true => one-shot event, not a retained value
}

// EventEmitter enqueues events for single-threaded publication.
type EventEmitter interface {
	Emit(ev Event) bool
}

// Motor is a rotary actuator commanded by relative elementary steps.
// There is no position feedback; Move blocks until the move completes.
type Motor interface {
	Move(steps int32)
	Off()
}

// Platform supplies board resources to device builders.
type Platform interface {
	I2CByID(id string) (drivers.I2C, bool)
	NewMotor(pins [4]int, stepsPerRev, rpm uint32) (Motor, error)
}

// Resources are HAL-injected into builders.
type Resources struct {
	Plat Platform
	Pub  EventEmitter
}

// BuilderInput carries one device's configuration into its builder.
type BuilderInput struct {
	ID, Type string
	Params   any
	BusRef   types.BusRef
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}

// DecodeParams converts a params payload (typed struct, map, or raw JSON)
// into the device's param shape.
func DecodeParams[T any](src any, dst *T) error {
	switch v := src.(type) {
	case T:
		*dst = v
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
