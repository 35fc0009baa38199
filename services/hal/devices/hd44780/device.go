// services/hal/devices/hd44780/device.go
//
// 16x2 character panel on an I²C backpack. The controller sends whole
// frames; the device owns layout and fixed-point formatting.
package hd44780

import (
	"context"
	"strconv"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"

	"ventcode-go/errcode"
	"ventcode-go/services/hal"
	"ventcode-go/types"
)

const (
	defaultAddr = 0x27
	defaultCols = 16
	defaultRows = 2
)

type device struct {
	id     string
	drv    hd44780i2c.Device
	params types.DisplayParams
}

func newDevice(id string, i2c drivers.I2C, p types.DisplayParams) *device {
	addr := uint8(p.Addr)
	if addr == 0 {
		addr = defaultAddr
	}
	if p.Cols == 0 {
		p.Cols = defaultCols
	}
	if p.Rows == 0 {
		p.Rows = defaultRows
	}
	return &device{id: id, drv: hd44780i2c.New(i2c, addr), params: p}
}

func (d *device) ID() string { return d.id }

func (d *device) Capabilities() []hal.CapabilitySpec {
	return []hal.CapabilitySpec{{
		Domain: d.params.Domain,
		Kind:   types.KindDisplay,
		Name:   d.params.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "hd44780",
			Detail:        types.DisplayInfo{Driver: "hd44780", Cols: d.params.Cols, Rows: d.params.Rows},
		},
	}}
}

func (d *device) Init(context.Context) error {
	err := d.drv.Configure(hd44780i2c.Config{
		Width:  d.params.Cols,
		Height: d.params.Rows,
	})
	if err != nil {
		return errcode.DisplayInit
	}
	d.drv.ClearDisplay()
	return nil
}

func (d *device) Read(context.Context, func(types.Kind, any)) error {
	return nil
}

func (d *device) Control(_ types.Kind, verb string, payload any) (any, error) {
	switch verb {
	case "render":
		var f types.DisplayFrame
		if err := hal.DecodeParams(payload, &f); err != nil {
			return nil, errcode.InvalidPayload
		}
		return nil, d.render(f)
	case "clear":
		d.drv.ClearDisplay()
		return nil, nil
	default:
		return nil, errcode.Unsupported
	}
}

func (d *device) Close() error { d.drv.ClearDisplay(); return nil }

// render paints both lines in one pass:
//
//	T 23.1C H 55.0%
//	P1013.2 PWR 51%
func (d *device) render(f types.DisplayFrame) error {
	top := padLine("T "+fmtFixed1(int(f.DeciC))+"C H "+fmtFixed1(int(f.RHx100)/10)+"%", d.params.Cols)
	bot := padLine("P"+fmtFixed1(int(f.DeciHPa))+" PWR "+strconv.Itoa(f.Power)+"%", d.params.Cols)

	d.drv.SetCursor(0, 0)
	d.drv.Print([]byte(top))
	d.drv.SetCursor(0, 1)
	d.drv.Print([]byte(bot))
	return nil
}

// fmtFixed1 renders a value held in tenths, e.g. 231 -> "23.1".
func fmtFixed1(v int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.Itoa(v/10) + "." + strconv.Itoa(v%10)
	if neg {
		return "-" + s
	}
	return s
}

// padLine right-pads to the panel width so stale characters are overwritten.
func padLine(s string, cols uint8) string {
	for len(s) < int(cols) {
		s += " "
	}
	if len(s) > int(cols) {
		s = s[:cols]
	}
	return s
}
