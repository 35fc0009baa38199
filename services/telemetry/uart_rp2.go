// telemetry/uart_rp2.go
//go:build rp2040 || rp2350

package telemetry

import (
	"context"
	"io"

	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

func init() {
	UARTDial = dialUART
}

func dialUART(_ context.Context, u UARTConfig) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch u.Port {
	case "", "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, errNoDial
	}
	// Defaults inside uartx apply for zero values.
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: u.Baud,
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	return uartPort{hw}, nil
}

// uartPort adapts uartx to io.ReadWriteCloser. The hardware UART outlives
// the link; Close only marks the session over.
type uartPort struct {
	u *uartx.UART
}

func (p uartPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p uartPort) Read(b []byte) (int, error) {
	return p.u.RecvSomeContext(context.Background(), b)
}

func (p uartPort) Close() error { return nil }
