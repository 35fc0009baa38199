package main

import (
	"context"
	"time"

	"ventcode-go/bus"
	"ventcode-go/services/config"
	"ventcode-go/services/hal"
	"ventcode-go/services/hal/platform"
	"ventcode-go/services/telemetry"
	"ventcode-go/services/vent"

	// Device builders register themselves.
	_ "ventcode-go/services/hal/devices/bme280"
	_ "ventcode-go/services/hal/devices/hd44780"
	_ "ventcode-go/services/hal/devices/stepper"
)

const boardID = "pico-vent"

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(3 * time.Second)
	println("[main] boot", boardID)

	ctx := context.Background()
	b := bus.NewBus(16)

	println("[main] starting hal …")
	go hal.Run(ctx, b.NewConnection("hal"), platform.DefaultPlatform())

	println("[main] starting vent controller …")
	go vent.Run(ctx, b.NewConnection("vent"))

	println("[main] starting telemetry …")
	go telemetry.Start(ctx, b.NewConnection("telemetry"))

	// Config is retained, so services pick up their slice whether they
	// subscribed before or after this point.
	println("[main] publishing embedded config …")
	cfgCtx := context.WithValue(ctx, config.CtxBoardKey, boardID)
	config.NewConfigService().Start(cfgCtx, b.NewConnection("config"))

	// Keep the program alive; the services own all the work.
	select {}
}
