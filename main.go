//go:build tinygo

package main

import (
	"context"
	"time"

	"powercode-go/bus"
	"powercode-go/drivers/bq24295"
	"powercode-go/services/config"
	"powercode-go/services/heartbeat"
	"powercode-go/services/power"

	"machine"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{
		Frequency: 100_000,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	}); err != nil {
		println("i2c configure failed:", err.Error())
	}

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "blit")
	b := bus.NewBus(8)

	// Diagnostics: mirror everything the power service says.
	mon := b.NewConnection("monitor")
	monSub := mon.Subscribe(bus.T("power", "#"))
	go func() {
		for m := range monSub.Channel() {
			println("[monitor]", m.Topic.String())
		}
	}()

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	hb := &heartbeat.Service{}
	hb.Start(ctx, b.NewConnection("heartbeat"))

	dev := bq24295.New(i2c, bq24295.DefaultConfig())
	svc := power.New(dev, power.Params{Bus: "i2c0"})
	svc.Start(ctx, b.NewConnection("power"))

	select {}
}
