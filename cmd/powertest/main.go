// cmd/powertest/main.go
//
// Host-runnable end-to-end check of the charger stack: a scripted I2C
// device stands in for the chip, and the real service, bus and driver
// run on top of it. Exits non-zero on failure so it can gate CI.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"powercode-go/bus"
	"powercode-go/drivers/bq24295"
	"powercode-go/services/power"
	"powercode-go/types"
)

// --- scripted I2C charger ----------------------------------------------------

// fakeCharger is a register-file I2C target at the charger address. The
// fault register latches and clears on read, like the real part.
type fakeCharger struct {
	mu   sync.Mutex
	regs [0x0B]byte
	ptr  byte
}

func newFakeCharger() *fakeCharger {
	f := &fakeCharger{}
	f.regs[0x0A] = 0xC0 // vendor/part
	f.regs[0x05] = 0x9A // termination/timer power-on default
	f.regs[0x07] = 0x4B // misc operation power-on default
	f.regs[0x08] = 0xA4 // adapter present, charge done, power good
	return f
}

func (f *fakeCharger) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(w) == 2 {
		f.regs[w[0]] = w[1]
		return nil
	}
	if len(w) == 1 {
		f.ptr = w[0]
		return nil
	}
	if len(r) == 1 {
		r[0] = f.regs[f.ptr]
		if f.ptr == 0x09 {
			f.regs[0x09] = 0
		}
		return nil
	}
	return nil
}

func (f *fakeCharger) set(reg, val byte) {
	f.mu.Lock()
	f.regs[reg] = val
	f.mu.Unlock()
}

func (f *fakeCharger) get(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// --- harness -----------------------------------------------------------------

type harness struct {
	bb   *bus.Bus
	chip *fakeCharger
	stop context.CancelFunc
}

func startStack() *harness {
	chip := newFakeCharger()
	cfg := bq24295.DefaultConfig()
	cfg.SettleDelay = 10 * time.Microsecond
	dev := bq24295.New(chip, cfg)

	bb := bus.NewBus(32)
	svc := power.New(dev, power.Params{Bus: "i2c4", PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx, bb.NewConnection("power"))

	return &harness{bb: bb, chip: chip, stop: cancel}
}

func waitMessage(sub *bus.Subscription, timeout time.Duration) (*bus.Message, bool) {
	select {
	case m := <-sub.Channel():
		return m, true
	case <-time.After(timeout):
		return nil, false
	}
}

func control(h *harness, conn *bus.Connection, verb string, payload any) (power.Result, error) {
	msg := conn.NewMessage(bus.T("power", "charger", "internal", "control", verb), payload, false)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := conn.RequestWait(ctx, msg)
	if err != nil {
		return power.Result{}, err
	}
	res, ok := reply.Payload.(power.Result)
	if !ok {
		return power.Result{}, fmt.Errorf("reply payload %T", reply.Payload)
	}
	return res, nil
}

// --- individual tests (return bool pass/fail) --------------------------------

func TestIdentify() bool {
	h := startStack()
	defer h.stop()
	conn := h.bb.NewConnection("test")

	infoSub := conn.Subscribe(bus.T("power", "charger", "internal", "info"))
	m, ok := waitMessage(infoSub, time.Second)
	if !ok {
		fmt.Println("TestIdentify: no retained info")
		return false
	}
	info, ok := m.Payload.(types.Info)
	if !ok || info.Driver != "bq24295" {
		fmt.Println("TestIdentify: bad info payload")
		return false
	}

	stSub := conn.Subscribe(bus.T("power", "charger", "internal", "status"))
	m, ok = waitMessage(stSub, time.Second)
	if !ok {
		fmt.Println("TestIdentify: no retained status")
		return false
	}
	st, ok := m.Payload.(types.CapabilityStatus)
	if !ok || st.Link != types.LinkUp {
		fmt.Println("TestIdentify: link not up")
		return false
	}
	return true
}

func TestReadVerb() bool {
	h := startStack()
	defer h.stop()
	conn := h.bb.NewConnection("test")

	h.chip.set(0x08, 0x54) // usb host, charge done
	res, err := control(h, conn, "read", nil)
	if err != nil || !res.OK {
		fmt.Println("TestReadVerb: control failed:", err)
		return false
	}

	valSub := conn.Subscribe(bus.T("power", "charger", "internal", "value"))
	m, ok := waitMessage(valSub, time.Second)
	if !ok {
		fmt.Println("TestReadVerb: no retained value")
		return false
	}
	v, ok := m.Payload.(types.ChargerValue)
	if !ok || v.VBus != "usb_host" || v.Charge != "done" {
		fmt.Println("TestReadVerb: bad snapshot", m.Payload)
		return false
	}
	return true
}

func TestFaultEvents() bool {
	h := startStack()
	defer h.stop()
	conn := h.bb.NewConnection("test")
	evSub := conn.Subscribe(bus.T("power", "charger", "internal", "event"))

	h.chip.set(0x09, 0x80) // watchdog expired
	if res, err := control(h, conn, "read", nil); err != nil || !res.OK {
		fmt.Println("TestFaultEvents: control failed:", err)
		return false
	}

	m, ok := waitMessage(evSub, time.Second)
	if !ok {
		fmt.Println("TestFaultEvents: no event")
		return false
	}
	if tag, _ := m.Payload.(string); tag != "watchdog_expired" {
		fmt.Println("TestFaultEvents: wrong tag", m.Payload)
		return false
	}

	// Latched register cleared on read: a second poll is quiet.
	if res, err := control(h, conn, "read", nil); err != nil || !res.OK {
		fmt.Println("TestFaultEvents: second control failed:", err)
		return false
	}
	if _, got := waitMessage(evSub, 100*time.Millisecond); got {
		fmt.Println("TestFaultEvents: unexpected second event")
		return false
	}
	return true
}

func TestShippingMode() bool {
	h := startStack()
	defer h.stop()
	conn := h.bb.NewConnection("test")

	// Unconfirmed requests are refused.
	res, err := control(h, conn, "shipping_mode", types.ShippingModeRequest{})
	if err != nil || res.OK {
		fmt.Println("TestShippingMode: unconfirmed request accepted")
		return false
	}

	res, err = control(h, conn, "shipping_mode", types.ShippingModeRequest{Confirm: true})
	if err != nil || !res.OK {
		fmt.Println("TestShippingMode: confirmed request failed:", err)
		return false
	}

	if h.chip.get(0x05)&0x30 != 0 {
		fmt.Println("TestShippingMode: watchdog still armed")
		return false
	}
	if h.chip.get(0x07)&0x20 == 0 {
		fmt.Println("TestShippingMode: BATFET still closed")
		return false
	}

	// Everything after is refused.
	res, err = control(h, conn, "read", nil)
	if err != nil || res.OK {
		fmt.Println("TestShippingMode: read accepted after shutdown")
		return false
	}
	return true
}

func TestNotConnected() bool {
	chip := newFakeCharger()
	chip.set(0x0A, 0x00) // wrong part id
	cfg := bq24295.DefaultConfig()
	cfg.SettleDelay = 10 * time.Microsecond
	dev := bq24295.New(chip, cfg)

	bb := bus.NewBus(32)
	svc := power.New(dev, power.Params{PollInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx, bb.NewConnection("power"))

	conn := bb.NewConnection("test")
	stSub := conn.Subscribe(bus.T("power", "charger", "internal", "status"))
	m, ok := waitMessage(stSub, time.Second)
	if !ok {
		fmt.Println("TestNotConnected: no status")
		return false
	}
	st, _ := m.Payload.(types.CapabilityStatus)
	if st.Link != types.LinkDown || st.Error != "not_connected" {
		fmt.Println("TestNotConnected: wrong status", m.Payload)
		return false
	}
	return true
}

// --- main: run all tests and report ------------------------------------------

type testFn struct {
	name string
	fn   func() bool
}

func main() {
	tests := []testFn{
		{"TestIdentify", TestIdentify},
		{"TestReadVerb", TestReadVerb},
		{"TestFaultEvents", TestFaultEvents},
		{"TestShippingMode", TestShippingMode},
		{"TestNotConnected", TestNotConnected},
	}

	passed, failed := 0, 0
	fmt.Println("== power stack self-test starting ==")
	for _, tc := range tests {
		if tc.fn() {
			fmt.Printf("[PASS] %s\n", tc.name)
			passed++
		} else {
			fmt.Printf("[FAIL] %s\n", tc.name)
			failed++
		}
	}
	fmt.Printf("== done: %d passed, %d failed ==\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
