// services/power/service_test.go
package power

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"powercode-go/bus"
	"powercode-go/drivers/bq24295"
	"powercode-go/errcode"
	"powercode-go/types"

	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*fakeCharger)(nil)

// fakeCharger simulates the register file of a connected BQ24295.
type fakeCharger struct {
	mu      sync.Mutex
	regs    [16]byte
	pointer byte
	fail    error
}

func newFakeCharger() *fakeCharger {
	f := &fakeCharger{}
	f.regs[0x0A] = 0xC0 // vendor/part
	f.regs[0x05] = 0x9A // power-on defaults
	f.regs[0x07] = 0x4B
	f.regs[0x08] = 0xA4 // adapter + fast charge + PG
	return f
}

func (f *fakeCharger) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	switch {
	case len(w) == 1 && len(r) == 0:
		f.pointer = w[0]
	case len(w) == 2 && len(r) == 0:
		f.regs[w[0]&0x0F] = w[1]
	case len(w) == 0 && len(r) == 1:
		r[0] = f.regs[f.pointer&0x0F]
		if f.pointer == 0x09 {
			f.regs[0x09] = 0 // fault register clears on read
		}
	default:
		return errors.New("fake: unexpected transfer shape")
	}
	return nil
}

func (f *fakeCharger) setReg(reg, val byte) {
	f.mu.Lock()
	f.regs[reg&0x0F] = val
	f.mu.Unlock()
}

func (f *fakeCharger) reg(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg&0x0F]
}

func startService(t *testing.T, f *fakeCharger, p Params) (*bus.Bus, *bus.Connection) {
	t.Helper()
	// Short settle delay keeps the tests quick.
	dev := bq24295.New(f, bq24295.Config{SettleDelay: 10 * time.Microsecond})
	svc := New(dev, p)

	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := svc.Start(ctx, b.NewConnection("power")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return b, b.NewConnection("test")
}

func waitMsg(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func controlWait(t *testing.T, conn *bus.Connection, verb string, payload any) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := conn.NewMessage(bus.T("power", "charger", "internal", "control", verb), payload, false)
	reply, err := conn.RequestWait(ctx, msg)
	if err != nil {
		t.Fatalf("control %q: %v", verb, err)
	}
	res, ok := reply.Payload.(Result)
	if !ok {
		t.Fatalf("control %q reply type: %T", verb, reply.Payload)
	}
	return res
}

func TestService_PublishesRetainedInfoAndValue(t *testing.T) {
	f := newFakeCharger()
	_, conn := startService(t, f, Params{Bus: "i2c4"})

	info := waitMsg(t, conn.Subscribe(bus.T("power", "charger", "internal", "info")))
	iv, ok := info.Payload.(types.Info)
	if !ok {
		t.Fatalf("info payload type: %T", info.Payload)
	}
	if iv.Driver != "bq24295" {
		t.Fatalf("info driver = %q", iv.Driver)
	}
	detail, ok := iv.Detail.(types.ChargerInfo)
	if !ok || detail.Bus != "i2c4" || detail.Addr != bq24295.AddressDefault {
		t.Fatalf("info detail = %#v", iv.Detail)
	}

	val := waitMsg(t, conn.Subscribe(bus.T("power", "charger", "internal", "value")))
	cv, ok := val.Payload.(types.ChargerValue)
	if !ok {
		t.Fatalf("value payload type: %T", val.Payload)
	}
	if cv.Status != 0xA4 || cv.VBus != "adapter" || cv.Charge != "fast" || !cv.PG {
		t.Fatalf("value = %#v", cv)
	}

	st := waitMsg(t, conn.Subscribe(bus.T("power", "charger", "internal", "status")))
	cs, ok := st.Payload.(types.CapabilityStatus)
	if !ok || cs.Link != types.LinkUp {
		t.Fatalf("status = %#v", st.Payload)
	}
}

func TestService_NotConnected(t *testing.T) {
	f := newFakeCharger()
	f.setReg(0x0A, 0x00) // foreign/absent part

	_, conn := startService(t, f, Params{})

	st := waitMsg(t, conn.Subscribe(bus.T("power", "charger", "internal", "status")))
	cs, ok := st.Payload.(types.CapabilityStatus)
	if !ok || cs.Link != types.LinkDown || cs.Error != string(errcode.NotConnected) {
		t.Fatalf("status = %#v", st.Payload)
	}

	res := controlWait(t, conn, "read", nil)
	if res.OK || res.Error != errcode.NotConnected {
		t.Fatalf("read result = %#v", res)
	}
}

func TestService_ReadVerb(t *testing.T) {
	f := newFakeCharger()
	_, conn := startService(t, f, Params{})

	// Let the seed sample drain, then change the status byte and ask for a
	// fresh read.
	sub := conn.Subscribe(bus.T("power", "charger", "internal", "value"))
	waitMsg(t, sub)

	f.setReg(0x08, 0x54) // USB host, charge done, PG

	res := controlWait(t, conn, "read", nil)
	if !res.OK {
		t.Fatalf("read result = %#v", res)
	}
	cv := waitMsg(t, sub).Payload.(types.ChargerValue)
	if cv.Status != 0x54 || cv.VBus != "usb_host" || cv.Charge != "done" {
		t.Fatalf("value = %#v", cv)
	}
}

func TestService_FaultEvents(t *testing.T) {
	f := newFakeCharger()
	_, conn := startService(t, f, Params{})

	ev := conn.Subscribe(bus.T("power", "charger", "internal", "event"))

	// Latch watchdog + thermal charge fault, then force a sample.
	f.setReg(0x09, 0xA0)
	res := controlWait(t, conn, "read", nil)
	if !res.OK {
		t.Fatalf("read result = %#v", res)
	}

	tags := map[string]bool{}
	for i := 0; i < 2; i++ {
		m := waitMsg(t, ev)
		tag, ok := m.Payload.(string)
		if !ok {
			t.Fatalf("event payload type: %T", m.Payload)
		}
		tags[tag] = true
	}
	if !tags["watchdog_expired"] || !tags["charge_fault_thermal"] {
		t.Fatalf("event tags = %v", tags)
	}

	// The register cleared on read: the next sample emits nothing.
	if res := controlWait(t, conn, "read", nil); !res.OK {
		t.Fatalf("read result = %#v", res)
	}
	select {
	case m := <-ev.Channel():
		t.Fatalf("unexpected event: %#v", m.Payload)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestService_ShippingMode(t *testing.T) {
	f := newFakeCharger()
	_, conn := startService(t, f, Params{})

	// Unconfirmed requests are rejected.
	res := controlWait(t, conn, "shipping_mode", types.ShippingModeRequest{})
	if res.OK || res.Error != errcode.InvalidPayload {
		t.Fatalf("unconfirmed result = %#v", res)
	}

	res = controlWait(t, conn, "shipping_mode", types.ShippingModeRequest{Confirm: true})
	if !res.OK {
		t.Fatalf("confirmed result = %#v", res)
	}

	// Watchdog field cleared, BATFET opened.
	if got := f.reg(0x05); got&0x30 != 0 {
		t.Fatalf("REG05 = %#02x, watchdog still running", got)
	}
	if got := f.reg(0x07); got&0x20 == 0 {
		t.Fatalf("REG07 = %#02x, BATFET still closed", got)
	}

	// The capability goes down and further controls are refused.
	st := waitMsg(t, conn.Subscribe(bus.T("power", "charger", "internal", "status")))
	cs := st.Payload.(types.CapabilityStatus)
	if cs.Link != types.LinkDown || cs.Error != string(errcode.ShippingMode) {
		t.Fatalf("status = %#v", cs)
	}
	res = controlWait(t, conn, "read", nil)
	if res.OK || res.Error != errcode.ShippingMode {
		t.Fatalf("post-shipping read = %#v", res)
	}
}

func TestService_EnableAndWatchdogVerbs(t *testing.T) {
	f := newFakeCharger()
	f.setReg(0x01, 0x1B)
	_, conn := startService(t, f, Params{})

	res := controlWait(t, conn, "enable", types.ChargerEnable{On: false})
	if !res.OK {
		t.Fatalf("enable result = %#v", res)
	}
	if f.reg(0x01)&0x10 != 0 {
		t.Fatal("CHG_CONFIG still set")
	}

	res = controlWait(t, conn, "watchdog", types.WatchdogSet{Seconds: 80})
	if !res.OK {
		t.Fatalf("watchdog result = %#v", res)
	}
	if got := f.reg(0x05) & 0x30; got != 0x20 {
		t.Fatalf("WATCHDOG field = %#02x, want 0x20", got)
	}

	res = controlWait(t, conn, "bogus", nil)
	if res.OK || res.Error != errcode.Unsupported {
		t.Fatalf("bogus verb result = %#v", res)
	}
}

func TestWatchdogSetting(t *testing.T) {
	cases := []struct {
		secs uint16
		want bq24295.Watchdog
	}{
		{0, bq24295.WatchdogOff},
		{1, bq24295.Watchdog40s},
		{40, bq24295.Watchdog40s},
		{41, bq24295.Watchdog80s},
		{80, bq24295.Watchdog80s},
		{81, bq24295.Watchdog160s},
		{600, bq24295.Watchdog160s},
	}
	for _, c := range cases {
		if got := watchdogSetting(c.secs); got != c.want {
			t.Fatalf("watchdogSetting(%d) = %v, want %v", c.secs, got, c.want)
		}
	}
}

func TestPollFromConfig(t *testing.T) {
	if d, ok := pollFromConfig(map[string]any{"poll_interval_s": 2}); !ok || d != 2*time.Second {
		t.Fatalf("int form: %v %v", d, ok)
	}
	if d, ok := pollFromConfig(map[string]any{"poll_interval_s": 0.5}); !ok || d != 500*time.Millisecond {
		t.Fatalf("float form: %v %v", d, ok)
	}
	if _, ok := pollFromConfig(map[string]any{"poll_interval_s": "fast"}); ok {
		t.Fatal("string form accepted")
	}
	if _, ok := pollFromConfig("not a map"); ok {
		t.Fatal("non-map accepted")
	}
}
