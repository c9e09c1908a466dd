// Package power owns the battery charger and exposes it on the message bus.
//
// One goroutine owns the driver. Telemetry is published retained on
// power/charger/<name>/value at a fixed cadence; controls arrive on
// power/charger/<name>/control/<verb> and replies (when requested) carry a
// Result. Fault bits are re-published as tagged events because the chip
// clears its fault register on read: whoever reads it consumes the snapshot.
package power

import (
	"context"
	"time"

	"powercode-go/bus"
	"powercode-go/drivers/bq24295"
	"powercode-go/errcode"
	"powercode-go/types"
	"powercode-go/x/mathx"
)

const (
	defaultName = "internal"
	defaultPoll = 5 * time.Second

	minPoll = 1 * time.Second
	maxPoll = 5 * time.Minute
)

// Result is the reply payload for control verbs.
type Result struct {
	OK    bool         `json:"ok"`
	Error errcode.Code `json:"error,omitempty"`
}

// Params defines wiring and behaviour for one charger instance.
type Params struct {
	Name         string // capability name; default "internal"
	Bus          string // bus label for the info payload, e.g. "i2c4"
	PollInterval time.Duration
}

// Service is the single-goroutine charger worker.
type Service struct {
	dev    *bq24295.Device
	params Params

	// Owned by the worker only:
	connected bool
	shipping  bool
	poll      time.Duration
}

// New wraps an already-constructed driver. The service does not touch the
// hardware until Start.
func New(dev *bq24295.Device, p Params) *Service {
	if p.Name == "" {
		p.Name = defaultName
	}
	if p.PollInterval <= 0 {
		p.PollInterval = defaultPoll
	}
	return &Service{dev: dev, params: p, poll: p.PollInterval}
}

// ---- Topics ----

func (s *Service) tValue() bus.Topic {
	return bus.T("power", string(types.KindCharger), s.params.Name, "value")
}
func (s *Service) tInfo() bus.Topic {
	return bus.T("power", string(types.KindCharger), s.params.Name, "info")
}
func (s *Service) tStatus() bus.Topic {
	return bus.T("power", string(types.KindCharger), s.params.Name, "status")
}
func (s *Service) tEvent() bus.Topic {
	return bus.T("power", string(types.KindCharger), s.params.Name, "event")
}
func (s *Service) tControl() bus.Topic {
	return bus.T("power", string(types.KindCharger), s.params.Name, "control", "+")
}

var topicConfigPower = bus.T("config", "power")

// Start launches the worker goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	ctl := conn.Subscribe(s.tControl())
	defer conn.Unsubscribe(ctl)
	cfg := conn.Subscribe(topicConfigPower)
	defer conn.Unsubscribe(cfg)

	s.identify(conn)

	tick := time.NewTicker(s.poll)
	defer tick.Stop()

	// Seed retained value before the first tick.
	if s.connected {
		s.sample(conn)
	}

	for {
		select {
		case <-ctx.Done():
			s.publishStatus(conn, types.LinkDown, errcode.OK)
			return

		case <-tick.C:
			if s.shipping {
				continue
			}
			if !s.connected {
				s.identify(conn)
			}
			if s.connected {
				s.sample(conn)
			}

		case msg := <-ctl.Channel():
			s.handleControl(conn, msg)

		case msg := <-cfg.Channel():
			if d, ok := pollFromConfig(msg.Payload); ok {
				s.poll = mathx.Clamp(d, minPoll, maxPoll)
				tick.Reset(s.poll)
			}
		}
	}
}

// identify probes the chip ID and publishes retained info plus link state.
func (s *Service) identify(conn *bus.Connection) {
	s.connected = s.dev.Connected()
	if !s.connected {
		s.publishStatus(conn, types.LinkDown, errcode.NotConnected)
		return
	}
	info := types.Info{
		SchemaVersion: 1,
		Driver:        "bq24295",
		Detail: types.ChargerInfo{
			Part: "bq24295",
			Bus:  s.params.Bus,
			Addr: bq24295.AddressDefault,
		},
	}
	conn.Publish(conn.NewMessage(s.tInfo(), info, true))
	s.publishStatus(conn, types.LinkUp, errcode.OK)
}

// sample reads status and fault and publishes a retained snapshot.
func (s *Service) sample(conn *bus.Connection) {
	st, err := s.dev.Status()
	if err != nil {
		s.degraded(conn, err)
		return
	}
	flt, err := s.dev.Fault()
	if err != nil {
		s.degraded(conn, err)
		return
	}

	val := types.ChargerValue{
		Status: byte(st),
		Fault:  byte(flt),
		VBus:   st.VBus().String(),
		Charge: st.Charge().String(),
		PG:     st.PowerGood(),
	}
	conn.Publish(conn.NewMessage(s.tValue(), val, true))

	s.emitFaults(conn, flt)
}

// emitFaults turns a non-zero fault snapshot into tagged events. The
// register is latched and clear-on-read, so each set bit is one occurrence.
func (s *Service) emitFaults(conn *bus.Connection, flt bq24295.Fault) {
	if !flt.Any() {
		return
	}
	it := types.NewBitIter(types.FaultBits(flt), types.FaultTable[:])
	for {
		tag, ok := it.Next()
		if !ok {
			break
		}
		conn.Publish(conn.NewMessage(s.tEvent(), tag, false))
	}
	if cf := flt.Charge(); cf != bq24295.ChargeFaultNone {
		conn.Publish(conn.NewMessage(s.tEvent(), "charge_fault_"+cf.String(), false))
	}
	if nf := flt.NTC(); nf != bq24295.NTCFaultNone {
		conn.Publish(conn.NewMessage(s.tEvent(), "ntc_"+nf.String(), false))
	}
}

func (s *Service) handleControl(conn *bus.Connection, msg *bus.Message) {
	topic := msg.Topic
	if len(topic) == 0 {
		return
	}
	verb := topic[len(topic)-1].String()

	reply := func(res Result) {
		conn.Reply(msg, res, false)
	}

	if s.shipping {
		reply(Result{OK: false, Error: errcode.ShippingMode})
		return
	}

	switch verb {
	case "read":
		if !s.connected {
			reply(Result{OK: false, Error: errcode.NotConnected})
			return
		}
		s.sample(conn)
		reply(Result{OK: true})

	case "shipping_mode":
		req, ok := shippingPayload(msg.Payload)
		if !ok || !req.Confirm {
			reply(Result{OK: false, Error: errcode.InvalidPayload})
			return
		}
		if err := s.dev.EnterShippingMode(); err != nil {
			reply(Result{OK: false, Error: errcode.MapDriverErr(err)})
			return
		}
		// Terminal: BATFET is open, the battery rail is gone. Stop
		// polling and flag the capability down.
		s.shipping = true
		conn.Publish(conn.NewMessage(s.tEvent(), "shipping_mode", false))
		s.publishStatus(conn, types.LinkDown, errcode.ShippingMode)
		reply(Result{OK: true})

	case "enable":
		v, ok := enablePayload(msg.Payload)
		if !ok {
			reply(Result{OK: false, Error: errcode.InvalidPayload})
			return
		}
		if err := s.dev.SetChargeEnable(v.On); err != nil {
			reply(Result{OK: false, Error: errcode.MapDriverErr(err)})
			return
		}
		s.sample(conn)
		reply(Result{OK: true})

	case "watchdog":
		v, ok := watchdogPayload(msg.Payload)
		if !ok {
			reply(Result{OK: false, Error: errcode.InvalidPayload})
			return
		}
		if err := s.dev.SetWatchdog(watchdogSetting(v.Seconds)); err != nil {
			reply(Result{OK: false, Error: errcode.MapDriverErr(err)})
			return
		}
		reply(Result{OK: true})

	default:
		reply(Result{OK: false, Error: errcode.Unsupported})
	}
}

func (s *Service) degraded(conn *bus.Connection, err error) {
	s.publishStatus(conn, types.LinkDegraded, errcode.MapDriverErr(err))
}

func (s *Service) publishStatus(conn *bus.Connection, link types.Link, code errcode.Code) {
	st := types.CapabilityStatus{Link: link, TS: time.Now().UnixNano()}
	if code != errcode.OK {
		st.Error = string(code)
	}
	conn.Publish(conn.NewMessage(s.tStatus(), st, true))
}

// ---- Payload coercion ----
//
// Control payloads may arrive as typed structs (in-process callers) or as
// generic maps (decoded JSON).

func shippingPayload(p any) (types.ShippingModeRequest, bool) {
	switch x := p.(type) {
	case types.ShippingModeRequest:
		return x, true
	case *types.ShippingModeRequest:
		if x == nil {
			return types.ShippingModeRequest{}, false
		}
		return *x, true
	case map[string]any:
		c, ok := x["confirm"].(bool)
		return types.ShippingModeRequest{Confirm: c && ok}, ok
	default:
		return types.ShippingModeRequest{}, false
	}
}

func enablePayload(p any) (types.ChargerEnable, bool) {
	switch x := p.(type) {
	case types.ChargerEnable:
		return x, true
	case *types.ChargerEnable:
		if x == nil {
			return types.ChargerEnable{}, false
		}
		return *x, true
	case map[string]any:
		on, ok := x["on"].(bool)
		return types.ChargerEnable{On: on}, ok
	default:
		return types.ChargerEnable{}, false
	}
}

func watchdogPayload(p any) (types.WatchdogSet, bool) {
	switch x := p.(type) {
	case types.WatchdogSet:
		return x, true
	case *types.WatchdogSet:
		if x == nil {
			return types.WatchdogSet{}, false
		}
		return *x, true
	case map[string]any:
		switch v := x["seconds"].(type) {
		case int:
			if v < 0 {
				return types.WatchdogSet{}, false
			}
			return types.WatchdogSet{Seconds: uint16(v)}, true
		case float64:
			if v < 0 {
				return types.WatchdogSet{}, false
			}
			return types.WatchdogSet{Seconds: uint16(v)}, true
		default:
			return types.WatchdogSet{}, false
		}
	default:
		return types.WatchdogSet{}, false
	}
}

// watchdogSetting maps seconds to the nearest supported timeout at or above.
func watchdogSetting(secs uint16) bq24295.Watchdog {
	switch {
	case secs == 0:
		return bq24295.WatchdogOff
	case secs <= 40:
		return bq24295.Watchdog40s
	case secs <= 80:
		return bq24295.Watchdog80s
	default:
		return bq24295.Watchdog160s
	}
}

// pollFromConfig extracts a poll interval from a config payload.
func pollFromConfig(p any) (time.Duration, bool) {
	m, ok := p.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m["poll_interval_s"].(type) {
	case int:
		return time.Duration(v) * time.Second, v > 0
	case float64:
		return time.Duration(v * float64(time.Second)), v > 0
	default:
		return 0, false
	}
}
