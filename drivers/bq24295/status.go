package bq24295

// Status is the raw system status byte (REG08). Field accessors decode it;
// the byte itself is what went over the wire.
type Status byte

// VBusStatus is the decoded VBUS_STAT field.
type VBusStatus uint8

const (
	VBusUnknown VBusStatus = 0b00
	VBusUSBHost VBusStatus = 0b01
	VBusAdapter VBusStatus = 0b10
	VBusOTG     VBusStatus = 0b11
)

func (v VBusStatus) String() string {
	switch v {
	case VBusUSBHost:
		return "usb_host"
	case VBusAdapter:
		return "adapter"
	case VBusOTG:
		return "otg"
	default:
		return "unknown"
	}
}

// ChargeState is the decoded CHRG_STAT field.
type ChargeState uint8

const (
	ChargeNone ChargeState = 0b00
	ChargePre  ChargeState = 0b01
	ChargeFast ChargeState = 0b10
	ChargeDone ChargeState = 0b11
)

func (c ChargeState) String() string {
	switch c {
	case ChargePre:
		return "precharge"
	case ChargeFast:
		return "fast"
	case ChargeDone:
		return "done"
	default:
		return "not_charging"
	}
}

// Charging reports whether a charge cycle is in progress.
func (c ChargeState) Charging() bool { return c == ChargePre || c == ChargeFast }

func (s Status) VBus() VBusStatus    { return VBusStatus((byte(s) & sysVBusMask) >> sysVBusShift) }
func (s Status) Charge() ChargeState { return ChargeState((byte(s) & sysChargeMask) >> sysChargeShift) }
func (s Status) InDPM() bool         { return byte(s)&sysDpmStat != 0 }
func (s Status) PowerGood() bool     { return byte(s)&sysPGStat != 0 }
func (s Status) InThermalRegulation() bool { return byte(s)&sysThermStat != 0 }
func (s Status) VsysMin() bool       { return byte(s)&sysVsysStat != 0 }

// Fault is the raw latched fault byte (REG09).
type Fault byte

// ChargeFault is the decoded CHRG_FAULT field.
type ChargeFault uint8

const (
	ChargeFaultNone    ChargeFault = 0b00
	ChargeFaultInput   ChargeFault = 0b01 // OVP or bad source
	ChargeFaultThermal ChargeFault = 0b10
	ChargeFaultTimer   ChargeFault = 0b11 // safety timer expired
)

func (c ChargeFault) String() string {
	switch c {
	case ChargeFaultInput:
		return "input"
	case ChargeFaultThermal:
		return "thermal"
	case ChargeFaultTimer:
		return "timer"
	default:
		return "none"
	}
}

// NTCFault is the decoded NTC_FAULT field.
type NTCFault uint8

const (
	NTCFaultNone NTCFault = 0b00
	NTCFaultHot  NTCFault = 0b01
	NTCFaultCold NTCFault = 0b10
)

func (n NTCFault) String() string {
	switch n {
	case NTCFaultHot:
		return "hot"
	case NTCFaultCold:
		return "cold"
	default:
		return "none"
	}
}

func (f Fault) Watchdog() bool      { return byte(f)&fltWatchdog != 0 }
func (f Fault) Boost() bool         { return byte(f)&fltBoost != 0 }
func (f Fault) Charge() ChargeFault { return ChargeFault((byte(f) & fltChargeMask) >> fltChargeShift) }
func (f Fault) Battery() bool       { return byte(f)&fltBattery != 0 }
func (f Fault) NTC() NTCFault       { return NTCFault(byte(f) & fltNTCMask) }

// Any reports whether any fault bit is set.
func (f Fault) Any() bool { return f != 0 }
