package types

// ------------------------
// Charger (bq24295)
// ------------------------

type ChargerInfo struct {
	Part string `json:"part"` // e.g. "bq24295"
	Bus  string `json:"bus"`
	Addr uint16 `json:"addr"`
}

// Retained value: power/charger/<name>/value
type ChargerValue struct {
	Status byte   `json:"status"` // raw REG08 byte
	Fault  byte   `json:"fault"`  // raw REG09 byte
	VBus   string `json:"vbus"`   // decoded VBUS_STAT
	Charge string `json:"charge"` // decoded CHRG_STAT
	PG     bool   `json:"pg"`     // power-good
}

// Controls
type ChargerEnable struct{ On bool }      // verb: "enable"
type WatchdogSet struct{ Seconds uint16 } // verb: "watchdog"; 0 disables

// ShippingModeRequest must carry Confirm=true; shipping mode cuts the
// battery and is not reversible over the bus.
type ShippingModeRequest struct{ Confirm bool }

// ------------------------
// Raw status/fault bits (REG08 / REG09)
// ------------------------

// StatusBits are the single-bit flags of the system status byte. The two
// 2-bit fields (VBUS_STAT, CHRG_STAT) are decoded by the driver, not here.
type StatusBits uint8

const (
	StatusDPM     StatusBits = 1 << 3
	StatusPG      StatusBits = 1 << 2
	StatusThermal StatusBits = 1 << 1
	StatusVsysMin StatusBits = 1 << 0
)

// FaultBits are the single-bit flags of the latched fault byte.
type FaultBits uint8

const (
	FaultWatchdog FaultBits = 1 << 7
	FaultBoost    FaultBits = 1 << 6
	FaultBattery  FaultBits = 1 << 3
)

// Generic pairing of a bit value with a printable name.
// T is a uint8-like type (e.g., StatusBits, FaultBits).
type BitName[T ~uint8] struct {
	Bit  T
	Name string
}

// BitIter is a zero-alloc iterator over set bits in a value, filtered by a
// table. Caller advances with Next(); no callbacks, no closures.
type BitIter[T ~uint8] struct {
	v     uint8
	i     int
	table []BitName[T]
}

// NewBitIter constructs an iterator over set bits present in v that also exist in table.
func NewBitIter[T ~uint8](v T, table []BitName[T]) BitIter[T] {
	return BitIter[T]{v: uint8(v), i: 0, table: table}
}

// Next returns the next SET bit: (name, ok). ok=false when done.
func (it *BitIter[T]) Next() (string, bool) {
	for it.i < len(it.table) {
		e := it.table[it.i]
		it.i++
		if (it.v & uint8(e.Bit)) != 0 {
			return e.Name, true
		}
	}
	return "", false
}

// Reset allows reusing the iterator.
func (it *BitIter[T]) Reset() { it.i = 0 }

// -----------------------------
// Display tables for bitfields
// -----------------------------

// StatusBits display (ordering is cosmetic).
var StatusTable = [...]BitName[StatusBits]{
	{StatusDPM, "dpm_active"},
	{StatusPG, "power_good"},
	{StatusThermal, "thermal_regulation"},
	{StatusVsysMin, "vsys_min"},
}

// FaultBits display.
var FaultTable = [...]BitName[FaultBits]{
	{FaultWatchdog, "watchdog_expired"},
	{FaultBoost, "boost_fault"},
	{FaultBattery, "battery_ovp"},
}
