package bq24295

import (
	"time"

	"tinygo.org/x/drivers"
)

// Watchdog selects the I2C watchdog timeout (REG05 WATCHDOG[1:0]).
type Watchdog uint8

const (
	WatchdogOff  Watchdog = 0b00
	Watchdog40s  Watchdog = 0b01
	Watchdog80s  Watchdog = 0b10
	Watchdog160s Watchdog = 0b11
)

// Config controls addressing and bus pacing. All fields are optional.
type Config struct {
	// Address defaults to AddressDefault if zero.
	Address uint16
	// SettleDelay is the pause between the register-pointer write and the
	// data read. The part needs a short gap when the pointer write and read
	// are issued as separate transactions. Default 1 ms.
	SettleDelay time.Duration
}

// DefaultConfig returns the configuration for a part on its fixed address.
func DefaultConfig() Config {
	return Config{Address: AddressDefault, SettleDelay: time.Millisecond}
}

// Device represents a BQ24295 instance on an I2C bus.
type Device struct {
	bus    drivers.I2C
	addr   uint16
	settle time.Duration

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [1]byte
}

// New constructs a Device with the supplied config. The I2C bus must already
// be configured. This function does not touch the hardware.
func New(bus drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = time.Millisecond
	}
	return &Device{bus: bus, addr: addr, settle: settle}
}

// Connected reads the vendor/part register and reports whether a BQ24295
// answered with its identification byte. A failed transaction reads as not
// connected.
func (d *Device) Connected() bool {
	id, err := d.readByte(regVendorPart)
	return err == nil && id == chipID
}

// Status reads the system status register. The raw byte is preserved; see
// the Status methods for field access.
func (d *Device) Status() (Status, error) {
	v, err := d.readByte(regSystemStatus)
	return Status(v), err
}

// Fault reads the latched fault register. The snapshot reflects faults since
// the previous read; the chip clears it on read.
func (d *Device) Fault() (Fault, error) {
	v, err := d.readByte(regNewFault)
	return Fault(v), err
}

// EnterShippingMode disconnects the battery by opening the BATFET. The I2C
// watchdog is stopped first so it cannot time out and undo the write. The
// register contents are not read back; once the FET opens the system rail
// may drop before a verify could run.
func (d *Device) EnterShippingMode() error {
	if err := d.updateBits(regChargeTermTimer, 0, tmrWatchdogMask); err != nil {
		return err
	}
	return d.updateBits(regMiscOperation, mscBatFetDisable, 0)
}

// SetWatchdog programs the I2C watchdog timeout.
func (d *Device) SetWatchdog(w Watchdog) error {
	set := byte(w) << tmrWatchdogShift
	return d.updateBits(regChargeTermTimer, set, tmrWatchdogMask&^set)
}

// DisableWatchdog stops the I2C watchdog (WATCHDOG = 00).
func (d *Device) DisableWatchdog() error { return d.SetWatchdog(WatchdogOff) }

// KickWatchdog resets the running watchdog timer. The bit self-clears.
func (d *Device) KickWatchdog() error {
	return d.updateBits(regPowerOn, pocWdtReset, 0)
}

// ResetRegisters restores the whole register file to its power-on defaults.
func (d *Device) ResetRegisters() error {
	return d.updateBits(regPowerOn, pocRegReset, 0)
}

// SetChargeEnable gates the charger (REG01 CHG_CONFIG).
func (d *Device) SetChargeEnable(on bool) error {
	if on {
		return d.updateBits(regPowerOn, pocChgConfig, 0)
	}
	return d.updateBits(regPowerOn, 0, pocChgConfig)
}

// SetOTG enables or disables the boost (OTG) output.
func (d *Device) SetOTG(on bool) error {
	if on {
		return d.updateBits(regPowerOn, pocOTGConfig, 0)
	}
	return d.updateBits(regPowerOn, 0, pocOTGConfig)
}

// SetHiZ places the input in high-impedance mode (REG00 EN_HIZ).
func (d *Device) SetHiZ(on bool) error {
	if on {
		return d.updateBits(regInputSource, inpEnHiZ, 0)
	}
	return d.updateBits(regInputSource, 0, inpEnHiZ)
}

// I2C byte operations.
//
// The pointer write and the data read are two separate transactions with a
// settle delay between them, not a single repeated-start transfer. Writes
// are one combined {register, data} transaction with no delay.

func (d *Device) readByte(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], nil); err != nil {
		return 0, err
	}
	time.Sleep(d.settle)
	if err := d.bus.Tx(d.addr, nil, d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) writeByte(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

// Generic read-modify-write for 8-bit registers with bitmasks.
func (d *Device) updateBits(reg byte, set, clear byte) error {
	current, err := d.readByte(reg)
	if err != nil {
		return err
	}
	return d.writeByte(reg, (current|set)&^clear)
}
