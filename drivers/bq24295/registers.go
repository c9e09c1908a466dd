// Package bq24295 provides constants for register addresses and bitfields
// used in the operation of the BQ24295 single-cell battery charger.
package bq24295

const (
	// 7-bit I2C address (fixed by the part).
	AddressDefault = 0x6B

	// Vendor/part register value for a BQ24295.
	chipID = 0xC0

	// --- Register sub-addresses (8-bit registers) ---

	regInputSource     = 0x00 // R/W: EN_HIZ, VINDPM[3:0], IINLIM[2:0]
	regPowerOn         = 0x01 // R/W: reset, watchdog kick, OTG/charge enable, SYS_MIN
	regChargeCurrent   = 0x02 // R/W: ICHG[5:0], BCOLD, FORCE_20PCT
	regPrechargeTerm   = 0x03 // R/W: IPRECHG[3:0], ITERM[3:0]
	regChargeVoltage   = 0x04 // R/W: VREG[5:0], BATLOWV, VRECHG
	regChargeTermTimer = 0x05 // R/W: EN_TERM, WATCHDOG[1:0], EN_TIMER, CHG_TIMER[1:0]
	regBoostThermal    = 0x06 // R/W: BOOSTV[3:0], BHOT[1:0], TREG[1:0]
	regMiscOperation   = 0x07 // R/W: DPDM_EN, TMR2X_EN, BATFET_Disable, INT_MASK
	regSystemStatus    = 0x08 // R:   VBUS_STAT, CHRG_STAT, DPM, PG, THERM, VSYS
	regNewFault        = 0x09 // R:   latched fault snapshot
	regVendorPart      = 0x0A // R:   part number / revision

	// --- REG00 input source control ---
	inpEnHiZ = 1 << 7

	// --- REG01 power-on configuration ---
	pocRegReset   = 1 << 7
	pocWdtReset   = 1 << 6 // self-clearing
	pocOTGConfig  = 1 << 5
	pocChgConfig  = 1 << 4
	pocSysMinMask = 0x0E

	// --- REG05 charge termination / timer control ---
	tmrEnTerm        = 1 << 7
	tmrWatchdogMask  = 0x30 // WATCHDOG[1:0]
	tmrWatchdogShift = 4
	tmrEnTimer       = 1 << 3
	tmrChgTimerMask  = 0x06

	// --- REG07 misc operation control ---
	mscDpdmEn        = 1 << 7
	mscTmr2xEn       = 1 << 6
	mscBatFetDisable = 1 << 5 // opens BATFET: shipping mode
	mscIntMask       = 0x03

	// --- REG08 system status ---
	sysVBusMask    = 0xC0
	sysVBusShift   = 6
	sysChargeMask  = 0x30
	sysChargeShift = 4
	sysDpmStat     = 1 << 3
	sysPGStat      = 1 << 2
	sysThermStat   = 1 << 1
	sysVsysStat    = 1 << 0

	// --- REG09 new fault ---
	fltWatchdog    = 1 << 7
	fltBoost       = 1 << 6
	fltChargeMask  = 0x30
	fltChargeShift = 4
	fltBattery     = 1 << 3
	fltNTCMask     = 0x03
)
