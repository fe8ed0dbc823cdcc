package domain

import "strconv"

// The hub encodes selector positions as numeric strings ("0", "10", "20"...)
// carried in the device sValue. Each enum below keeps an explicit mapping to
// that wire code so the state machines never compare raw strings.

// ArmLevel is the position of the alarm zone control selector.
type ArmLevel int

const (
	ArmNotReady  ArmLevel = 0
	ArmDisarmed  ArmLevel = 10
	ArmPerimeter ArmLevel = 20
	ArmNight     ArmLevel = 30
	ArmTotal     ArmLevel = 40
)

func (l ArmLevel) Code() string { return strconv.Itoa(int(l)) }

func (l ArmLevel) String() string {
	switch l {
	case ArmNotReady:
		return "not-ready"
	case ArmDisarmed:
		return "disarmed"
	case ArmPerimeter:
		return "armed-perimeter"
	case ArmNight:
		return "armed-night"
	case ArmTotal:
		return "armed-total"
	}
	return "unknown"
}

// Armed reports whether the level is one of the armed modes.
func (l ArmLevel) Armed() bool {
	return l == ArmPerimeter || l == ArmNight || l == ArmTotal
}

// ParseArmLevel maps a wire code back to an ArmLevel.
func ParseArmLevel(code string) (ArmLevel, bool) {
	switch code {
	case "0":
		return ArmNotReady, true
	case "10":
		return ArmDisarmed, true
	case "20":
		return ArmPerimeter, true
	case "30":
		return ArmNight, true
	case "40":
		return ArmTotal, true
	}
	return ArmNotReady, false
}

// RemoteLevel is the position of the remote control selector.
type RemoteLevel int

const (
	RemoteWaiting  RemoteLevel = 0
	RemoteDisarm   RemoteLevel = 10
	RemoteArmTotal RemoteLevel = 20
)

func (l RemoteLevel) Code() string { return strconv.Itoa(int(l)) }

// ParseRemoteLevel maps a wire code back to a RemoteLevel.
func ParseRemoteLevel(code string) (RemoteLevel, bool) {
	switch code {
	case "0":
		return RemoteWaiting, true
	case "10":
		return RemoteDisarm, true
	case "20":
		return RemoteArmTotal, true
	}
	return RemoteWaiting, false
}

// ThermostatMode is the position of the thermostat control selector.
type ThermostatMode int

const (
	ModeOff    ThermostatMode = 0
	ModeAuto   ThermostatMode = 10
	ModeForced ThermostatMode = 20
)

func (m ThermostatMode) Code() string { return strconv.Itoa(int(m)) }

func (m ThermostatMode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeAuto:
		return "auto"
	case ModeForced:
		return "forced"
	}
	return "unknown"
}

func ParseThermostatMode(code string) (ThermostatMode, bool) {
	switch code {
	case "0":
		return ModeOff, true
	case "10":
		return ModeAuto, true
	case "20":
		return ModeForced, true
	}
	return ModeOff, false
}

// ComfortProfile selects the reference setpoint source in Auto mode.
type ComfortProfile int

const (
	ProfileNormal   ComfortProfile = 0
	ProfileEconomy  ComfortProfile = 10
	ProfileVacation ComfortProfile = 20
)

func (p ComfortProfile) Code() string { return strconv.Itoa(int(p)) }

func (p ComfortProfile) String() string {
	switch p {
	case ProfileNormal:
		return "normal"
	case ProfileEconomy:
		return "economy"
	case ProfileVacation:
		return "vacation"
	}
	return "unknown"
}

func ParseComfortProfile(code string) (ComfortProfile, bool) {
	switch code {
	case "0":
		return ProfileNormal, true
	case "10":
		return ProfileEconomy, true
	case "20":
		return ProfileVacation, true
	}
	return ProfileNormal, false
}

// AlertLevel is the nValue of the log/alert device.
type AlertLevel int

const (
	AlertGrey   AlertLevel = 0
	AlertGreen  AlertLevel = 1
	AlertYellow AlertLevel = 2
	AlertOrange AlertLevel = 3
	AlertRed    AlertLevel = 4
)
