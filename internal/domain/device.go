package domain

import "time"

// DeviceState is the pair the hub keeps per device: a numeric state and a
// string payload (selector level code, alert text, setpoint...).
type DeviceState struct {
	NValue int
	SValue string
}

// On reports whether the numeric state is non-zero.
func (s DeviceState) On() bool { return s.NValue != 0 }

// DeviceDef describes one of the controller's fixed output devices.
// Units are positional and never user-configurable.
type DeviceDef struct {
	Unit    int
	Name    string
	Default DeviceState
}

// Alarm zone output devices.
const (
	UnitAlarmControl       = 1 // selector: Not Ready|Disarmed|Perimetral|Night|Total
	UnitAlarmArmed         = 2 // surveillance armed indicator
	UnitAlarmPerimeter     = 3 // perimetral detection indicator
	UnitAlarmNightGroup    = 4 // group 1 (night zone) detection indicator
	UnitAlarmNormalGroup   = 5 // group 2 (rest of zone) detection indicator
	UnitAlarmIntrusion     = 6 // intrusion detected
	UnitAlarmSiren         = 7 // alarm active
	UnitAlarmLog           = 8 // alert device, carries user-facing text
	UnitAlarmRemoteControl = 9 // selector: Waiting|Disarmed|Total
)

// Thermostat output devices.
const (
	UnitThermoControl    = 1 // selector: Off|Auto|Forced
	UnitThermoComfort    = 2 // selector: Normal|Economy|Vacation
	UnitThermoPause      = 3 // pause indicator
	UnitThermoPresence   = 4 // presence confirmed indicator
	UnitThermoHeatReq    = 5 // heating request output
	UnitThermoTempFailed = 6 // temperature sensor failure flag
	UnitThermoLog        = 7 // alert device
)

// AlarmDeviceDefs returns the fixed alarm zone device set with defaults.
func AlarmDeviceDefs() []DeviceDef {
	return []DeviceDef{
		{UnitAlarmControl, "Control", DeviceState{0, ArmDisarmed.Code()}},
		{UnitAlarmArmed, "Surveillance Armed", DeviceState{}},
		{UnitAlarmPerimeter, "Perimetral Detection", DeviceState{}},
		{UnitAlarmNightGroup, "Groupe 1 Detection", DeviceState{}},
		{UnitAlarmNormalGroup, "Groupe 2 Detection", DeviceState{}},
		{UnitAlarmIntrusion, "Intrusion Detected", DeviceState{}},
		{UnitAlarmSiren, "Alarm", DeviceState{}},
		{UnitAlarmLog, "Log", DeviceState{}},
		{UnitAlarmRemoteControl, "Remote Control", DeviceState{0, RemoteWaiting.Code()}},
	}
}

// ThermostatDeviceDefs returns the fixed thermostat device set with defaults.
func ThermostatDeviceDefs() []DeviceDef {
	return []DeviceDef{
		{UnitThermoControl, "Thermostat Control", DeviceState{0, ModeAuto.Code()}},
		{UnitThermoComfort, "Comfort Mode", DeviceState{0, ProfileNormal.Code()}},
		{UnitThermoPause, "Pause", DeviceState{}},
		{UnitThermoPresence, "Presence", DeviceState{}},
		{UnitThermoHeatReq, "Heating Request", DeviceState{}},
		{UnitThermoTempFailed, "Temp. Sensor Failure", DeviceState{}},
		{UnitThermoLog, "Log", DeviceState{}},
	}
}

// HubDevice is a sensor or actuator as reported by the hub query API,
// already converted from the wire representation.
type HubDevice struct {
	Idx        int
	Name       string
	Status     string
	Temp       float64
	HasTemp    bool
	LastUpdate time.Time
	TimedOut   bool
}

// Active reports whether a switch-type device is currently on.
func (d HubDevice) Active() bool { return d.Status == "On" }
