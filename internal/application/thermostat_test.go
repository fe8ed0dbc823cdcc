package application_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"casa-control/internal/application"
	"casa-control/internal/domain"
)

type valveWrite struct {
	idx   int
	value float64
}

type fakeValves struct {
	setpoints map[int]float64
	writes    []valveWrite
	readErr   error
}

func (f *fakeValves) DeviceSetpoint(_ context.Context, idx int) (float64, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	v, ok := f.setpoints[idx]
	if !ok {
		return 0, errors.New("unknown device")
	}
	return v, nil
}

func (f *fakeValves) SetSetpoint(_ context.Context, idx int, value float64) error {
	f.writes = append(f.writes, valveWrite{idx, value})
	f.setpoints[idx] = value
	return nil
}

const (
	normalSetpointIdx  = 201
	economySetpointIdx = 202
	valveIdx           = 301
	insideSensorIdx    = 101
	valveSensorIdx     = 102
	presenceSensorIdx  = 103
	pauseSensorIdx     = 104
)

type thermoHarness struct {
	ctrl   *application.ThermostatController
	hub    *fakeHub
	valves *fakeValves
	store  *fakeStore
	notify *fakeNotifier
	start  time.Time
}

func defaultThermostatSettings() application.ThermostatSettings {
	return application.ThermostatSettings{
		PauseOn:        time.Minute,
		PauseOff:       time.Minute,
		ForcedDuration: 60 * time.Minute,
		PresenceOn:     2 * time.Minute,
		PresenceOff:    45 * time.Minute,
		ReducDay:       10,
		ReducNight:     20,

		InsideTemp: []int{insideSensorIdx},
		ValveTemp:  []int{valveSensorIdx},
		Presence:   []int{presenceSensorIdx},
		Pause:      []int{pauseSensorIdx},
		Valves:     []int{valveIdx},

		NormalSetpointIdx:  normalSetpointIdx,
		EconomySetpointIdx: economySetpointIdx,
	}
}

func newThermoHarness(set application.ThermostatSettings) *thermoHarness {
	// midday, so the day reduction applies
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hub := &fakeHub{
		lights: []domain.HubDevice{
			{Idx: presenceSensorIdx, Name: "Presence PIR", Status: "Off"},
			{Idx: pauseSensorIdx, Name: "Window Contact", Status: "Off"},
		},
		temps: []domain.HubDevice{
			{Idx: insideSensorIdx, Name: "Living Temp", Temp: 19.5, HasTemp: true, LastUpdate: start},
			{Idx: valveSensorIdx, Name: "TRV Temp", Temp: 21.5, HasTemp: true, LastUpdate: start},
		},
	}
	valves := &fakeValves{setpoints: map[int]float64{
		normalSetpointIdx:  21.0,
		economySetpointIdx: 17.0,
		valveIdx:           20.5,
	}}
	store := newFakeStore(domain.ThermostatDeviceDefs())
	notify := &fakeNotifier{}
	agg := application.NewAggregator(hub, set.Groups(), discard())
	ctrl := application.NewThermostatController(agg, store, valves, notify, set, discard(), start)
	return &thermoHarness{ctrl: ctrl, hub: hub, valves: valves, store: store, notify: notify, start: start}
}

func (h *thermoHarness) sensor(idx int, on bool) {
	for i := range h.hub.lights {
		if h.hub.lights[i].Idx == idx {
			if on {
				h.hub.lights[i].Status = "On"
			} else {
				h.hub.lights[i].Status = "Off"
			}
		}
	}
}

func (h *thermoHarness) freshTemps(at time.Time) {
	for i := range h.hub.temps {
		h.hub.temps[i].LastUpdate = at
	}
}

func (h *thermoHarness) tick(after time.Duration) {
	now := h.start.Add(after)
	h.freshTemps(now)
	h.ctrl.Tick(context.Background(), now)
}

func TestThermostat_EffectiveSetpointWithReduction(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	// presence unconfirmed: normal setpoint minus day reduction / 10
	h.tick(3 * time.Minute)
	snap := h.ctrl.Snapshot()
	if snap.EffectiveSetpoint != 20.0 {
		t.Errorf("effective setpoint without presence: got %v, want 20", snap.EffectiveSetpoint)
	}

	// confirm presence: raw active, then hold for the presence-on delay
	h.sensor(presenceSensorIdx, true)
	h.tick(4 * time.Minute)
	h.tick(7 * time.Minute)
	snap = h.ctrl.Snapshot()
	if !snap.Presence {
		t.Fatal("presence should be confirmed after the presence-on delay")
	}
	if snap.EffectiveSetpoint != 21.0 {
		t.Errorf("effective setpoint with presence: got %v, want 21", snap.EffectiveSetpoint)
	}
}

func TestThermostat_NightReductionApplies(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	// 23:00 local falls in the night band: reduction is 20 tenths
	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	h.freshTemps(night)
	h.ctrl.Tick(context.Background(), night)

	snap := h.ctrl.Snapshot()
	if snap.EffectiveSetpoint != 19.0 {
		t.Errorf("night effective setpoint: got %v, want 19", snap.EffectiveSetpoint)
	}
}

func TestThermostat_ValveCommandCorrection(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.tick(3 * time.Minute)
	snap := h.ctrl.Snapshot()

	// effective 20, correction = 19.5 - 21.5 = -2 => ceil(20 + 2) = 22
	if snap.ValveCommand != 22 {
		t.Errorf("valve command: got %v, want 22", snap.ValveCommand)
	}
	if len(h.valves.writes) != 1 || h.valves.writes[0] != (valveWrite{valveIdx, 22}) {
		t.Errorf("expected one valve write of 22, got %+v", h.valves.writes)
	}
}

func TestThermostat_SetpointWriteTolerance(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	// make the computed command exactly 21: presence confirmed, no
	// correction (inside == valve temp)
	h.hub.temps[0].Temp = 20.0
	h.hub.temps[1].Temp = 20.0
	h.sensor(presenceSensorIdx, true)
	h.tick(time.Minute)
	h.tick(4 * time.Minute)

	h.valves.setpoints[valveIdx] = 21.03
	h.valves.writes = nil
	h.tick(6 * time.Minute)
	snap := h.ctrl.Snapshot()
	if snap.ValveCommand != 21 {
		t.Fatalf("setup: valve command should be 21, got %v", snap.ValveCommand)
	}
	if len(h.valves.writes) != 0 {
		t.Errorf("a 0.03 delta is within tolerance, no write expected: %+v", h.valves.writes)
	}

	h.valves.setpoints[valveIdx] = 20.5
	h.tick(8 * time.Minute)
	if len(h.valves.writes) != 1 {
		t.Errorf("a 0.5 delta must trigger a write, got %+v", h.valves.writes)
	}
}

func TestThermostat_DispatchIsRateLimited(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.tick(3 * time.Minute)
	if len(h.valves.writes) != 1 {
		t.Fatalf("setup: expected the first dispatch, got %+v", h.valves.writes)
	}

	// a tick 10s later falls inside the jittered interval
	h.valves.setpoints[valveIdx] = 5
	h.tick(3*time.Minute + 10*time.Second)
	if len(h.valves.writes) != 1 {
		t.Errorf("no write may happen before the dispatch interval elapses")
	}

	// 95s later the interval (60-90s) has elapsed for sure
	h.tick(3*time.Minute + 95*time.Second)
	if len(h.valves.writes) != 2 {
		t.Errorf("expected a second write after the dispatch interval, got %+v", h.valves.writes)
	}
}

func TestThermostat_StartupGraceBlocksDispatch(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.tick(30 * time.Second)
	if len(h.valves.writes) != 0 {
		t.Errorf("no valve write may happen during the startup grace, got %+v", h.valves.writes)
	}
}

func TestThermostat_OffPinsFrostGuard(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.ctrl.OnControlCommand(context.Background(), int(domain.ModeOff), h.start)
	h.tick(3 * time.Minute)

	snap := h.ctrl.Snapshot()
	if snap.ValveCommand != 7 {
		t.Errorf("Off mode valve command: got %v, want 7", snap.ValveCommand)
	}
	if snap.HeatRequested {
		t.Error("heating request must be cleared in Off mode")
	}
}

func TestThermostat_ForcedPinsThenReverts(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.ctrl.OnControlCommand(context.Background(), int(domain.ModeForced), h.start.Add(3*time.Minute))
	h.tick(4 * time.Minute)

	snap := h.ctrl.Snapshot()
	if snap.Mode != "forced" || snap.ValveCommand != 28 {
		t.Fatalf("forced mode should pin the valve at 28, got %+v", snap)
	}
	if snap.HeatRequested {
		t.Error("heating request must not be asserted in forced mode")
	}

	// still pinned just before expiry
	h.tick(62 * time.Minute)
	if snap := h.ctrl.Snapshot(); snap.ValveCommand != 28 {
		t.Errorf("valve should stay pinned for the full forced duration, got %v", snap.ValveCommand)
	}

	// 60 minutes after the command it reverts to auto and recomputes
	h.tick(64 * time.Minute)
	snap = h.ctrl.Snapshot()
	if snap.Mode != "auto" {
		t.Errorf("mode after forced expiry: got %q, want auto", snap.Mode)
	}
	if snap.ValveCommand != 22 {
		t.Errorf("valve command after revert: got %v, want 22", snap.ValveCommand)
	}
}

func TestThermostat_DegradedModeUsesValveProbes(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	// inside sensor times out, valve probe stays healthy
	h.hub.temps[0].TimedOut = true
	h.tick(3 * time.Minute)

	snap := h.ctrl.Snapshot()
	if !snap.Degraded {
		t.Fatal("controller should report degraded mode")
	}
	if snap.SensorFailed {
		t.Error("degraded mode is not a failure state")
	}
	if snap.InsideTemp != 21.5 {
		t.Errorf("inside temp should substitute the valve mean: got %v, want 21.5", snap.InsideTemp)
	}
	// valve mean 21.5 < effective would request heat; here 21.5 >= 20 so no
	// request, but heating must not be force-disabled
	if h.store.Get(domain.UnitThermoTempFailed).On() {
		t.Error("failure flag must stay clear in degraded mode")
	}
}

func TestThermostat_SensorFailureDisablesHeating(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.tick(3 * time.Minute)

	h.hub.temps[0].TimedOut = true
	h.hub.temps[1].TimedOut = true
	h.tick(5 * time.Minute)

	snap := h.ctrl.Snapshot()
	if !snap.SensorFailed {
		t.Fatal("controller should enter the failure state with no temperature source")
	}
	if snap.HeatRequested {
		t.Error("heating request must be off in the failure state")
	}
	if !h.store.Get(domain.UnitThermoTempFailed).On() {
		t.Error("failure flag device should be on")
	}

	// recovery clears the failure automatically on the next valid reading
	h.hub.temps[0].TimedOut = false
	h.hub.temps[1].TimedOut = false
	h.tick(25 * time.Minute) // past the sensor exclusion cooldown
	snap = h.ctrl.Snapshot()
	if snap.SensorFailed {
		t.Error("failure state should clear on the next valid reading")
	}
	if h.store.Get(domain.UnitThermoTempFailed).On() {
		t.Error("failure flag device should clear")
	}
}

func TestThermostat_PauseForcesFrostGuard(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.sensor(pauseSensorIdx, true)
	h.tick(3 * time.Minute)
	if snap := h.ctrl.Snapshot(); snap.Paused {
		t.Fatal("pause must wait for the pause-on delay")
	}

	h.tick(5 * time.Minute)
	snap := h.ctrl.Snapshot()
	if !snap.Paused {
		t.Fatal("pause should engage after the pause-on delay")
	}
	if snap.ValveCommand != 7 {
		t.Errorf("paused valve command: got %v, want 7", snap.ValveCommand)
	}

	h.sensor(pauseSensorIdx, false)
	h.tick(6 * time.Minute)
	h.tick(8 * time.Minute)
	if snap := h.ctrl.Snapshot(); snap.Paused {
		t.Error("pause should release after the pause-off delay")
	}
}

func TestThermostat_HeatRequestFollowsSetpoint(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	// inside 19.5 < effective 20: request heat
	h.tick(3 * time.Minute)
	if !h.store.Get(domain.UnitThermoHeatReq).On() {
		t.Error("heating request should be on while below setpoint")
	}

	h.hub.temps[0].Temp = 21.0
	h.tick(5 * time.Minute)
	if h.store.Get(domain.UnitThermoHeatReq).On() {
		t.Error("heating request should drop once above setpoint")
	}
}

func TestThermostat_EconomyAndVacationProfiles(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.ctrl.OnComfortCommand(context.Background(), int(domain.ProfileEconomy), h.start)
	h.tick(3 * time.Minute)
	if snap := h.ctrl.Snapshot(); snap.EffectiveSetpoint != 17.0 {
		t.Errorf("economy setpoint: got %v, want 17", snap.EffectiveSetpoint)
	}

	h.ctrl.OnComfortCommand(context.Background(), int(domain.ProfileVacation), h.start)
	h.tick(5 * time.Minute)
	if snap := h.ctrl.Snapshot(); snap.EffectiveSetpoint != 10.0 {
		t.Errorf("vacation setpoint: got %v, want 10", snap.EffectiveSetpoint)
	}
}

func TestThermostat_UnknownCommandLevelsIgnored(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	controlBefore := h.store.Get(domain.UnitThermoControl)
	h.ctrl.OnControlCommand(context.Background(), 15, h.start)
	if got := h.store.Get(domain.UnitThermoControl); got != controlBefore {
		t.Errorf("an unknown mode level must not touch the selector, got %+v", got)
	}

	comfortBefore := h.store.Get(domain.UnitThermoComfort)
	h.ctrl.OnComfortCommand(context.Background(), 7, h.start)
	if got := h.store.Get(domain.UnitThermoComfort); got != comfortBefore {
		t.Errorf("an unknown profile level must not touch the selector, got %+v", got)
	}
	if len(h.notify.messages) != 0 {
		t.Errorf("no notification may fire for an unknown level, got %v", h.notify.messages)
	}
}

func TestThermostat_SetpointReadFailureKeepsLastValue(t *testing.T) {
	h := newThermoHarness(defaultThermostatSettings())

	h.sensor(presenceSensorIdx, true)
	h.tick(time.Minute)
	h.tick(4 * time.Minute)
	if snap := h.ctrl.Snapshot(); snap.EffectiveSetpoint != 21.0 {
		t.Fatalf("setup: effective setpoint should be 21, got %v", snap.EffectiveSetpoint)
	}

	h.valves.readErr = errors.New("hub unreachable")
	h.tick(6 * time.Minute)
	if snap := h.ctrl.Snapshot(); math.Abs(snap.EffectiveSetpoint-21.0) > 1e-9 {
		t.Errorf("a failed setpoint read must keep the last value, got %v", snap.EffectiveSetpoint)
	}
}
