package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"casa-control/internal/domain"
)

const (
	// Valve target while Off or paused.
	frostGuardSetpoint = 7.0
	// Valve target while in Forced mode.
	forcedSetpoint = 28.0
	// Reference setpoint for the Vacation profile.
	vacationSetpoint = 10.0
	// Valve writes are skipped when the hub already reports a setpoint
	// within this tolerance.
	setpointTolerance = 0.05
	// Valve dispatch interval: base plus a random jitter so a fleet of
	// controllers does not hammer the valves in lockstep.
	dispatchBase   = 60 * time.Second
	dispatchJitter = 30 * time.Second
	// No valve writes during the first two minutes after restart.
	thermoStartupGrace = 2 * time.Minute

	// Night hours for the day/night setpoint reduction.
	nightStartHour = 21
	nightEndHour   = 6
)

// Sensor group names used by the thermostat.
const (
	GroupInsideTemp = "inside_temp"
	GroupValveTemp  = "valve_temp"
	GroupPresence   = "presence"
	GroupPause      = "pause"
)

// ThermostatSettings holds the thermostat delay windows, reductions and
// device assignments.
type ThermostatSettings struct {
	PauseOn        time.Duration
	PauseOff       time.Duration
	ForcedDuration time.Duration
	PresenceOn     time.Duration
	PresenceOff    time.Duration
	ReducDay       int // tenths of a degree
	ReducNight     int // tenths of a degree

	InsideTemp []int
	ValveTemp  []int
	Presence   []int
	Pause      []int
	Valves     []int

	NormalSetpointIdx  int
	EconomySetpointIdx int
}

// Groups returns the sensor group specs the aggregator must track.
func (s ThermostatSettings) Groups() []domain.GroupSpec {
	return []domain.GroupSpec{
		{Name: GroupInsideTemp, Kind: domain.GroupTemp, Idx: s.InsideTemp},
		{Name: GroupValveTemp, Kind: domain.GroupTemp, Idx: s.ValveTemp},
		{Name: GroupPresence, Kind: domain.GroupSwitch, Idx: s.Presence},
		{Name: GroupPause, Kind: domain.GroupSwitch, Idx: s.Pause},
	}
}

// ThermostatSnapshot is a point-in-time view for the status endpoint.
type ThermostatSnapshot struct {
	Mode              string  `json:"mode"`
	Profile           string  `json:"profile"`
	InsideTemp        float64 `json:"insideTemp"`
	ValveTemp         float64 `json:"valveTemp"`
	EffectiveSetpoint float64 `json:"effectiveSetpoint"`
	ValveCommand      float64 `json:"valveCommand"`
	Paused            bool    `json:"paused"`
	Presence          bool    `json:"presence"`
	Degraded          bool    `json:"degraded"`
	SensorFailed      bool    `json:"sensorFailed"`
	HeatRequested     bool    `json:"heatRequested"`
}

// ThermostatController drives the radiator valves from the debounced inputs:
// it recomputes the effective setpoint every tick and rate-limits the actual
// valve writes.
type ThermostatController struct {
	mu     sync.Mutex
	agg    *Aggregator
	dev    DeviceStore
	hub    ValveClient
	notify Notifier
	logger *slog.Logger
	set    ThermostatSettings

	forced    domain.TimerWindow
	pauseOnW  domain.TimerWindow
	pauseOffW domain.TimerWindow
	presOnW   domain.TimerWindow
	presOffW  domain.TimerWindow

	paused         bool
	pauseRequested bool
	presence       bool
	prevPauseRaw   bool
	prevPresRaw    bool

	insideTemp float64
	valveTemp  float64
	effective  float64
	valveCmd   float64
	degraded   bool
	failed     bool
	haveTemp   bool

	lastNormalSetpoint  float64
	lastEconomySetpoint float64

	nextDispatch time.Time
	rng          *rand.Rand
}

func NewThermostatController(agg *Aggregator, dev DeviceStore, hub ValveClient, notify Notifier, set ThermostatSettings, logger *slog.Logger, now time.Time) *ThermostatController {
	return &ThermostatController{
		agg:    agg,
		dev:    dev,
		hub:    hub,
		notify: notify,
		logger: logger,
		set:    set,

		forced:    domain.TimerWindow{Duration: set.ForcedDuration},
		pauseOnW:  domain.TimerWindow{Duration: set.PauseOn},
		pauseOffW: domain.TimerWindow{Duration: set.PauseOff},
		presOnW:   domain.TimerWindow{Duration: set.PresenceOn},
		presOffW:  domain.TimerWindow{Duration: set.PresenceOff},

		lastNormalSetpoint:  19.0,
		lastEconomySetpoint: 17.0,

		nextDispatch: now.Add(thermoStartupGrace),
		rng:          rand.New(rand.NewSource(now.UnixNano())),
	}
}

// Tick re-reads sensors, advances the debounce windows and recomputes the
// valve command, then dispatches it if the rate limiter allows.
func (c *ThermostatController) Tick(ctx context.Context, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := c.agg.Refresh(ctx, now)

	c.updateTemps(ctx, samples)
	c.updatePause(ctx, now, samples[GroupPause])
	c.updatePresence(ctx, now, samples[GroupPresence])

	mode, _ := domain.ParseThermostatMode(c.dev.Get(domain.UnitThermoControl).SValue)
	profile, _ := domain.ParseComfortProfile(c.dev.Get(domain.UnitThermoComfort).SValue)

	if mode == domain.ModeForced && c.forced.Elapsed(now) {
		c.logger.Info("forced mode expired, reverting to auto")
		mode = domain.ModeAuto
		c.dev.Set(ctx, domain.UnitThermoControl, 1, domain.ModeAuto.Code())
		c.alert(ctx, domain.AlertGreen, "Fin du mode force - retour Auto")
	}

	c.effective = c.effectiveSetpoint(ctx, profile, now)

	switch {
	case mode == domain.ModeOff:
		c.valveCmd = frostGuardSetpoint
	case c.paused:
		c.valveCmd = frostGuardSetpoint
	case mode == domain.ModeForced:
		c.valveCmd = forcedSetpoint
	default:
		c.valveCmd = math.Ceil(c.effective - c.valveCorrection())
	}

	heat := mode == domain.ModeAuto && !c.failed && !c.paused && c.haveTemp &&
		c.insideTemp < c.effective
	c.setIndicator(ctx, domain.UnitThermoHeatReq, heat)

	c.dispatch(ctx, now)
}

// updateTemps reduces the two temperature sources, falling back to the
// valve-mounted probes when every inside sensor is stale, and entering the
// failure state only when both sources are gone.
func (c *ThermostatController) updateTemps(ctx context.Context, samples map[string]domain.GroupSample) {
	inside := samples[GroupInsideTemp]
	valve := samples[GroupValveTemp]

	switch {
	case inside.Valid:
		c.insideTemp = inside.Mean
		c.haveTemp = true
		if c.degraded {
			c.logger.Info("inside temperature sensors recovered")
			c.degraded = false
		}
	case valve.Valid:
		c.insideTemp = valve.Mean
		c.haveTemp = true
		if !c.degraded {
			c.logger.Warn("no valid inside temperature, using valve probes", "mean", valve.Mean)
			c.degraded = true
		}
	}

	if valve.Valid {
		c.valveTemp = valve.Mean
	} else {
		// correction term collapses to zero
		c.valveTemp = c.insideTemp
	}

	if !inside.Valid && !valve.Valid {
		if !c.failed {
			c.logger.Error("all temperature sources unavailable, heating disabled")
			c.setIndicator(ctx, domain.UnitThermoTempFailed, true)
			c.alert(ctx, domain.AlertRed, "Defaut sondes de temperature - Chauffage coupe")
			c.tell(ctx, "Defaut sondes de temperature - Chauffage coupe")
		}
		c.failed = true
		c.haveTemp = false
	} else if c.failed {
		c.logger.Info("temperature reading recovered")
		c.failed = false
		c.setIndicator(ctx, domain.UnitThermoTempFailed, false)
		c.alert(ctx, domain.AlertGreen, "Sondes de temperature OK")
	}
}

// updatePause debounces the dedicated pause input through its on/off
// windows. Pause is re-entrant: it is re-checked against the raw request
// every tick, independent of mode.
func (c *ThermostatController) updatePause(ctx context.Context, now time.Time, s domain.GroupSample) {
	raw := s.AnyActive
	if raw && !c.prevPauseRaw {
		c.pauseOnW.Reset(now)
	}
	if !raw && c.prevPauseRaw {
		c.pauseOffW.Reset(now)
	}
	c.prevPauseRaw = raw
	c.pauseRequested = raw

	if raw && !c.paused && c.pauseOnW.Elapsed(now) {
		c.logger.Info("pause engaged")
		c.paused = true
		c.setIndicator(ctx, domain.UnitThermoPause, true)
	}
	if !raw && c.paused && c.pauseOffW.Elapsed(now) {
		c.logger.Info("pause released")
		c.paused = false
		c.setIndicator(ctx, domain.UnitThermoPause, false)
	}
}

func (c *ThermostatController) updatePresence(ctx context.Context, now time.Time, s domain.GroupSample) {
	raw := s.AnyActive
	if raw && !c.prevPresRaw {
		c.presOnW.Reset(now)
	}
	if !raw && c.prevPresRaw {
		c.presOffW.Reset(now)
	}
	c.prevPresRaw = raw

	if raw && !c.presence && c.presOnW.Elapsed(now) {
		c.logger.Info("presence confirmed")
		c.presence = true
		c.setIndicator(ctx, domain.UnitThermoPresence, true)
	}
	if !raw && c.presence && c.presOffW.Elapsed(now) {
		c.logger.Info("presence lost")
		c.presence = false
		c.setIndicator(ctx, domain.UnitThermoPresence, false)
	}
}

// effectiveSetpoint picks the reference source for the current comfort
// profile. Hub read failures fall back to the last known value.
func (c *ThermostatController) effectiveSetpoint(ctx context.Context, profile domain.ComfortProfile, now time.Time) float64 {
	switch profile {
	case domain.ProfileVacation:
		return vacationSetpoint

	case domain.ProfileEconomy:
		v, err := c.hub.DeviceSetpoint(ctx, c.set.EconomySetpointIdx)
		if err != nil {
			c.logger.Error("reading economy setpoint, keeping last value", "error", err)
			return c.lastEconomySetpoint
		}
		c.lastEconomySetpoint = v
		return v

	default:
		v, err := c.hub.DeviceSetpoint(ctx, c.set.NormalSetpointIdx)
		if err != nil {
			c.logger.Error("reading normal setpoint, keeping last value", "error", err)
			v = c.lastNormalSetpoint
		} else {
			c.lastNormalSetpoint = v
		}
		if !c.presence {
			v -= float64(c.reduction(now)) / 10
		}
		return v
	}
}

// reduction returns the presence-unconfirmed setpoint reduction in tenths
// of a degree, using the night value between 21:00 and 06:00 local.
func (c *ThermostatController) reduction(now time.Time) int {
	h := now.Hour()
	if h >= nightStartHour || h < nightEndHour {
		return c.set.ReducNight
	}
	return c.set.ReducDay
}

// valveCorrection is the calibration point for the valve offset term. The
// valve-mounted probe reads high while the radiator is hot; subtracting the
// inside/valve delta from the setpoint compensates for it.
func (c *ThermostatController) valveCorrection() float64 {
	return c.insideTemp - c.valveTemp
}

// dispatch writes the valve command on a jittered interval, and only to
// valves whose hub-reported setpoint differs by more than the tolerance.
func (c *ThermostatController) dispatch(ctx context.Context, now time.Time) {
	if now.Before(c.nextDispatch) {
		return
	}
	c.nextDispatch = now.Add(dispatchBase + time.Duration(c.rng.Int63n(int64(dispatchJitter))))

	for _, idx := range c.set.Valves {
		cur, err := c.hub.DeviceSetpoint(ctx, idx)
		if err == nil && math.Abs(cur-c.valveCmd) <= setpointTolerance {
			c.logger.Debug("valve already on target", "idx", idx, "setpoint", cur)
			continue
		}
		if err != nil {
			c.logger.Warn("reading valve setpoint", "idx", idx, "error", err)
		}
		if err := c.hub.SetSetpoint(ctx, idx, c.valveCmd); err != nil {
			c.logger.Error("writing valve setpoint", "idx", idx, "error", err)
			continue
		}
		c.logger.Info("valve setpoint written", "idx", idx, "setpoint", c.valveCmd)
	}
}

// OnControlCommand handles the Off/Auto/Forced selector. Levels outside the
// selector's positions are rejected so the device never carries a code the
// state machine cannot parse back.
func (c *ThermostatController) OnControlCommand(ctx context.Context, level int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode, ok := domain.ParseThermostatMode(strconv.Itoa(level))
	if !ok {
		c.logger.Warn("ignoring unknown thermostat mode level", "level", level)
		return
	}
	n := 1
	if mode == domain.ModeOff {
		n = 0
	}
	c.dev.Set(ctx, domain.UnitThermoControl, n, mode.Code())
	c.logger.Info("thermostat mode command", "mode", mode.String())

	switch mode {
	case domain.ModeForced:
		c.forced.Reset(now)
		msg := fmt.Sprintf("Mode force %.0f° pendant %.0f min", forcedSetpoint, c.set.ForcedDuration.Minutes())
		c.alert(ctx, domain.AlertYellow, msg)
		c.tell(ctx, msg)
	case domain.ModeOff:
		c.alert(ctx, domain.AlertGrey, "Chauffage arrete - Hors gel")
	default:
		c.alert(ctx, domain.AlertGreen, "Mode Auto")
	}
}

// OnComfortCommand handles the Normal/Economy/Vacation selector.
func (c *ThermostatController) OnComfortCommand(ctx context.Context, level int, _ time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile, ok := domain.ParseComfortProfile(strconv.Itoa(level))
	if !ok {
		c.logger.Warn("ignoring unknown comfort profile level", "level", level)
		return
	}
	c.dev.Set(ctx, domain.UnitThermoComfort, 1, profile.Code())
	c.logger.Info("comfort profile command", "profile", profile.String())
	c.alert(ctx, domain.AlertGreen, fmt.Sprintf("Profil %s", profile.String()))
}

func (c *ThermostatController) setIndicator(ctx context.Context, unit int, on bool) {
	cur := c.dev.Get(unit)
	if cur.On() == on {
		return
	}
	n := 0
	if on {
		n = 1
	}
	c.dev.Set(ctx, unit, n, cur.SValue)
}

func (c *ThermostatController) alert(ctx context.Context, level domain.AlertLevel, text string) {
	c.dev.Set(ctx, domain.UnitThermoLog, int(level), text)
}

func (c *ThermostatController) tell(ctx context.Context, msg string) {
	if err := c.notify.Notify(ctx, msg); err != nil {
		c.logger.Error("sending notification", "error", err)
	}
}

// Snapshot returns the current thermostat state for the status endpoint.
func (c *ThermostatController) Snapshot() ThermostatSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	mode, _ := domain.ParseThermostatMode(c.dev.Get(domain.UnitThermoControl).SValue)
	profile, _ := domain.ParseComfortProfile(c.dev.Get(domain.UnitThermoComfort).SValue)
	return ThermostatSnapshot{
		Mode:              mode.String(),
		Profile:           profile.String(),
		InsideTemp:        c.insideTemp,
		ValveTemp:         c.valveTemp,
		EffectiveSetpoint: c.effective,
		ValveCommand:      c.valveCmd,
		Paused:            c.paused,
		Presence:          c.presence,
		Degraded:          c.degraded,
		SensorFailed:      c.failed,
		HeatRequested:     c.dev.Get(domain.UnitThermoHeatReq).On(),
	}
}
