package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"casa-control/internal/domain"
)

const (
	// How long a detection edge keeps its group indicator held.
	detectionHold = 15 * time.Second
	// No detection is acted on during the first minute after restart.
	alarmStartupGrace = 60 * time.Second
	// The "protection active" notification is suppressed for a while
	// after restart so a hub reboot does not ping everyone.
	armingQuiet = 5 * time.Minute
)

// Sensor group names used by the alarm zone.
const (
	GroupPerimeter = "perimeter"
	GroupPanic     = "panic"
	GroupNight     = "night"
	GroupNormal    = "normal"
)

// AlarmSettings holds the alarm zone delay windows and sensor assignments.
type AlarmSettings struct {
	ArmingOn  time.Duration // delay between arming command and armed-confirmed
	Detection time.Duration // confirmation delay between detection and intrusion
	AlarmOn   time.Duration // delay between intrusion and siren
	AlarmOff  time.Duration // siren duration before auto re-arm

	Perimeter []int
	Panic     []int
	Night     []int
	Normal    []int
}

// Groups returns the sensor group specs the aggregator must track.
func (s AlarmSettings) Groups() []domain.GroupSpec {
	return []domain.GroupSpec{
		{Name: GroupPerimeter, Kind: domain.GroupSwitch, Idx: s.Perimeter},
		{Name: GroupPanic, Kind: domain.GroupSwitch, Idx: s.Panic},
		{Name: GroupNight, Kind: domain.GroupSwitch, Idx: s.Night},
		{Name: GroupNormal, Kind: domain.GroupSwitch, Idx: s.Normal},
	}
}

// AlarmSnapshot is a point-in-time view of the zone for the status endpoint.
type AlarmSnapshot struct {
	Level     string `json:"level"`
	Ready     bool   `json:"ready"`
	Armed     bool   `json:"armed"`
	Intrusion bool   `json:"intrusion"`
	Alarm     bool   `json:"alarm"`
}

// AlarmController is the security zone state machine. All state is owned by
// the controller and mutated on each tick or by injected commands; the mutex
// only serializes ticks against commands arriving between them.
type AlarmController struct {
	mu     sync.Mutex
	agg    *Aggregator
	dev    DeviceStore
	notify Notifier
	logger *slog.Logger
	set    AlarmSettings

	startup       domain.TimerWindow
	quiet         domain.TimerWindow
	arming        domain.TimerWindow
	perimeterHold domain.TimerWindow
	panicHold     domain.TimerWindow
	nightHold     domain.TimerWindow
	normalHold    domain.TimerWindow
	nightConfirm  domain.TimerWindow
	normalConfirm domain.TimerWindow

	ready            bool
	nightDetection   bool
	normalDetection  bool
	intrusion        bool
	alarm            bool
	panicLatched     bool
	detectionChanged time.Time

	prevPerimeter bool
	prevPanic     bool
	prevNight     bool
	prevNormal    bool
}

func NewAlarmController(agg *Aggregator, dev DeviceStore, notify Notifier, set AlarmSettings, logger *slog.Logger, now time.Time) *AlarmController {
	c := &AlarmController{
		agg:    agg,
		dev:    dev,
		notify: notify,
		logger: logger,
		set:    set,

		startup:       domain.NewTimerWindow(alarmStartupGrace, now),
		quiet:         domain.NewTimerWindow(armingQuiet, now),
		arming:        domain.TimerWindow{Duration: set.ArmingOn},
		perimeterHold: domain.TimerWindow{Duration: detectionHold},
		panicHold:     domain.TimerWindow{Duration: detectionHold},
		nightHold:     domain.TimerWindow{Duration: detectionHold},
		normalHold:    domain.TimerWindow{Duration: detectionHold},
		nightConfirm:  domain.TimerWindow{Duration: set.Detection},
		normalConfirm: domain.TimerWindow{Duration: set.Detection},
	}
	return c
}

// Tick advances the zone: refreshes sensors, re-checks the perimeter before
// any arming-eligibility decision, then runs the armed-side detection logic.
func (c *AlarmController) Tick(ctx context.Context, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := c.agg.Refresh(ctx, now)

	c.checkPerimeter(ctx, now, samples[GroupPerimeter])
	c.checkPanic(ctx, now, samples[GroupPanic])

	ctl := c.dev.Get(domain.UnitAlarmControl)

	if !ctl.On() {
		c.disarmedTick(ctx, now, ctl)
		return
	}

	if c.startup.Elapsed(now) {
		if c.arming.Elapsed(now) {
			if !c.dev.Get(domain.UnitAlarmArmed).On() {
				c.dev.Set(ctx, domain.UnitAlarmArmed, 1, c.dev.Get(domain.UnitAlarmArmed).SValue)
				if c.quiet.Elapsed(now) {
					c.logger.Info("arming delay passed, zone armed")
					c.alert(ctx, domain.AlertYellow, "Surveillance commencee")
					c.alert(ctx, domain.AlertYellow, "Protection active")
					c.tell(ctx, "Surveillance commencee - Protection active")
				}
			}
		} else {
			c.logger.Debug("armed but still in arming delay")
			c.indicatorsOff(ctx)
		}
	}

	if !c.dev.Get(domain.UnitAlarmArmed).On() {
		return
	}

	c.alarmDetection(ctx, now)

	level, _ := domain.ParseArmLevel(ctl.SValue)
	switch level {
	case domain.ArmPerimeter:
		// perimeter already checked every tick
	case domain.ArmNight:
		c.motionDetection(ctx, now, samples[GroupNight], nightZone)
	case domain.ArmTotal:
		c.motionDetection(ctx, now, samples[GroupNight], nightZone)
		c.motionDetection(ctx, now, samples[GroupNormal], normalZone)
	}
}

// disarmedTick keeps the ready/not-ready side of the selector coherent and
// clears leftover detection state when surveillance was just switched off.
func (c *AlarmController) disarmedTick(ctx context.Context, now time.Time, ctl domain.DeviceState) {
	if !c.dev.Get(domain.UnitAlarmPerimeter).On() {
		c.ready = true
		if ctl.SValue == domain.ArmNotReady.Code() {
			c.dev.Set(ctx, domain.UnitAlarmControl, 0, domain.ArmDisarmed.Code())
			c.alert(ctx, domain.AlertGreen, "Desarmee - Pret")
		}
	} else {
		c.ready = false
		if ctl.SValue == domain.ArmDisarmed.Code() {
			c.dev.Set(ctx, domain.UnitAlarmControl, 0, domain.ArmNotReady.Code())
			c.alert(ctx, domain.AlertGrey, "Desarmee - Non Pret - Verifier capteurs perimetriques")
		}
	}

	// reset a stale warning left on the log device
	if c.dev.Get(domain.UnitAlarmLog).NValue >= int(domain.AlertYellow) {
		if c.ready {
			c.alert(ctx, domain.AlertGreen, "Desarmee - Pret")
		} else {
			c.alert(ctx, domain.AlertGrey, "Desarmee - Non Pret - Verifier capteurs perimetriques")
		}
	}

	// a panic alarm runs its course even while disarmed
	if c.panicLatched {
		c.alarmDetection(ctx, now)
		return
	}

	if c.alarm || c.intrusion {
		c.logger.Info("surveillance off, clearing detection state")
		c.clearDetections(ctx)
	}
}

type zoneKind int

const (
	nightZone zoneKind = iota
	normalZone
)

func (z zoneKind) label() string {
	if z == nightZone {
		return "GROUPE 1"
	}
	return "GROUPE 2"
}

func (z zoneKind) unit() int {
	if z == nightZone {
		return domain.UnitAlarmNightGroup
	}
	return domain.UnitAlarmNormalGroup
}

// checkPerimeter runs every tick regardless of arming state so that a breach
// appearing mid-arming flips the zone back to not-ready on the next tick.
func (c *AlarmController) checkPerimeter(ctx context.Context, now time.Time, s domain.GroupSample) {
	if s.AnyActive {
		c.perimeterHold.Reset(now)
		if c.dev.Get(domain.UnitAlarmArmed).On() && !c.prevPerimeter {
			msg := fmt.Sprintf("--- DETECTION PERIMETRIQUE: '%s'", s.ActiveName)
			c.alert(ctx, domain.AlertOrange, msg)
			c.tell(ctx, msg)
		}
	}
	c.prevPerimeter = s.AnyActive

	if !c.startup.Elapsed(now) {
		c.setIndicator(ctx, domain.UnitAlarmPerimeter, false)
		return
	}

	c.setIndicator(ctx, domain.UnitAlarmPerimeter, c.perimeterHold.Held(now))

	if c.dev.Get(domain.UnitAlarmControl).On() &&
		c.dev.Get(domain.UnitAlarmArmed).On() &&
		c.dev.Get(domain.UnitAlarmPerimeter).On() {
		c.raiseIntrusion(ctx, now, "INTRUSION PERIMETRIQUE DETECTEE - IDENTIFICATION REQUISE")
	}
}

// checkPanic raises the alarm immediately on a panic press, armed or not.
func (c *AlarmController) checkPanic(ctx context.Context, now time.Time, s domain.GroupSample) {
	if s.AnyActive {
		c.panicHold.Reset(now)
		if !c.prevPanic {
			c.logger.Warn("panic button pressed", "name", s.ActiveName)
			c.alert(ctx, domain.AlertRed, "PANIQUE - ALARME")
			c.tell(ctx, "PANIQUE - ALARME !!!")
			c.intrusion = true
			c.alarm = true
			c.panicLatched = true
			c.detectionChanged = now
			c.dev.Set(ctx, domain.UnitAlarmIntrusion, 1, c.dev.Get(domain.UnitAlarmIntrusion).SValue)
			c.dev.Set(ctx, domain.UnitAlarmSiren, 1, c.dev.Get(domain.UnitAlarmSiren).SValue)
		}
	}
	c.prevPanic = s.AnyActive
}

// motionDetection handles one of the two motion sensor groups: the raw edge
// resets the hold window, the held window drives the group indicator, and a
// confirmed detection raises the intrusion flag.
func (c *AlarmController) motionDetection(ctx context.Context, now time.Time, s domain.GroupSample, zone zoneKind) {
	hold, confirm, detection, prev := c.zoneState(zone)

	if s.AnyActive {
		hold.Reset(now)
		if !*prev {
			msg := fmt.Sprintf("--- DETECTION %s : '%s'", zone.label(), s.ActiveName)
			c.alert(ctx, domain.AlertOrange, msg)
			c.tell(ctx, msg)
		}
	}
	*prev = s.AnyActive

	if !c.startup.Elapsed(now) {
		c.setIndicator(ctx, zone.unit(), false)
		return
	}

	if hold.Held(now) {
		if !c.dev.Get(zone.unit()).On() {
			c.logger.Info("new detection", "zone", zone.label())
			c.setIndicator(ctx, zone.unit(), true)
			*detection = true
			confirm.Reset(now)
		}
	} else {
		if c.dev.Get(zone.unit()).On() {
			c.setIndicator(ctx, zone.unit(), false)
			*detection = false
		}
	}

	if *detection && confirm.Elapsed(now) {
		c.raiseIntrusion(ctx, now, fmt.Sprintf("INTRUSION DETECTEE %s - IDENTIFICATION REQUISE", zone.label()))
	}
}

func (c *AlarmController) zoneState(zone zoneKind) (hold, confirm *domain.TimerWindow, detection, prev *bool) {
	if zone == nightZone {
		return &c.nightHold, &c.nightConfirm, &c.nightDetection, &c.prevNight
	}
	return &c.normalHold, &c.normalConfirm, &c.normalDetection, &c.prevNormal
}

func (c *AlarmController) raiseIntrusion(ctx context.Context, now time.Time, msg string) {
	if c.dev.Get(domain.UnitAlarmIntrusion).On() {
		return
	}
	c.logger.Warn("new intrusion")
	c.dev.Set(ctx, domain.UnitAlarmIntrusion, 1, c.dev.Get(domain.UnitAlarmIntrusion).SValue)
	c.alert(ctx, domain.AlertOrange, msg)
	c.tell(ctx, msg)
	c.intrusion = true
	c.detectionChanged = now
}

// alarmDetection escalates a registered intrusion to the siren after the
// alarm-on delay and auto re-arms once alarm-on + alarm-off have elapsed
// since the detection-changed timestamp.
func (c *AlarmController) alarmDetection(ctx context.Context, now time.Time) {
	if c.intrusion && !c.alarm {
		onWindow := domain.NewTimerWindow(c.set.AlarmOn, c.detectionChanged)
		if c.set.AlarmOn == 0 {
			c.logger.Info("intrusion with immediate alarm setting, alarm active")
			c.soundAlarm(ctx, "ALARME !!!")
		} else if onWindow.Elapsed(now) {
			c.logger.Info("intrusion and alarm-on delay passed, alarm active")
			c.alert(ctx, domain.AlertRed, "Pas d'identification pendant le temps alloue")
			c.soundAlarm(ctx, "Pas d'identification pendant le temps alloue --- ALARME !")
		} else {
			c.logger.Debug("intrusion registered, alarm-on delay running")
		}
	}

	if c.alarm {
		total := domain.NewTimerWindow(c.set.AlarmOn+c.set.AlarmOff, c.detectionChanged)
		if total.Elapsed(now) {
			c.logger.Info("alarm-off delay passed, resetting zone")
			c.alarm = false
			c.intrusion = false
			c.panicLatched = false
			c.setIndicator(ctx, domain.UnitAlarmSiren, false)
			c.setIndicator(ctx, domain.UnitAlarmIntrusion, false)
			// a panic alarm can reset while the zone is disarmed
			msg := "RESET - Protection Armee"
			if !c.dev.Get(domain.UnitAlarmArmed).On() {
				msg = "RESET - Protection Desarmee"
			}
			c.alert(ctx, domain.AlertOrange, msg)
			c.tell(ctx, msg)
		}
	}
}

func (c *AlarmController) soundAlarm(ctx context.Context, notifyText string) {
	c.alarm = true
	c.dev.Set(ctx, domain.UnitAlarmSiren, 1, c.dev.Get(domain.UnitAlarmSiren).SValue)
	c.alert(ctx, domain.AlertRed, "ALARME")
	c.tell(ctx, notifyText)
}

// OnControlCommand handles the unit selector: disarm is a hard override and
// always immediate; arming is rejected while the zone is not ready.
func (c *AlarmController) OnControlCommand(ctx context.Context, level int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lvl, ok := domain.ParseArmLevel(strconv.Itoa(level))
	if !ok {
		c.logger.Warn("ignoring unknown control level", "level", level)
		return
	}
	c.logger.Debug("control command", "level", lvl.String())

	if lvl == domain.ArmDisarmed {
		c.alert(ctx, domain.AlertYellow, "Desarmement Alarme")
		c.disarm(ctx)
		return
	}

	if !lvl.Armed() {
		return
	}

	if !c.ready {
		c.dev.Set(ctx, domain.UnitAlarmControl, 0, domain.ArmNotReady.Code())
		c.alert(ctx, domain.AlertGrey, "Desarmee - Non Pret - Verifier capteurs perimetriques")
		return
	}

	c.dev.Set(ctx, domain.UnitAlarmControl, 1, lvl.Code())
	msg := armingText(lvl)
	c.alert(ctx, domain.AlertYellow, msg)
	c.tell(ctx, msg)
	c.arming.Reset(now)
}

// OnRemoteCommand handles the remote selector, which only knows disarm and
// arm-total. Every rejection case produces its own notification text.
func (c *AlarmController) OnRemoteCommand(ctx context.Context, level int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lvl, ok := domain.ParseRemoteLevel(strconv.Itoa(level))
	if !ok {
		c.logger.Warn("ignoring unknown remote level", "level", level)
		return
	}
	ctl := c.dev.Get(domain.UnitAlarmControl)

	switch lvl {
	case domain.RemoteDisarm:
		c.dev.Set(ctx, domain.UnitAlarmRemoteControl, 1, lvl.Code())
		c.logger.Debug("remote disarm command")
		if ctl.On() {
			c.tell(ctx, "Commande a distance - Desarmement alarme")
			c.disarm(ctx)
		} else {
			c.tell(ctx, "Commande a distance - Desarmement alarme impossible - Alarme deja desarmee")
		}

	case domain.RemoteArmTotal:
		c.dev.Set(ctx, domain.UnitAlarmRemoteControl, 1, lvl.Code())
		c.logger.Debug("remote arm-total command")
		if !ctl.On() {
			if c.ready {
				c.tell(ctx, "Commande a distance - Armement Alarme TOTAL")
				c.dev.Set(ctx, domain.UnitAlarmControl, 1, domain.ArmTotal.Code())
				c.alert(ctx, domain.AlertYellow, armingText(domain.ArmTotal))
				c.tell(ctx, armingText(domain.ArmTotal))
				c.arming.Reset(now)
			} else {
				c.tell(ctx, "Commande a distance - Armement Alarme TOTAL - Impossible - Non Pret - Verifier capteurs perimetriques")
			}
		} else {
			switch ctl.SValue {
			case domain.ArmPerimeter.Code():
				c.tell(ctx, "Commande a distance - Armement Alarme TOTAL - Impossible - Alarme deja Armee en mode perimetrique")
			case domain.ArmNight.Code():
				c.tell(ctx, "Commande a distance - Armement Alarme TOTAL - Impossible - Alarme deja Armee en mode nuit")
			case domain.ArmTotal.Code():
				c.tell(ctx, "Commande a distance - Armement Alarme TOTAL - Impossible - Alarme deja Armee en mode total")
			}
		}
	}

	c.dev.Set(ctx, domain.UnitAlarmRemoteControl, 0, domain.RemoteWaiting.Code())
}

// disarm clears every flag and indicator in the same tick, regardless of any
// running timer.
func (c *AlarmController) disarm(ctx context.Context) {
	c.dev.Set(ctx, domain.UnitAlarmControl, 0, domain.ArmDisarmed.Code())
	c.alert(ctx, domain.AlertYellow, "Protection desarmee")
	c.tell(ctx, "Protection Desarmee")
	c.clearDetections(ctx)
}

func (c *AlarmController) clearDetections(ctx context.Context) {
	c.nightDetection = false
	c.normalDetection = false
	c.intrusion = false
	c.alarm = false
	c.panicLatched = false
	c.indicatorsOff(ctx)
}

func (c *AlarmController) indicatorsOff(ctx context.Context) {
	for _, unit := range []int{
		domain.UnitAlarmArmed,
		domain.UnitAlarmPerimeter,
		domain.UnitAlarmNightGroup,
		domain.UnitAlarmNormalGroup,
		domain.UnitAlarmIntrusion,
		domain.UnitAlarmSiren,
	} {
		c.setIndicator(ctx, unit, false)
	}
}

// setIndicator flips a switch device's nValue, preserving its sValue, and
// only writes on actual change.
func (c *AlarmController) setIndicator(ctx context.Context, unit int, on bool) {
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

func (c *AlarmController) alert(ctx context.Context, level domain.AlertLevel, text string) {
	c.dev.Set(ctx, domain.UnitAlarmLog, int(level), text)
}

func (c *AlarmController) tell(ctx context.Context, msg string) {
	if err := c.notify.Notify(ctx, msg); err != nil {
		c.logger.Error("sending notification", "error", err)
	}
}

// Snapshot returns the current zone state for the status endpoint.
func (c *AlarmController) Snapshot() AlarmSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctl := c.dev.Get(domain.UnitAlarmControl)
	level, _ := domain.ParseArmLevel(ctl.SValue)
	return AlarmSnapshot{
		Level:     level.String(),
		Ready:     c.ready,
		Armed:     c.dev.Get(domain.UnitAlarmArmed).On(),
		Intrusion: c.intrusion,
		Alarm:     c.alarm,
	}
}

func armingText(lvl domain.ArmLevel) string {
	switch lvl {
	case domain.ArmPerimeter:
		return "Protection perimetrique activee - Timer"
	case domain.ArmNight:
		return "Protection mode NUIT activee - Timer"
	default:
		return "Protection TOTALE activee - Timer"
	}
}
