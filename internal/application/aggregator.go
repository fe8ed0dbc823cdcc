package application

import (
	"context"
	"log/slog"
	"time"

	"casa-control/internal/domain"
)

const (
	// Readings older than this are treated as stale.
	sensorStaleAfter = 30 * time.Minute
	// A stale sensor sits out this long before being reconsidered.
	sensorExclusionCooldown = 15 * time.Minute
)

// Aggregator fetches the current state of every device referenced by the
// configured sensor groups and reduces each group to a single signal per
// tick: "any member on" for switch groups, the arithmetic mean for
// temperature groups. It owns the per-group last-seen-active timestamps and
// the stale-sensor exclusion list. It never writes devices.
type Aggregator struct {
	hub    HubQuerier
	logger *slog.Logger
	specs  []domain.GroupSpec

	lastActive    map[string]time.Time
	lastSample    map[string]domain.GroupSample
	excludedUntil map[int]time.Time
	excluded      map[int]bool
}

func NewAggregator(hub HubQuerier, specs []domain.GroupSpec, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		hub:           hub,
		logger:        logger,
		specs:         specs,
		lastActive:    make(map[string]time.Time),
		lastSample:    make(map[string]domain.GroupSample),
		excludedUntil: make(map[int]time.Time),
		excluded:      make(map[int]bool),
	}
}

// Refresh queries the hub once per device filter and reduces every group.
// A failed query is non-fatal: the previous samples are returned unchanged
// and the next tick retries naturally.
func (a *Aggregator) Refresh(ctx context.Context, now time.Time) map[string]domain.GroupSample {
	var switches, temps []domain.HubDevice

	if a.hasKind(domain.GroupSwitch) {
		devs, err := a.hub.QueryDevices(ctx, "light")
		if err != nil {
			a.logger.Error("querying switch devices", "error", err)
			return a.cached()
		}
		switches = devs
	}
	if a.hasKind(domain.GroupTemp) {
		devs, err := a.hub.QueryDevices(ctx, "temp")
		if err != nil {
			a.logger.Error("querying temperature devices", "error", err)
			return a.cached()
		}
		temps = devs
	}

	out := make(map[string]domain.GroupSample, len(a.specs))
	for _, spec := range a.specs {
		var s domain.GroupSample
		switch spec.Kind {
		case domain.GroupSwitch:
			s = a.reduceSwitch(spec, switches, now)
		case domain.GroupTemp:
			s = a.reduceTemp(spec, temps, now)
		}
		a.lastSample[spec.Name] = s
		out[spec.Name] = s
	}
	return out
}

// LastActive returns when the group was last seen active.
func (a *Aggregator) LastActive(group string) time.Time {
	return a.lastActive[group]
}

func (a *Aggregator) hasKind(k domain.GroupKind) bool {
	for _, spec := range a.specs {
		if spec.Kind == k && len(spec.Idx) > 0 {
			return true
		}
	}
	return false
}

func (a *Aggregator) cached() map[string]domain.GroupSample {
	out := make(map[string]domain.GroupSample, len(a.lastSample))
	for name, s := range a.lastSample {
		out[name] = s
	}
	return out
}

func (a *Aggregator) reduceSwitch(spec domain.GroupSpec, devs []domain.HubDevice, now time.Time) domain.GroupSample {
	var s domain.GroupSample
	for _, d := range devs {
		if !spec.Contains(d.Idx) {
			continue
		}
		s.Count++
		if d.Active() {
			s.AnyActive = true
			if s.ActiveName == "" {
				s.ActiveName = d.Name
			}
		}
	}
	if s.AnyActive {
		a.lastActive[spec.Name] = now
	}
	return s
}

func (a *Aggregator) reduceTemp(spec domain.GroupSpec, devs []domain.HubDevice, now time.Time) domain.GroupSample {
	var s domain.GroupSample
	var sum float64
	for _, d := range devs {
		if !spec.Contains(d.Idx) || !d.HasTemp {
			continue
		}
		if until, ok := a.excludedUntil[d.Idx]; ok && now.Before(until) {
			continue
		}
		if d.TimedOut || now.Sub(d.LastUpdate) > sensorStaleAfter {
			a.excludedUntil[d.Idx] = now.Add(sensorExclusionCooldown)
			if !a.excluded[d.Idx] {
				a.excluded[d.Idx] = true
				a.logger.Warn("temperature sensor stale, excluding",
					"idx", d.Idx, "name", d.Name, "cooldown", sensorExclusionCooldown)
			}
			continue
		}
		if a.excluded[d.Idx] {
			a.excluded[d.Idx] = false
			delete(a.excludedUntil, d.Idx)
			a.logger.Info("temperature sensor recovered", "idx", d.Idx, "name", d.Name)
		}
		sum += d.Temp
		s.Count++
	}
	if s.Count > 0 {
		s.Mean = sum / float64(s.Count)
		s.Valid = true
	}
	return s
}
