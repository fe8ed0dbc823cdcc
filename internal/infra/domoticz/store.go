package domoticz

import (
	"context"
	"log/slog"
	"sync"

	"casa-control/internal/domain"
)

// Store is the controllers' device store. It is authoritative in memory and
// mirrors every write to the hub best-effort; the mapping from logical unit
// to hub identifier is positional from a fixed base index. The RWMutex only
// exists because the status endpoint reads while the tick loop writes.
type Store struct {
	client  *Client
	baseIdx int
	logger  *slog.Logger

	mu    sync.RWMutex
	units map[int]domain.DeviceState
}

func NewStore(client *Client, baseIdx int, logger *slog.Logger) *Store {
	return &Store{
		client:  client,
		baseIdx: baseIdx,
		logger:  logger,
		units:   make(map[int]domain.DeviceState),
	}
}

// Ensure seeds the store with the controller's fixed device set. A device
// already known to the hub keeps its current state; one the hub has never
// seen gets its default pushed. Devices are never recreated once present.
func (s *Store) Ensure(ctx context.Context, defs []domain.DeviceDef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range defs {
		if _, ok := s.units[def.Unit]; ok {
			continue
		}
		idx := s.baseIdx + def.Unit
		if st, err := s.client.DeviceState(ctx, idx); err == nil {
			s.units[def.Unit] = st
			s.logger.Debug("device adopted from hub", "unit", def.Unit, "idx", idx, "name", def.Name)
			continue
		}
		s.units[def.Unit] = def.Default
		if err := s.client.UpdateDevice(ctx, idx, def.Default.NValue, def.Default.SValue); err != nil {
			s.logger.Warn("seeding device on hub", "unit", def.Unit, "idx", idx, "error", err)
		} else {
			s.logger.Info("device created", "unit", def.Unit, "idx", idx, "name", def.Name)
		}
	}
}

func (s *Store) Get(unit int) domain.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units[unit]
}

// Set updates the in-memory state and mirrors it to the hub. A failed mirror
// is logged and forgotten; the next write retries naturally.
func (s *Store) Set(ctx context.Context, unit, nvalue int, svalue string) {
	s.mu.Lock()
	s.units[unit] = domain.DeviceState{NValue: nvalue, SValue: svalue}
	s.mu.Unlock()

	if err := s.client.UpdateDevice(ctx, s.baseIdx+unit, nvalue, svalue); err != nil {
		s.logger.Warn("mirroring device write to hub", "unit", unit, "error", err)
	}
}
