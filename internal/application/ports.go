package application

import (
	"context"

	"casa-control/internal/domain"
)

// HubQuerier is the read side of the hub API used by the sensor aggregator.
type HubQuerier interface {
	// QueryDevices returns the current state of every used device matching
	// the given filter ("light" or "temp") in one batched call.
	QueryDevices(ctx context.Context, filter string) ([]domain.HubDevice, error)
}

// ValveClient is the slice of the hub API the thermostat needs to drive
// radiator valves and read setpoint devices.
type ValveClient interface {
	// DeviceSetpoint reads the current setpoint of a single hub device.
	DeviceSetpoint(ctx context.Context, idx int) (float64, error)
	// SetSetpoint writes a valve target.
	SetSetpoint(ctx context.Context, idx int, value float64) error
}

// DeviceStore is the read/write port over the controller's own output
// devices. Writes are mirrored to the hub best-effort; a failed mirror must
// never fail the tick, so Set does not return an error.
type DeviceStore interface {
	Get(unit int) domain.DeviceState
	Set(ctx context.Context, unit int, nvalue int, svalue string)
}
