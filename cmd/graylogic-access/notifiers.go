package main

import (
	"context"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-access/internal/lockstate"
)

// influxNotifier records committed lock states and rejected writes as
// time series. It lives here so the influxdb package stays free of domain
// types.
type influxNotifier struct {
	client *influxdb.Client
}

func (n influxNotifier) LockChanged(_ context.Context, rec lockstate.Record) {
	n.client.WriteLockState(influxdb.LockSample{
		LockID:       rec.ID,
		Location:     rec.Location,
		Locked:       rec.Locked,
		BatteryLevel: rec.BatteryLevel,
		WifiStrength: rec.WifiStrength,
		CameraActive: rec.CameraActive,
		At:           rec.LastUpdate,
	})
}

func (n influxNotifier) SecurityViolation(_ context.Context, v lockstate.Violation) {
	n.client.WriteSecurityEvent(v.Kind, v.LockID, v.Operation, v.At)
}
