package influxdb

import "errors"

// Sentinel errors. Batch write failures are delivered to the SetOnError
// callback instead.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
