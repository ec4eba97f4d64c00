// Package influxdb records lock history in InfluxDB.
//
// Two measurements are written:
//
//	lock_state       one point per committed lock change, tagged lock_id
//	security_events  one point per rejected write, tagged kind and lock_id
//
// Writes go through the non-blocking batched write API, so recording never
// delays a lock command. Batch failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
package influxdb
