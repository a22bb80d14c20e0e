package interfaces

// HeartbeatRecorder receives liveness timestamps. The aggregator implements
// it; sessions feed it when relaying producer heartbeat traffic.
type HeartbeatRecorder interface {
	SetTimestamp(source string, ts float64)
}
