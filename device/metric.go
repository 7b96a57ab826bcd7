package device

import "sync/atomic"

// Metrics contains atomic metrics for a Device.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// RequestCount indicates the number of request packets handled.
	RequestCount atomic.Uint64
	// StatusErrCount indicates the number of responses carrying a non-OK status.
	StatusErrCount atomic.Uint64
	// FrameErrCount indicates the number of frames dropped because they could not be decoded.
	FrameErrCount atomic.Uint64
	// OpenCount indicates the number of sessions opened.
	OpenCount atomic.Uint64
	// ReapCount indicates the number of sessions closed for being idle.
	ReapCount atomic.Uint64
	// SessionGauge indicates the number of open sessions.
	SessionGauge atomic.Int64
}

func (m *Metrics) incRequestCount() {
	m.RequestCount.Add(1)
}

func (m *Metrics) incStatusErrCount() {
	m.StatusErrCount.Add(1)
}

func (m *Metrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *Metrics) incOpenCount() {
	m.OpenCount.Add(1)
}

func (m *Metrics) incReapCount() {
	m.ReapCount.Add(1)
}

func (m *Metrics) setSessionGauge(n int32) {
	m.SessionGauge.Store(int64(n))
}
