package network

import (
	"sync/atomic"
)

// ClientMetrics contains atomic metrics for a Client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// ExchangeCount indicates the number of request/response exchanges attempted.
	ExchangeCount atomic.Uint64
	// ExchangeErrCount indicates the number of exchanges that failed at the
	// transport, framing or integrity level.
	ExchangeErrCount atomic.Uint64
	// StatusErrCount indicates the number of well-formed responses carrying a non-OK status.
	StatusErrCount atomic.Uint64
	// LocalRejectCount indicates the number of calls rejected before reaching the port.
	LocalRejectCount atomic.Uint64

	// BytesWritten indicates the number of bytes the device accepted through Write.
	BytesWritten atomic.Uint64
	// BytesRead indicates the number of bytes copied to callers through Read.
	BytesRead atomic.Uint64

	// UntrackedOpenCount indicates the number of handles returned without local tracking.
	UntrackedOpenCount atomic.Uint64

	// SessionGauge indicates the number of tracked sessions.
	SessionGauge atomic.Int64
}

func (m *ClientMetrics) incExchangeCount() {
	m.ExchangeCount.Add(1)
}

func (m *ClientMetrics) incExchangeErrCount() {
	m.ExchangeErrCount.Add(1)
}

func (m *ClientMetrics) incStatusErrCount() {
	m.StatusErrCount.Add(1)
}

func (m *ClientMetrics) incLocalRejectCount() {
	m.LocalRejectCount.Add(1)
}

func (m *ClientMetrics) addBytesWritten(n int) {
	m.BytesWritten.Add(uint64(n)) //nolint:gosec // n is non-negative
}

func (m *ClientMetrics) addBytesRead(n int) {
	m.BytesRead.Add(uint64(n)) //nolint:gosec // n is non-negative
}

func (m *ClientMetrics) incUntrackedOpenCount() {
	m.UntrackedOpenCount.Add(1)
}

func (m *ClientMetrics) setSessionGauge(n int) {
	m.SessionGauge.Store(int64(n))
}
