package transport

import "sync/atomic"

// PortMetrics contains atomic metrics for a port.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type PortMetrics struct {
	// FrameSendCount indicates the number of request frames written, retries included.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of response frames received.
	FrameRecvCount atomic.Uint64
	// RetryCount indicates the number of re-sent requests.
	RetryCount atomic.Uint64
	// TimeoutCount indicates the number of attempts that timed out.
	TimeoutCount atomic.Uint64
	// ErrCount indicates the number of exchanges that failed for reasons other than a timeout.
	ErrCount atomic.Uint64
}

func (m *PortMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *PortMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *PortMetrics) incRetryCount() {
	m.RetryCount.Add(1)
}

func (m *PortMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *PortMetrics) incErrCount() {
	m.ErrCount.Add(1)
}
