package authcore

import "sync/atomic"

// MetricID indexes the engine's built-in counters.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginThrottled
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricLogoutAll
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricOTPSent
	MetricOTPVerified
	MetricOTPRejected
	MetricResetRequested
	MetricResetCompleted
	MetricResetRejected
	MetricUserBlocked
	MetricSessionCreated
	MetricSessionPruned
	MetricValidateSuccess
	MetricValidateFailure
	MetricHeartbeat
	metricIDCount
)

const cacheLineSize = 64

// paddedCounter keeps each counter on its own cache line so concurrent
// increments on different metrics do not contend.
type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed-size set of lock-free counters.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter. No-op when metrics are disabled or the id
// is out of range.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Get returns the current value of one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot copies every counter, indexed by MetricID.
func (m *Metrics) Snapshot() []uint64 {
	out := make([]uint64, metricIDCount)
	if m == nil {
		return out
	}
	for i := range out {
		out[i] = m.counters[i].value.Load()
	}
	return out
}
