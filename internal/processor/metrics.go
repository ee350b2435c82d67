package processor

import (
	"sync/atomic"
	"time"
)

// ServiceMetrics counts job runs handled by one ProcessorService.
type ServiceMetrics struct {
	processed  atomic.Int64
	failed     atomic.Int64
	inFlight   atomic.Int64
	durationNs atomic.Int64
	slowestNs  atomic.Int64
	since      atomic.Int64
}

// ServiceStats is a point-in-time copy of ServiceMetrics.
type ServiceStats struct {
	Processed     int64
	Failed        int64
	InFlight      int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Slowest       time.Duration
	Uptime        time.Duration
}

func NewServiceMetrics() *ServiceMetrics {
	m := &ServiceMetrics{}
	m.since.Store(time.Now().UnixNano())
	return m
}

// Begin marks a run as started and returns the func that records its end.
func (m *ServiceMetrics) Begin() func(err error) {
	m.inFlight.Add(1)
	start := time.Now()
	return func(err error) {
		m.inFlight.Add(-1)
		if err != nil {
			m.failed.Add(1)
			return
		}
		d := int64(time.Since(start))
		m.processed.Add(1)
		m.durationNs.Add(d)
		for {
			cur := m.slowestNs.Load()
			if d <= cur || m.slowestNs.CompareAndSwap(cur, d) {
				break
			}
		}
	}
}

func (m *ServiceMetrics) Snapshot() ServiceStats {
	st := ServiceStats{
		Processed: m.processed.Load(),
		Failed:    m.failed.Load(),
		InFlight:  m.inFlight.Load(),
		Slowest:   time.Duration(m.slowestNs.Load()),
		Uptime:    time.Since(time.Unix(0, m.since.Load())),
	}
	if secs := st.Uptime.Seconds(); secs > 0 {
		st.RatePerSecond = float64(st.Processed) / secs
	}
	if st.Processed > 0 {
		st.AvgDuration = time.Duration(m.durationNs.Load() / st.Processed)
	}
	return st
}

func (m *ServiceMetrics) Reset() {
	m.processed.Store(0)
	m.failed.Store(0)
	m.durationNs.Store(0)
	m.slowestNs.Store(0)
	m.since.Store(time.Now().UnixNano())
}
