package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector tracks coordinator activity for one cluster
type StatsCollector struct {
	StartTime          time.Time
	AdmissionsAccepted uint64
	AdmissionsDenied   uint64
	AdmissionFaults    uint64
	RecordsEnqueued    uint64
	RecordsPersisted   uint64
	RecordsLost        uint64
	ForwardsDelivered  uint64
	ForwardsFailed     uint64
	lastUpdate         atomic.Int64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	s := &StatsCollector{
		StartTime: time.Now(),
	}
	s.touch()
	return s
}

func (s *StatsCollector) touch() {
	s.lastUpdate.Store(time.Now().UnixNano())
}

// LastUpdate returns the time of the most recent counter change
func (s *StatsCollector) LastUpdate() time.Time {
	return time.Unix(0, s.lastUpdate.Load())
}

func (s *StatsCollector) IncAccepted() {
	atomic.AddUint64(&s.AdmissionsAccepted, 1)
	s.touch()
}

func (s *StatsCollector) IncDenied() {
	atomic.AddUint64(&s.AdmissionsDenied, 1)
	s.touch()
}

func (s *StatsCollector) IncFaults() {
	atomic.AddUint64(&s.AdmissionFaults, 1)
	s.touch()
}

func (s *StatsCollector) IncEnqueued() {
	atomic.AddUint64(&s.RecordsEnqueued, 1)
	s.touch()
}

func (s *StatsCollector) AddPersisted(n int) {
	atomic.AddUint64(&s.RecordsPersisted, uint64(n))
	s.touch()
}

func (s *StatsCollector) AddLost(n int) {
	atomic.AddUint64(&s.RecordsLost, uint64(n))
	s.touch()
}

func (s *StatsCollector) IncForwardsDelivered() {
	atomic.AddUint64(&s.ForwardsDelivered, 1)
	s.touch()
}

func (s *StatsCollector) IncForwardsFailed() {
	atomic.AddUint64(&s.ForwardsFailed, 1)
	s.touch()
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":              uptime.String(),
		"admissions_accepted": atomic.LoadUint64(&s.AdmissionsAccepted),
		"admissions_denied":   atomic.LoadUint64(&s.AdmissionsDenied),
		"admission_faults":    atomic.LoadUint64(&s.AdmissionFaults),
		"records_enqueued":    atomic.LoadUint64(&s.RecordsEnqueued),
		"records_persisted":   atomic.LoadUint64(&s.RecordsPersisted),
		"records_lost":        atomic.LoadUint64(&s.RecordsLost),
		"forwards_delivered":  atomic.LoadUint64(&s.ForwardsDelivered),
		"forwards_failed":     atomic.LoadUint64(&s.ForwardsFailed),
		"last_update":         s.LastUpdate(),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates accepted admissions per second since start
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.AdmissionsAccepted)) / uptime
}
