package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mqtt_cluster"

// Metrics holds the prometheus collectors shared by the coordinator,
// the peer publisher and the storage layer.
type Metrics struct {
	admissionsTotal   *prometheus.CounterVec
	recordsEnqueued   *prometheus.CounterVec
	flushBatchesTotal *prometheus.CounterVec
	recordsPersisted  *prometheus.CounterVec
	recordsLost       *prometheus.CounterVec
	forwardsTotal     *prometheus.CounterVec
	flushDuration     prometheus.Histogram
	brokersRegistered *prometheus.GaugeVec
	queueDepth        *prometheus.GaugeVec
	coordinators      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Admission decisions by operation and result",
		}, []string{"operation", "result"}),
		recordsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_enqueued_total",
			Help:      "Records queued for persistence by kind",
		}, []string{"kind"}),
		flushBatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_batches_total",
			Help:      "Batches handed to repositories by kind and result",
		}, []string{"kind", "result"}),
		recordsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_persisted_total",
			Help:      "Records persisted by kind",
		}, []string{"kind"}),
		recordsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_lost_total",
			Help:      "Records discarded after a failed batch insert by kind",
		}, []string{"kind"}),
		forwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwards_total",
			Help:      "Publishes forwarded to peer brokers by result",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of one flush cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		brokersRegistered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brokers_registered",
			Help:      "Peer brokers currently registered per cluster",
		}, []string{"cluster"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Records waiting for the next flush per cluster and kind",
		}, []string{"cluster", "kind"}),
		coordinators: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordinators_active",
			Help:      "Coordinators currently activated",
		}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.admissionsTotal,
			m.recordsEnqueued,
			m.flushBatchesTotal,
			m.recordsPersisted,
			m.recordsLost,
			m.forwardsTotal,
			m.flushDuration,
			m.brokersRegistered,
			m.queueDepth,
			m.coordinators,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// IncAdmissions counts one admission decision; result is accepted, denied or fault
func (m *Metrics) IncAdmissions(operation, result string) {
	m.admissionsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncRecordsEnqueued(kind string) {
	m.recordsEnqueued.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncFlushBatches(kind, result string) {
	m.flushBatchesTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) AddRecordsPersisted(kind string, n int) {
	m.recordsPersisted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) AddRecordsLost(kind string, n int) {
	m.recordsLost.WithLabelValues(kind).Add(float64(n))
}

// IncForwards counts one peer delivery; result is success or error
func (m *Metrics) IncForwards(result string) {
	m.forwardsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveFlushDuration(d time.Duration) {
	m.flushDuration.Observe(d.Seconds())
}

func (m *Metrics) SetBrokersRegistered(cluster string, n int) {
	m.brokersRegistered.WithLabelValues(cluster).Set(float64(n))
}

func (m *Metrics) SetQueueDepth(cluster, kind string, n int) {
	m.queueDepth.WithLabelValues(cluster, kind).Set(float64(n))
}

func (m *Metrics) SetCoordinatorsActive(n int) {
	m.coordinators.Set(float64(n))
}

// Source reports gauge values when the collector samples it
type Source func(m *Metrics)

// MetricsCollector periodically samples registered sources into gauges
type MetricsCollector struct {
	metrics  *Metrics
	interval time.Duration
	sources  []Source
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

func NewMetricsCollector(m *Metrics, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		metrics:  m,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// AddSource registers a gauge source; safe to call before or after Start
func (c *MetricsCollector) AddSource(src Source) {
	c.mu.Lock()
	c.sources = append(c.sources, src)
	c.mu.Unlock()
}

func (c *MetricsCollector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stop:
				return
			}
		}
	}()
}

// Collect samples every source once
func (c *MetricsCollector) Collect() {
	c.mu.Lock()
	sources := make([]Source, len(c.sources))
	copy(sources, c.sources)
	c.mu.Unlock()

	for _, src := range sources {
		src(c.metrics)
	}
}

func (c *MetricsCollector) Stop() {
	close(c.stop)
	c.wg.Wait()
}
