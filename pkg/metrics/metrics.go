// Package metrics collects pipeline instrumentation in a prometheus registry
// that can be dumped to a textfile after a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass names used as label values.
const (
	PassVolume    = "volume"
	PassBlocks    = "blocks"
	PassRelevance = "relevance"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	reg *prometheus.Registry

	bytesRead    *prometheus.CounterVec
	bytesWritten prometheus.Counter
	buffers      *prometheus.CounterVec
	highWater    *prometheus.GaugeVec
	passDuration *prometheus.HistogramVec
	emptyBlocks  *prometheus.GaugeVec
	runs         *prometheus.CounterVec
}

// New registers the pipeline collectors with reg. A nil reg gets a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		bytesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpreproc_bytes_read_total",
				Help: "Bytes read from input files, by pass.",
			},
			[]string{"pass"},
		),
		bytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "volpreproc_relevance_bytes_written_total",
				Help: "Bytes written to the relevance map.",
			},
		),
		buffers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpreproc_buffers_processed_total",
				Help: "Buffers run through the reductions, by pass.",
			},
			[]string{"pass"},
		),
		highWater: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volpreproc_pool_high_water_buffers",
				Help: "Largest number of buffers of a pool in use at once.",
			},
			[]string{"pool"},
		),
		passDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volpreproc_pass_duration_seconds",
				Help:    "Wall time of each streaming pass.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"pass"},
		),
		emptyBlocks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volpreproc_empty_blocks",
				Help: "Blocks classified empty, by block count.",
			},
			[]string{"blocks"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpreproc_runs_total",
				Help: "Pipeline runs, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// PassTimer starts timing pass. Call ObserveDuration on the result when the
// pass ends.
func (m *Metrics) PassTimer(pass string) *prometheus.Timer {
	return prometheus.NewTimer(m.passDuration.WithLabelValues(pass))
}

func (m *Metrics) AddBytesRead(pass string, n uint64) {
	m.bytesRead.WithLabelValues(pass).Add(float64(n))
}

func (m *Metrics) AddBytesWritten(n uint64) {
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) BufferProcessed(pass string) {
	m.buffers.WithLabelValues(pass).Inc()
}

// ObserveHighWater raises the pool's high-water gauge to n if n is larger.
func (m *Metrics) ObserveHighWater(pool string, n int) {
	g := m.highWater.WithLabelValues(pool)
	if cur := gaugeValue(g); float64(n) > cur {
		g.Set(float64(n))
	}
}

// HighWater returns the recorded high-water mark of pool.
func (m *Metrics) HighWater(pool string) float64 {
	return gaugeValue(m.highWater.WithLabelValues(pool))
}

// BytesWritten returns the bytes written to the relevance map so far.
func (m *Metrics) BytesWritten() float64 {
	return counterValue(m.bytesWritten)
}

func (m *Metrics) SetEmptyBlocks(blocks string, n int) {
	m.emptyBlocks.WithLabelValues(blocks).Set(float64(n))
}

// RunFinished counts a run as "ok" or "failed".
func (m *Metrics) RunFinished(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes every registered metric to path in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
