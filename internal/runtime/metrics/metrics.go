// Package metrics tracks discovery and consumption statistics, both as
// Prometheus collectors and as an in-process snapshot for the status endpoint.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dynsub"

// Discovery entry outcomes.
const (
	OutcomeInvalid  = "invalid"
	OutcomeBadName  = "bad_name"
	OutcomeNoMatch  = "no_match"
	OutcomeMatched  = "matched"
	ValidityValid   = "valid"
	ValidityInvalid = "invalid"
)

// Metrics collects dynsub statistics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	mu sync.RWMutex

	snapshot Snapshot

	entriesTotal        *prometheus.CounterVec
	resolveFailures     *prometheus.CounterVec
	topicCreateFailures prometheus.Counter
	topicsFound         prometheus.Counter
	discoveryState      *prometheus.GaugeVec
	samplesTotal        *prometheus.CounterVec
	consumeErrors       *prometheus.CounterVec
	samplesDropped      prometheus.Counter

	registerer prometheus.Registerer
	registered bool
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	DiscoveryState      string    `json:"discovery_state"`
	EntriesSeen         uint64    `json:"entries_seen"`
	EntriesInvalid      uint64    `json:"entries_invalid"`
	EntriesMatched      uint64    `json:"entries_matched"`
	ResolveFailures     uint64    `json:"resolve_failures"`
	TopicCreateFailures uint64    `json:"topic_create_failures"`
	TopicsFound         uint64    `json:"topics_found"`
	SamplesValid        uint64    `json:"samples_valid"`
	SamplesInvalid      uint64    `json:"samples_invalid"`
	ConsumeErrors       uint64    `json:"consume_errors"`
	SamplesDropped      uint64    `json:"samples_dropped"`
	LastSampleAt        time.Time `json:"last_sample_at,omitempty"`
	CollectedAt         time.Time `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the collectors. They are exported only after Register.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:          registerer,
		entriesTotal:        newCounterVec("discovery", "entries_total", "Discovery entries taken from the built-in publications stream", []string{"outcome"}),
		resolveFailures:     newCounterVec("discovery", "resolve_failures_total", "Type descriptor resolution attempts that failed", []string{"reason"}),
		topicCreateFailures: newCounter("discovery", "topic_create_failures_total", "Topic creations that failed after a successful resolution"),
		topicsFound:         newCounter("discovery", "topics_found_total", "Topics created by the discovery loop"),
		discoveryState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "state",
			Help:      "Current discovery loop state (1 for the active state)",
		}, []string{"state"}),
		samplesTotal:   newCounterVec("reader", "samples_total", "Samples taken by the consumption loop", []string{"validity"}),
		consumeErrors:  newCounterVec("reader", "errors_total", "Take and loan return failures", []string{"op"}),
		samplesDropped: newCounter("reader", "samples_dropped_total", "Samples overwritten in the reader history before being taken"),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.entriesTotal,
		m.resolveFailures,
		m.topicCreateFailures,
		m.topicsFound,
		m.discoveryState,
		m.samplesTotal,
		m.consumeErrors,
		m.samplesDropped,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// SetDiscoveryState marks state as active among all known states.
func (m *Metrics) SetDiscoveryState(state string, all []string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.DiscoveryState = state
	m.mu.Unlock()

	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		m.discoveryState.WithLabelValues(s).Set(value)
	}
}

// RecordEntry counts one discovery entry with its outcome.
func (m *Metrics) RecordEntry(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.EntriesSeen++
	switch outcome {
	case OutcomeInvalid:
		m.snapshot.EntriesInvalid++
	case OutcomeMatched:
		m.snapshot.EntriesMatched++
	}
	m.mu.Unlock()

	m.entriesTotal.WithLabelValues(outcome).Inc()
}

// RecordResolveFailure counts a failed resolution attempt.
func (m *Metrics) RecordResolveFailure(reason string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.ResolveFailures++
	m.mu.Unlock()

	m.resolveFailures.WithLabelValues(reason).Inc()
}

// RecordTopicCreateFailure counts a failed topic creation.
func (m *Metrics) RecordTopicCreateFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.TopicCreateFailures++
	m.mu.Unlock()

	m.topicCreateFailures.Inc()
}

// RecordTopicFound counts a topic created by discovery.
func (m *Metrics) RecordTopicFound() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.TopicsFound++
	m.mu.Unlock()

	m.topicsFound.Inc()
}

// RecordSample counts one taken sample.
func (m *Metrics) RecordSample(valid bool) {
	if m == nil {
		return
	}
	validity := ValidityInvalid
	m.mu.Lock()
	if valid {
		validity = ValidityValid
		m.snapshot.SamplesValid++
		m.snapshot.LastSampleAt = time.Now()
	} else {
		m.snapshot.SamplesInvalid++
	}
	m.mu.Unlock()

	m.samplesTotal.WithLabelValues(validity).Inc()
}

// RecordConsumeError counts a take or loan return failure.
func (m *Metrics) RecordConsumeError(op string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.ConsumeErrors++
	m.mu.Unlock()

	m.consumeErrors.WithLabelValues(op).Inc()
}

// SetSamplesDropped publishes the reader's cumulative drop count.
func (m *Metrics) SetSamplesDropped(total uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delta := uint64(0)
	if total > m.snapshot.SamplesDropped {
		delta = total - m.snapshot.SamplesDropped
		m.snapshot.SamplesDropped = total
	}
	m.mu.Unlock()

	if delta > 0 {
		m.samplesDropped.Add(float64(delta))
	}
}

// Snapshot returns a copy of the in-process counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{CollectedAt: time.Now()}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.CollectedAt = time.Now()
	return snap
}
