package engine

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/caio/go-tdigest/v4"
)

// EngineMetrics holds the expvar counters of one StorageEngine.
type EngineMetrics struct {
	PublishedGlobally bool

	LogEventTotal       *expvar.Int
	LogEventErrorsTotal *expvar.Int
	RemoveEventTotal    *expvar.Int
	InitializeTotal     *expvar.Int
	DeinitializeTotal   *expvar.Int
	QueryTotal          *expvar.Int
	QueryErrorsTotal    *expvar.Int
	ScannedKeysTotal    *expvar.Int
	CorruptionTotal     *expvar.Int

	TentativeOpen           *expvar.Int
	TentativeConfirmedTotal *expvar.Int
	TentativeRetractedTotal *expvar.Int

	LogEventLatencyHist *expvar.Map
	QueryLatencyHist    *expvar.Map

	queryDigest *latencyDigest
}

// NewEngineMetrics creates the counters. With publishGlobally they are
// registered in the expvar namespace under prefix; otherwise they are private,
// which is what tests want.
func NewEngineMetrics(publishGlobally bool, prefix string) *EngineMetrics {
	var newIntFunc func(string) *expvar.Int
	var newMapFunc func(string) *expvar.Map

	if publishGlobally {
		newIntFunc = publishExpvarInt
		newMapFunc = publishExpvarMap
	} else {
		newIntFunc = func(_ string) *expvar.Int { return new(expvar.Int) }
		newMapFunc = func(_ string) *expvar.Map {
			m := new(expvar.Map)
			m.Init()
			return m
		}
	}

	em := &EngineMetrics{
		PublishedGlobally:   publishGlobally,
		LogEventTotal:       newIntFunc(prefix + "log_event_total"),
		LogEventErrorsTotal: newIntFunc(prefix + "log_event_errors_total"),
		RemoveEventTotal:    newIntFunc(prefix + "remove_event_total"),
		InitializeTotal:     newIntFunc(prefix + "initialize_total"),
		DeinitializeTotal:   newIntFunc(prefix + "deinitialize_total"),
		QueryTotal:          newIntFunc(prefix + "query_total"),
		QueryErrorsTotal:    newIntFunc(prefix + "query_errors_total"),
		ScannedKeysTotal:    newIntFunc(prefix + "scanned_keys_total"),
		CorruptionTotal:     newIntFunc(prefix + "corruption_total"),

		TentativeOpen:           newIntFunc(prefix + "tentative_open"),
		TentativeConfirmedTotal: newIntFunc(prefix + "tentative_confirmed_total"),
		TentativeRetractedTotal: newIntFunc(prefix + "tentative_retracted_total"),

		LogEventLatencyHist: newMapFunc(prefix + "log_event_latency_seconds"),
		QueryLatencyHist:    newMapFunc(prefix + "query_latency_seconds"),

		queryDigest: newLatencyDigest(),
	}

	for _, m := range []*expvar.Map{em.LogEventLatencyHist, em.QueryLatencyHist} {
		m.Set("count", new(expvar.Int))
		m.Set("sum", new(expvar.Float))
		for _, b := range latencyBuckets {
			m.Set(fmt.Sprintf("le_%.3f", b), new(expvar.Int))
		}
		m.Set("le_inf", new(expvar.Int))
	}

	if publishGlobally {
		publishExpvarFunc(prefix+"query_latency_quantiles", func() interface{} {
			return em.QueryLatencyQuantiles()
		})
	}
	return em
}

// QueryLatencyQuantiles returns p50/p90/p99 scan latency in seconds.
func (em *EngineMetrics) QueryLatencyQuantiles() map[string]float64 {
	return map[string]float64{
		"p50": em.queryDigest.Quantile(0.50),
		"p90": em.queryDigest.Quantile(0.90),
		"p99": em.queryDigest.Quantile(0.99),
	}
}

func (em *EngineMetrics) observeQuery(seconds float64) {
	observeLatency(em.QueryLatencyHist, seconds)
	em.queryDigest.Add(seconds)
}

// latencyDigest is a mutex-guarded t-digest; TDigest itself is not safe for
// concurrent use.
type latencyDigest struct {
	mu sync.Mutex
	td *tdigest.TDigest
}

func newLatencyDigest() *latencyDigest {
	td, err := tdigest.New()
	if err != nil {
		// Only fails on invalid options, and none are passed.
		panic(fmt.Sprintf("tdigest.New failed: %v", err))
	}
	return &latencyDigest{td: td}
}

func (d *latencyDigest) Add(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.td.AddWeighted(v, 1)
}

func (d *latencyDigest) Quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.td.Count() == 0 {
		return 0
	}
	return d.td.Quantile(q)
}
