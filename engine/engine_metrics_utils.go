package engine

import (
	"expvar"
	"fmt"
)

// latencyBuckets are the upper bounds, in seconds, of the cumulative
// latency histograms. Scans are expected to dominate the upper range.
var latencyBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5}

// observeLatency counts one observation in every bucket it fits.
func observeLatency(histMap *expvar.Map, seconds float64) {
	if histMap == nil {
		return
	}
	addInt(histMap, "count", 1)
	if sum, ok := histMap.Get("sum").(*expvar.Float); ok {
		sum.Add(seconds)
	}
	for _, b := range latencyBuckets {
		if seconds <= b {
			addInt(histMap, fmt.Sprintf("le_%.3f", b), 1)
		}
	}
	addInt(histMap, "le_inf", 1)
}

func addInt(m *expvar.Map, key string, delta int64) {
	if v, ok := m.Get(key).(*expvar.Int); ok {
		v.Add(delta)
	}
}

// publishExpvarInt returns the global Int called name, resetting it if a
// previous engine already registered it. Panics on a type clash.
func publishExpvarInt(name string) *expvar.Int {
	switch v := expvar.Get(name).(type) {
	case nil:
		return expvar.NewInt(name)
	case *expvar.Int:
		v.Set(0)
		return v
	default:
		panic(fmt.Sprintf("expvar: %s already published as %T", name, v))
	}
}

// publishExpvarMap is publishExpvarInt for maps. The caller resets the
// sub-keys.
func publishExpvarMap(name string) *expvar.Map {
	switch v := expvar.Get(name).(type) {
	case nil:
		return expvar.NewMap(name)
	case *expvar.Map:
		return v
	default:
		panic(fmt.Sprintf("expvar: %s already published as %T", name, v))
	}
}

// publishExpvarFunc registers f once; later calls keep the first function.
func publishExpvarFunc(name string, f func() interface{}) {
	if expvar.Get(name) != nil {
		return
	}
	expvar.Publish(name, expvar.Func(f))
}
