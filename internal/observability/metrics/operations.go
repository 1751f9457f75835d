package metrics

import (
	"fmt"
	"strings"
	"sync"

	xerrors "AgentVault/internal/errors"
)

// Gauge reports a value sampled at scrape time.
type Gauge struct {
	Name  string
	Help  string
	Value func() float64
}

type registry struct {
	http       *httpCollector
	operations *counterVec

	gaugeMu sync.RWMutex
	gauges  []Gauge
}

var defaultRegistry = newRegistry()

func newRegistry() *registry {
	r := &registry{http: newHTTPCollector()}
	r.operations = newCounterVec("agentvault_ledger_operations_total",
		"Ledger and directory operations by outcome code.", "operation", "code")
	return r
}

// ObserveOperation counts one ledger or directory operation by its outcome
// code. Successful calls are counted under code "OK".
func ObserveOperation(operation string, err error) {
	code := "OK"
	if err != nil {
		code = string(xerrors.CodeOf(err))
	}
	defaultRegistry.operations.inc(operation, code)
}

// OperationCount returns the number of observations recorded for the pair.
func OperationCount(operation, code string) uint64 {
	return defaultRegistry.operations.get(operation, code)
}

// RegisterGauge adds a gauge to the exposition. A gauge with the same name
// replaces the earlier registration.
func RegisterGauge(g Gauge) {
	if g.Name == "" || g.Value == nil {
		return
	}
	defaultRegistry.gaugeMu.Lock()
	defer defaultRegistry.gaugeMu.Unlock()
	for i := range defaultRegistry.gauges {
		if defaultRegistry.gauges[i].Name == g.Name {
			defaultRegistry.gauges[i] = g
			return
		}
	}
	defaultRegistry.gauges = append(defaultRegistry.gauges, g)
}

// Render returns every collector in Prometheus text format.
func Render() string {
	var b strings.Builder
	b.Grow(2048)
	defaultRegistry.http.render(&b)
	defaultRegistry.operations.render(&b)

	defaultRegistry.gaugeMu.RLock()
	gauges := append([]Gauge(nil), defaultRegistry.gauges...)
	defaultRegistry.gaugeMu.RUnlock()
	for _, g := range gauges {
		writeHeader(&b, g.Name, g.Help, "gauge")
		fmt.Fprintf(&b, "%s %s\n", g.Name, formatFloat(g.Value()))
	}
	return b.String()
}
