package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// labelSep 不会出现在合法的标签值中。
const labelSep = "\xff"

// counterVec 是按标签值分组的计数器。
type counterVec struct {
	name   string
	help   string
	labels []string

	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec(name, help string, labels ...string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]uint64)}
}

func (c *counterVec) inc(values ...string) {
	key := strings.Join(values, labelSep)
	c.mu.Lock()
	c.values[key]++
	c.mu.Unlock()
}

func (c *counterVec) get(values ...string) uint64 {
	key := strings.Join(values, labelSep)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *counterVec) render(b *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	writeHeader(b, c.name, c.help, "counter")
	for _, key := range sortedKeys(c.values) {
		fmt.Fprintf(b, "%s{%s} %d\n", c.name, labelPairs(c.labels, key), c.values[key])
	}
}

// defaultBuckets 覆盖从几毫秒到数秒的请求耗时。
var defaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

// histogramVec 是按标签值分组的累积直方图。
type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.Mutex
	series map[string]*histogram
}

func newHistogramVec(name, help string, labels ...string) *histogramVec {
	return &histogramVec{name: name, help: help, labels: labels, buckets: defaultBuckets, series: make(map[string]*histogram)}
}

// observe 将 value 计入第一个上界不小于它的桶，渲染时再做累加。
func (h *histogramVec) observe(value float64, values ...string) {
	key := strings.Join(values, labelSep)
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.series[key]
	if s == nil {
		s = &histogram{counts: make([]uint64, len(h.buckets))}
		h.series[key] = s
	}
	s.count++
	s.sum += value
	if idx := sort.SearchFloat64s(h.buckets, value); idx < len(h.buckets) {
		s.counts[idx]++
	}
}

func (h *histogramVec) render(b *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()

	writeHeader(b, h.name, h.help, "histogram")
	for _, key := range sortedKeys(h.series) {
		s := h.series[key]
		pairs := labelPairs(h.labels, key)
		var cumulative uint64
		for idx, bound := range h.buckets {
			cumulative += s.counts[idx]
			fmt.Fprintf(b, "%s_bucket{%s,le=\"%s\"} %d\n", h.name, pairs, formatFloat(bound), cumulative)
		}
		fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", h.name, pairs, s.count)
		fmt.Fprintf(b, "%s_sum{%s} %s\n", h.name, pairs, formatFloat(s.sum))
		fmt.Fprintf(b, "%s_count{%s} %d\n", h.name, pairs, s.count)
	}
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func labelPairs(names []string, key string) string {
	values := strings.Split(key, labelSep)
	pairs := make([]string, 0, len(names))
	for i, name := range names {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		pairs = append(pairs, name+"=\""+escape(value)+"\"")
	}
	return strings.Join(pairs, ",")
}

func escape(value string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(value)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
