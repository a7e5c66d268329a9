// Package metrics exposes engine counters to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(engine, "app"))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/xbus"
)

// Source is the part of *xbus.Engine the collector reads.
type Source interface {
	Stats() xbus.Stats
	Threshold() xbus.Level
	Backlog() int
	Listeners() []xbus.Listener
}

type counter struct {
	desc  *prometheus.Desc
	value func(xbus.Stats) uint64
}

// Collector implements prometheus.Collector. Values are read at scrape time,
// so publishing never touches Prometheus.
type Collector struct {
	src       Source
	counters  []counter
	backlog   *prometheus.Desc
	threshold *prometheus.Desc
	listeners *prometheus.Desc
}

// NewCollector describes src under namespace (may be empty).
func NewCollector(src Source, namespace string) *Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "xbus", n) }
	c := func(n, help string, v func(xbus.Stats) uint64) counter {
		return counter{desc: prometheus.NewDesc(name(n), help, nil, nil), value: v}
	}
	return &Collector{
		src: src,
		counters: []counter{
			c("published_total", "Events accepted into the broadcast buffer.", func(s xbus.Stats) uint64 { return s.Published }),
			c("rejected_total", "Events below the global threshold.", func(s xbus.Stats) uint64 { return s.Rejected }),
			c("ignored_total", "Events dropped for an ignored tag.", func(s xbus.Stats) uint64 { return s.Ignored }),
			c("overflowed_total", "Events delayed because the buffer was full.", func(s xbus.Stats) uint64 { return s.Overflowed }),
			c("spilled_total", "Events moved to a stalled listener's private queue.", func(s xbus.Stats) uint64 { return s.Spilled }),
			c("filter_evaluations_total", "Listener filter evaluations.", func(s xbus.Stats) uint64 { return s.FilterEvaluations }),
			c("filtered_out_total", "Events a listener filter rejected.", func(s xbus.Stats) uint64 { return s.FilteredOut }),
			c("delivered_total", "Successful listener writes.", func(s xbus.Stats) uint64 { return s.Delivered }),
			c("write_errors_total", "Listener writes that failed or panicked.", func(s xbus.Stats) uint64 { return s.WriteErrors }),
			c("panics_total", "Recovered listener panics.", func(s xbus.Stats) uint64 { return s.Panics }),
			c("start_errors_total", "Listener start hooks that failed.", func(s xbus.Stats) uint64 { return s.StartErrors }),
		},
		backlog:   prometheus.NewDesc(name("backlog"), "Events waiting for buffer space.", nil, nil),
		threshold: prometheus.NewDesc(name("threshold"), "Current global level threshold weight.", nil, nil),
		listeners: prometheus.NewDesc(name("listeners"), "Registered listeners by enabled state.", []string{"enabled"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, k := range c.counters {
		ch <- k.desc
	}
	ch <- c.backlog
	ch <- c.threshold
	ch <- c.listeners
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	for _, k := range c.counters {
		ch <- prometheus.MustNewConstMetric(k.desc, prometheus.CounterValue, float64(k.value(s)))
	}
	ch <- prometheus.MustNewConstMetric(c.backlog, prometheus.GaugeValue, float64(c.src.Backlog()))
	ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, float64(c.src.Threshold()))

	var on, off int
	for _, l := range c.src.Listeners() {
		if l.Filter().Enabled() {
			on++
		} else {
			off++
		}
	}
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(on), "true")
	ch <- prometheus.MustNewConstMetric(c.listeners, prometheus.GaugeValue, float64(off), "false")
}
