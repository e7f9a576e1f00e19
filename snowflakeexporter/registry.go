// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package snowflakeexporter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricSample is one labeled value produced from one result row.
type MetricSample struct {
	Metric      string
	LabelValues []string
	Value       float64
}

func (s MetricSample) key() string {
	return strings.Join(s.LabelValues, "\xff")
}

type gaugeFamily struct {
	def     MetricDefinition
	desc    *prometheus.Desc
	samples map[string]MetricSample
}

// Registry holds the last written value of every catalog gauge. It is read
// by the scrape handler through the prometheus.Collector interface while
// the collection loop writes to it.
type Registry struct {
	mu       sync.RWMutex
	families map[string]*gaugeFamily
	order    []string
}

var _ prometheus.Collector = (*Registry)(nil)

func NewRegistry(defs []MetricDefinition) (*Registry, error) {
	r := &Registry{
		families: make(map[string]*gaugeFamily, len(defs)),
	}
	for _, def := range defs {
		if _, dup := r.families[def.Name]; dup {
			return nil, fmt.Errorf("metric %s defined twice", def.Name)
		}
		r.families[def.Name] = &gaugeFamily{
			def:     def,
			desc:    prometheus.NewDesc(def.Name, def.Help, def.Labels, nil),
			samples: make(map[string]MetricSample),
		}
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Replace clears metric and sets it to exactly samples. The swap happens
// under the write lock, so a concurrent Collect sees either the previous
// label-tuple map or the new one. Invalid input leaves the metric unchanged.
func (r *Registry) Replace(metric string, samples []MetricSample) error {
	r.mu.RLock()
	fam, ok := r.families[metric]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown metric %s", metric)
	}

	next := make(map[string]MetricSample, len(samples))
	for _, s := range samples {
		if len(s.LabelValues) != len(fam.def.Labels) {
			return fmt.Errorf("%s: got %d label values, want %d", metric, len(s.LabelValues), len(fam.def.Labels))
		}
		for i, v := range s.LabelValues {
			if v == "" {
				return fmt.Errorf("%s: empty value for label %s", metric, fam.def.Labels[i])
			}
			if !utf8.ValidString(v) {
				return fmt.Errorf("%s: value %q for label %s is not valid UTF-8", metric, v, fam.def.Labels[i])
			}
		}
		s.Metric = metric
		s.LabelValues = append([]string(nil), s.LabelValues...)
		next[s.key()] = s
	}

	r.mu.Lock()
	fam.samples = next
	r.mu.Unlock()
	return nil
}

// Samples returns a copy of metric's current samples ordered by label values.
func (r *Registry) Samples(metric string) []MetricSample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fam, ok := r.families[metric]
	if !ok {
		return nil
	}
	return sortedSamples(fam.samples)
}

// Snapshot copies every metric's samples.
func (r *Registry) Snapshot() map[string][]MetricSample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]MetricSample, len(r.families))
	for name, fam := range r.families {
		out[name] = sortedSamples(fam.samples)
	}
	return out
}

func sortedSamples(m map[string]MetricSample) []MetricSample {
	out := make([]MetricSample, 0, len(m))
	for _, s := range m {
		s.LabelValues = append([]string(nil), s.LabelValues...)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	for _, name := range r.order {
		ch <- r.families[name].desc
	}
}

func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	type pending struct {
		desc    *prometheus.Desc
		samples []MetricSample
	}

	r.mu.RLock()
	batch := make([]pending, 0, len(r.order))
	for _, name := range r.order {
		fam := r.families[name]
		samples := make([]MetricSample, 0, len(fam.samples))
		for _, s := range fam.samples {
			samples = append(samples, s)
		}
		batch = append(batch, pending{desc: fam.desc, samples: samples})
	}
	r.mu.RUnlock()

	for _, p := range batch {
		for _, s := range p.samples {
			m, err := prometheus.NewConstMetric(p.desc, prometheus.GaugeValue, s.Value, s.LabelValues...)
			if err != nil {
				m = prometheus.NewInvalidMetric(p.desc, err)
			}
			ch <- m
		}
	}
}
