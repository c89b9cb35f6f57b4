// Copyright © 2018 One Concern

// Package metrics records opencensus measurements for the crawler.
//
// Measures are declared once, at package level, with NewCounter or NewLatency:
// each declaration registers a view aggregating the measure by the given tag keys.
// Recording goes through Inc, Int64 and Since, which accept ad-hoc tag maps.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	initOnce sync.Once
	mu       sync.Mutex
	mp       = defaultSettings()

	// latencyBuckets in milliseconds
	latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
)

type settings struct {
	contexter func() context.Context
	exporter  view.Exporter
	d         time.Duration
	allViews  []*view.View
}

func defaultSettings() *settings {
	return &settings{
		contexter: context.Background,
		d:         10 * time.Second,
	}
}

// Init global settings for metrics collection, such as the exporter.
//
// Init may be called multiple times: only the first time matters.
func Init(opts ...Option) {
	initOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, apply := range opts {
			apply(mp)
		}
		if mp.exporter != nil {
			view.RegisterExporter(mp.exporter)
			if mp.d >= time.Second {
				view.SetReportingPeriod(mp.d)
			}
		}
	})
}

// Flush collects all remaining data for registered views and exports them
func Flush() {
	mu.Lock()
	exporter := mp.exporter
	views := append([]*view.View(nil), mp.allViews...)
	mu.Unlock()
	if exporter == nil {
		return
	}
	for _, v := range views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue // ignore errors when pushing metrics
		}
		exporter.ExportView(&view.Data{
			View:  v,
			Start: time.Now(),
			End:   time.Now(),
			Rows:  rows,
		})
	}
}

// NewCounter declares a counter measure, with a sum view grouped by tag keys
func NewCounter(name, description string, tagKeys ...string) *stats.Int64Measure {
	m := stats.Int64(name, description, stats.UnitDimensionless)
	register(&view.View{
		Name:        name,
		Description: description,
		Measure:     m,
		TagKeys:     keys(tagKeys),
		Aggregation: view.Sum(),
	})
	return m
}

// NewLatency declares a timing measure in milliseconds, with a distribution view grouped by tag keys
func NewLatency(name, description string, tagKeys ...string) *stats.Float64Measure {
	m := stats.Float64(name, description, stats.UnitMilliseconds)
	register(&view.View{
		Name:        name,
		Description: description,
		Measure:     m,
		TagKeys:     keys(tagKeys),
		Aggregation: view.Distribution(latencyBuckets...),
	})
	return m
}

// Inc increments a counter-like metric
func Inc(counter *stats.Int64Measure, tags ...map[string]string) {
	_ = stats.RecordWithTags(contexter(), mergeTags(tags), counter.M(1))
}

// Int64 sets a value to a measurement
func Int64(measure *stats.Int64Measure, value int64, tags ...map[string]string) {
	_ = stats.RecordWithTags(contexter(), mergeTags(tags), measure.M(value))
}

// Since feeds a millisecs timing measurement from some start time
func Since(start time.Time, measure *stats.Float64Measure, tags ...map[string]string) {
	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	_ = stats.RecordWithTags(contexter(), mergeTags(tags), measure.M(ms))
}

func contexter() context.Context {
	mu.Lock()
	defer mu.Unlock()
	return mp.contexter()
}

func register(v *view.View) {
	if err := view.Register(v); err != nil {
		// a view with the same name and definition is a no-op, anything else is a programming error
		panic(err)
	}
	mu.Lock()
	mp.allViews = append(mp.allViews, v)
	mu.Unlock()
}

func keys(names []string) []tag.Key {
	result := make([]tag.Key, 0, len(names))
	for _, n := range names {
		result = append(result, tag.MustNewKey(n))
	}
	return result
}

// mergeTags adds some dynamically defined tags to a single measurement
func mergeTags(extras []map[string]string) []tag.Mutator {
	mutators := make([]tag.Mutator, 0, 10)
	for _, extra := range extras {
		for k, v := range extra {
			mutators = append(mutators, tag.Upsert(tag.MustNewKey(k), v))
		}
	}
	return mutators
}
