// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package noise collects per-stage measurements (decryption noise in bits,
// timings in milliseconds) and summarizes them.
package noise

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/montanaflynn/stats"
)

// Summary describes a series of measurements
type Summary struct {
	Count  int
	Mean   float64
	Median float64
	StdDev float64
	Max    float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d, mean=%.3f, std=%.3f, median=%.3f, max=%.3f", s.Count, s.Mean, s.StdDev, s.Median, s.Max)
}

// Summarize computes the summary of values.
func Summarize(values []float64) (s Summary, err error) {
	data := stats.Float64Data(values)
	s.Count = data.Len()
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return s, err
	}
	if s.StdDev, err = stats.StandardDeviation(data); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return s, err
	}
	return s, nil
}

// Histogram counts values in buckets of the given width starting at
// floor(min/width)*width. Labels are the bucket lower bounds.
func Histogram(values []float64, width float64) (labels []string, counts []int) {
	if len(values) == 0 || width <= 0 {
		return nil, nil
	}
	lo, _ := stats.Min(values)
	hi, _ := stats.Max(values)
	start := math.Floor(lo/width) * width
	n := int(math.Floor((hi-start)/width)) + 1

	counts = make([]int, n)
	for _, v := range values {
		counts[int(math.Floor((v-start)/width))]++
	}
	labels = make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.1f", start+float64(i)*width)
	}
	return labels, counts
}

// Recorder accumulates named series. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	series map[string][]float64
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{series: make(map[string][]float64)}
}

// Add appends values to the named series
func (r *Recorder) Add(name string, values ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series[name] = append(r.series[name], values...)
}

// Values returns a copy of the named series
func (r *Recorder) Values(name string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.series[name]...)
}

// Names returns the series names in lexical order
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries summarizes every non-empty series
func (r *Recorder) Summaries() (map[string]Summary, error) {
	out := make(map[string]Summary)
	for _, name := range r.Names() {
		s, err := Summarize(r.Values(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}
