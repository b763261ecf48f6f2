// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/luxfi/transcipher/internal/noise"
)

// ProfileConfig holds profiling configuration
type ProfileConfig struct {
	// CPUProfile enables CPU profiling to the specified file
	CPUProfile string
	// MemProfile enables memory profiling to the specified file
	MemProfile string
}

// Profiler wraps pprof and records stage timings
type Profiler struct {
	config    ProfileConfig
	cpuFile   *os.File
	startTime time.Time
	timings   *noise.Recorder
}

// NewProfiler creates a new profiler with the given configuration
func NewProfiler(config ProfileConfig) *Profiler {
	return &Profiler{config: config, timings: noise.NewRecorder()}
}

// Start begins profiling
func (p *Profiler) Start() error {
	p.startTime = time.Now()

	if p.config.CPUProfile != "" {
		f, err := os.Create(p.config.CPUProfile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		p.cpuFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("start CPU profile: %w", err)
		}
	}

	return nil
}

// Stop ends profiling and writes the profile files
func (p *Profiler) Stop() error {
	log.Printf("Profiling duration: %v", time.Since(p.startTime))

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		p.cpuFile.Close()
		log.Printf("CPU profile written to: %s", p.config.CPUProfile)
	}

	if p.config.MemProfile != "" {
		f, err := os.Create(p.config.MemProfile)
		if err != nil {
			return fmt.Errorf("create memory profile: %w", err)
		}
		defer f.Close()
		runtime.GC() // up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("write memory profile: %w", err)
		}
		log.Printf("Memory profile written to: %s", p.config.MemProfile)
	}

	return nil
}

// Time runs fn and records its duration in milliseconds under stage.
func (p *Profiler) Time(stage string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	d := time.Since(start)
	p.timings.Add(stage, float64(d.Microseconds())/1000)
	log.Printf("%s: %v", stage, d)
	return nil
}

// Timings returns the recorded stage timings
func (p *Profiler) Timings() *noise.Recorder {
	return p.timings
}

// logMemStats logs memory statistics
func logMemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.Printf("Memory: alloc=%d MB, total=%d MB, sys=%d MB, gc=%d",
		m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC)
}
