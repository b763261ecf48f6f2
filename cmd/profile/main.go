// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command profile measures the stages of homomorphic AES transciphering and
// the decryption noise they leave, and writes an HTML report.
//
// Usage:
//
//	go build -o profile ./cmd/profile
//	./profile -size=toy -iterations=4 -report=report.html -cpu=cpu.prof
//
// Analyze profiles:
//
//	go tool pprof -http=:8080 cpu.prof
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/luxfi/lattice/v7/core/rgsw"

	"github.com/luxfi/transcipher"
	"github.com/luxfi/transcipher/internal/aesref"
	"github.com/luxfi/transcipher/internal/harness"
	"github.com/luxfi/transcipher/internal/noise"
)

var (
	cpuProfile = flag.String("cpu", "", "write cpu profile to file")
	memProfile = flag.String("mem", "", "write memory profile to file")
	sizeTag    = flag.String("size", "toy", "parameter size: toy, small or medium")
	seed       = flag.String("seed", "profile", "dataset seed")
	iterations = flag.Int("iterations", 4, "number of iterations of each stage")
	workers    = flag.Int("workers", runtime.GOMAXPROCS(0), "evaluator worker goroutines")
	report     = flag.String("report", "transcipher_profile.html", "HTML report path (empty to skip)")
)

func main() {
	flag.Parse()

	profiler := NewProfiler(ProfileConfig{
		CPUProfile: *cpuProfile,
		MemProfile: *memProfile,
	})
	if err := profiler.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start profiler: %v\n", err)
		os.Exit(1)
	}

	err := run(profiler)
	if stopErr := profiler.Stop(); err == nil {
		err = stopErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// session holds everything the stages share
type session struct {
	params transcipher.Parameters
	ds     *harness.Dataset
	sk     *transcipher.SecretKey
	evk    *transcipher.EvaluationKey
	rk     *transcipher.RoundKeys
	enc    *transcipher.Encryptor
	dec    *transcipher.Decryptor
	eval   *transcipher.Evaluator
	noise  *noise.Recorder
	errors int
}

func run(p *Profiler) error {
	size, err := transcipher.ParseSize(*sizeTag)
	if err != nil {
		return err
	}
	params, err := transcipher.NewParametersForSize(size)
	if err != nil {
		return err
	}
	ds, err := harness.Generate([]byte(*seed))
	if err != nil {
		return err
	}

	log.Printf("Profiling size %s (n=%d, N=%d), %d iterations", size, params.NLWE(), params.N(), *iterations)
	log.Printf("GOMAXPROCS: %d, workers: %d", runtime.GOMAXPROCS(0), *workers)

	s := &session{params: params, ds: ds, noise: noise.NewRecorder()}
	if err := s.keygen(p); err != nil {
		return err
	}

	ctx := context.Background()
	for i := 0; i < *iterations; i++ {
		if err := s.lut(ctx, p, byte(17*i+3)); err != nil {
			return err
		}
	}
	for i := 0; i < *iterations; i++ {
		if err := s.transcipher(ctx, p); err != nil {
			return err
		}
	}

	logMemStats()
	log.Printf("Decryption errors: %d", s.errors)

	timings, err := p.Timings().Summaries()
	if err != nil {
		return err
	}
	for _, name := range p.Timings().Names() {
		log.Printf("time  %-24s %s ms", name, timings[name])
	}
	noises, err := s.noise.Summaries()
	if err != nil {
		return err
	}
	for _, name := range s.noise.Names() {
		log.Printf("noise %-24s %s bits", name, noises[name])
	}

	if *report != "" {
		if err := writeReport(*report, p.Timings(), s.noise); err != nil {
			return err
		}
		log.Printf("Report written to: %s", *report)
	}
	return nil
}

func (s *session) keygen(p *Profiler) error {
	kg := transcipher.NewKeyGenerator(s.params)
	s.sk = kg.GenSecretKey()
	s.enc = transcipher.NewEncryptor(s.params, s.sk)
	s.dec = transcipher.NewDecryptor(s.params, s.sk)

	if err := p.Time("keygen/evaluation-key", func() error {
		s.evk = kg.GenEvaluationKey(s.sk)
		return nil
	}); err != nil {
		return err
	}
	if err := p.Time("keygen/round-keys", func() (err error) {
		s.rk, err = transcipher.GenRoundKeys(s.params, s.sk, s.ds.Key)
		return
	}); err != nil {
		return err
	}
	s.eval = transcipher.NewEvaluator(s.params, s.evk).WithWorkers(*workers)
	return nil
}

func (s *session) recordNoise(stage string, cts []*transcipher.Ciphertext) {
	for _, ct := range cts {
		s.noise.Add(stage, transcipher.NoiseBits(s.dec.Phase(ct), s.params.Q()))
	}
}

// lut bootstraps the bits of v and walks the exit table of byte 0.
func (s *session) lut(ctx context.Context, p *Profiler, v byte) error {
	bits := s.enc.EncryptByte(v)
	s.recordNoise("fresh", bits[:])

	var sel []*rgsw.Ciphertext
	if err := p.Time("cbs/byte", func() (err error) {
		sel, err = s.eval.BitsToGGSW(ctx, bits[:])
		return
	}); err != nil {
		return err
	}

	var selByte [8]*rgsw.Ciphertext
	copy(selByte[:], sel)
	var out [8]*transcipher.Ciphertext
	if err := p.Time("lut/eval", func() (err error) {
		out, err = s.eval.LUT().Eval(&selByte, s.rk.Exit[0])
		return
	}); err != nil {
		return err
	}
	s.recordNoise("lut", out[:])

	k0 := aesref.ExpandKey(s.ds.Key)[0][0]
	if got, want := s.dec.DecryptByte(out), aesref.InvSBox[v]^k0; got != want {
		log.Printf("lut/eval(%#02x) = %#02x, want %#02x", v, got, want)
		s.errors++
	}
	return nil
}

// transcipher runs the full pipeline followed by every workload.
func (s *session) transcipher(ctx context.Context, p *Profiler) error {
	var state *transcipher.State
	if err := p.Time("transcipher", func() (err error) {
		state, err = s.eval.Transcipher(ctx, s.ds.Block[:], s.rk)
		return
	}); err != nil {
		return err
	}
	s.recordNoise("transcipher", state.Bits())
	s.check("transcipher", state.Bits(), s.ds.Expect.Values[:])

	expect := map[transcipher.Workload][]uint16{
		transcipher.WorkloadXORHalves:   s.ds.Expect.XORHalves[:],
		transcipher.WorkloadXORConstant: s.ds.Expect.XORConstant[:],
		transcipher.WorkloadMax:         {s.ds.Expect.Max},
	}
	for _, w := range []transcipher.Workload{transcipher.WorkloadXORHalves, transcipher.WorkloadXORConstant, transcipher.WorkloadMax} {
		bits := make([]*transcipher.Ciphertext, transcipher.StateBits)
		for i, ct := range state.Bits() {
			bits[i] = ct.CopyNew()
		}

		stage := "workload/" + string(w)
		var out []*transcipher.Ciphertext
		if err := p.Time(stage, func() (err error) {
			out, err = s.eval.RunWorkload(ctx, w, bits)
			return
		}); err != nil {
			return err
		}
		s.recordNoise(stage, out)
		s.check(stage, out, expect[w])
	}
	return nil
}

func (s *session) check(stage string, bits []*transcipher.Ciphertext, want []uint16) {
	got, err := harness.DecodeUint16s(s.dec.DecryptBits(bits))
	if err != nil {
		log.Printf("%s: %v", stage, err)
		s.errors++
		return
	}
	for i := range want {
		if got[i] != want[i] {
			log.Printf("%s: value %d = %d, want %d", stage, i, got[i], want[i])
			s.errors++
		}
	}
}

func toBarItems[T int | float64](vals []T) []opts.BarData {
	out := make([]opts.BarData, len(vals))
	for i, v := range vals {
		out[i] = opts.BarData{Value: v}
	}
	return out
}

func newBar(title, subtitle string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "500px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	return bar
}

func writeReport(path string, timings, noises *noise.Recorder) error {
	page := components.NewPage()

	timeSums, err := timings.Summaries()
	if err != nil {
		return err
	}
	names := timings.Names()
	means := make([]float64, len(names))
	for i, name := range names {
		means[i] = timeSums[name].Mean
	}
	bar := newBar("Stage timings", "mean wall time (ms)")
	bar.SetXAxis(names).AddSeries("mean ms", toBarItems(means))
	page.AddCharts(bar)

	for _, name := range noises.Names() {
		values := noises.Values(name)
		sum, err := noise.Summarize(values)
		if err != nil {
			return err
		}
		labels, counts := noise.Histogram(values, 1)
		bar := newBar("Noise: "+name, "log2 distance to encoding, "+sum.String())
		bar.SetXAxis(labels).
			AddSeries("count", toBarItems(counts)).
			SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}))
		page.AddCharts(bar)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
