// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/luxfi/lattice/v7/core/rgsw/blindrot"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
)

// Evaluator evaluates the transciphering circuit on encrypted bits.
// SECURITY: This evaluator does NOT require the secret key.
//
// An Evaluator is not safe for concurrent use. Batch operations take a
// context and spread the work over ShallowCopy instances.
type Evaluator struct {
	params Parameters
	evk    *EvaluationKey

	br    *blindrot.Evaluator
	eval  *rgsw.Evaluator
	lut   *LUTEvaluator
	ringQ *ring.Ring

	// testPolys[k] is the sign test polynomial of populated selector row GGSWRows-CBSLevels+k
	testPolys []ring.Poly

	ssBuf   *rlwe.Ciphertext
	workers int
}

// NewEvaluator creates a new evaluator with the public evaluation key.
func NewEvaluator(params Parameters, evk *EvaluationKey) *Evaluator {
	p := params.paramsGLWE
	ringQ := p.RingQ().AtLevel(p.MaxLevel())

	rows, levels := params.GGSWRows(), params.CBSLevels()
	testPolys := make([]ring.Poly, levels)
	for k := range testPolys {
		// Sign function at scale S_j/2, S_j = 2^(w*j)
		j := rows - levels + k
		half := float64(uint64(1) << (params.GGSWBase()*j - 1))
		testPolys[k] = blindrot.InitTestPolynomial(func(x float64) float64 {
			if x >= 0 {
				return 1
			}
			return -1
		}, rlwe.NewScale(half), ringQ, -1, 1)
	}

	eval := &Evaluator{
		params:    params,
		evk:       evk,
		br:        blindrot.NewEvaluator(params.paramsGLWE, params.paramsLWE),
		eval:      rgsw.NewEvaluator(p, evk.evaluationKeySet()),
		lut:       NewLUTEvaluator(p),
		ringQ:     ringQ,
		testPolys: testPolys,
		workers:   runtime.NumCPU(),
	}
	eval.ssBuf = rlwe.NewCiphertext(p, 1, p.MaxLevel())
	return eval
}

// ShallowCopy returns an evaluator sharing the keys and test polynomials with
// fresh buffers. The receiver and the copy can be used concurrently.
func (eval *Evaluator) ShallowCopy() *Evaluator {
	p := eval.params.paramsGLWE
	return &Evaluator{
		params:    eval.params,
		evk:       eval.evk,
		br:        blindrot.NewEvaluator(eval.params.paramsGLWE, eval.params.paramsLWE),
		eval:      rgsw.NewEvaluator(p, eval.evk.evaluationKeySet()),
		lut:       eval.lut.ShallowCopy(),
		ringQ:     eval.ringQ,
		testPolys: eval.testPolys,
		ssBuf:     rlwe.NewCiphertext(p, 1, p.MaxLevel()),
		workers:   eval.workers,
	}
}

// WithWorkers returns a shallow copy running batch operations on n goroutines.
func (eval *Evaluator) WithWorkers(n int) *Evaluator {
	cp := eval.ShallowCopy()
	if n < 1 {
		n = 1
	}
	cp.workers = n
	return cp
}

// Workers returns the size of the worker pool used by batch operations
func (eval *Evaluator) Workers() int {
	return eval.workers
}

// Parameters returns the parameters of the evaluator
func (eval *Evaluator) Parameters() Parameters {
	return eval.params
}

// LUT returns the LUT evaluator of the accumulator ring
func (eval *Evaluator) LUT() *LUTEvaluator {
	return eval.lut
}

// forEach runs fn(w, i) for i in [0, n) on the worker pool, w being a private
// evaluator of the running goroutine. It returns the first error.
func (eval *Evaluator) forEach(ctx context.Context, n int, fn func(w *Evaluator, i int) error) error {
	workers := eval.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(eval, i); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for k := 0; k < workers; k++ {
		w := eval
		if k > 0 {
			w = eval.ShallowCopy()
		}
		wg.Add(1)
		go func(w *Evaluator) {
			defer wg.Done()
			for i := range jobs {
				if err := fn(w, i); err != nil {
					fail(err)
				}
			}
		}(w)
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// ringOf returns the parameters and ring of the degree of ct: the LWE ring for
// degree n, the GLWE ring otherwise.
func (eval *Evaluator) ringOf(ct *Ciphertext) (rlwe.Parameters, *ring.Ring) {
	p := eval.params.paramsGLWE
	if ct.Value[0].N() == eval.params.NLWE() {
		p = eval.params.paramsLWE
	}
	return p, p.RingQ().AtLevel(ct.Level())
}

// checkSameDegree panics unless a and b live in the same ring.
func checkSameDegree(a, b *Ciphertext) {
	if a.Value[0].N() != b.Value[0].N() {
		panic(fmt.Errorf("%w: degrees %d and %d", ErrDimensionMismatch, a.Value[0].N(), b.Value[0].N()))
	}
}

// Add returns the encryption of a XOR b. Both operands must have the same degree.
func (eval *Evaluator) Add(a, b *Ciphertext) *Ciphertext {
	checkSameDegree(a, b)
	p, ringQ := eval.ringOf(a)
	out := rlwe.NewCiphertext(p, 1, a.Level())
	ringQ.Add(a.Value[0], b.Value[0], out.Value[0])
	ringQ.Add(a.Value[1], b.Value[1], out.Value[1])
	out.IsNTT = a.IsNTT
	return &Ciphertext{out}
}

// AddInPlace sets a to the encryption of a XOR b
func (eval *Evaluator) AddInPlace(a, b *Ciphertext) {
	checkSameDegree(a, b)
	_, ringQ := eval.ringOf(a)
	ringQ.Add(a.Value[0], b.Value[0], a.Value[0])
	ringQ.Add(a.Value[1], b.Value[1], a.Value[1])
}

// Not returns the encryption of NOT a, obtained by adding Δ to the constant term.
func (eval *Evaluator) Not(a *Ciphertext) *Ciphertext {
	out := a.CopyNew()
	eval.addConstant(out, eval.params.Delta())
	return out
}

// addConstant adds a scalar to coefficient 0 of the body of ct.
func (eval *Evaluator) addConstant(ct *Ciphertext, constant uint64) {
	_, ringQ := eval.ringOf(ct)

	if ct.IsNTT {
		// A constant polynomial is the same scalar in every NTT slot.
		ringQ.AddScalar(ct.Value[0], constant, ct.Value[0])
		return
	}
	q := eval.params.Q()
	ct.Value[0].Coeffs[0][0] = (ct.Value[0].Coeffs[0][0] + constant) % q
}
