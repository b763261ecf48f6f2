// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"fmt"

	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
)

// LUTEvaluator walks accumulators with RGSW selectors.
//
// With selectors encrypting the bits x_0..x_7 of a byte x (x_0 the LSB), step i
// multiplies every accumulator by X^{-2^i} when x_i = 1, so after eight steps
// the accumulators are rotated by X^{-x} and coefficient p*256 holds entry x of
// plane p. A LUTEvaluator is not safe for concurrent use, see ShallowCopy.
type LUTEvaluator struct {
	params rlwe.Parameters
	ringQ  *ring.Ring
	planes BitPlanes
	eval   *rgsw.Evaluator

	// rot[i] = X^{-2^i}, NTT and Montgomery form
	rot [8]ring.Poly
	// planeRot[p] = X^{-p*256}, NTT and Montgomery form
	planeRot []ring.Poly

	buf  *rlwe.Ciphertext
	prod *rlwe.Ciphertext
}

// NewLUTEvaluator creates a LUT evaluator over params
func NewLUTEvaluator(params rlwe.Parameters) *LUTEvaluator {
	ringQ := params.RingQ().AtLevel(params.MaxLevel())
	planes := NewBitPlanes(params.N(), params.Q()[0]>>1)

	e := &LUTEvaluator{
		params: params,
		ringQ:  ringQ,
		planes: planes,
		eval:   rgsw.NewEvaluator(params, nil),
	}

	for i := range e.rot {
		e.rot[i] = e.monomial(1 << i)
	}
	e.planeRot = make([]ring.Poly, planes.NumParLUT())
	for p := range e.planeRot {
		e.planeRot[p] = e.monomial(planes.Degree(p, 0))
	}
	e.allocBuffers()

	return e
}

func (e *LUTEvaluator) allocBuffers() {
	e.buf = rlwe.NewCiphertext(e.params, 1, e.params.MaxLevel())
	e.buf.IsNTT = true
	e.prod = rlwe.NewCiphertext(e.params, 1, e.params.MaxLevel())
	e.prod.IsNTT = true
}

// ShallowCopy returns an evaluator sharing the read-only monomials with fresh
// buffers. The copies can be used concurrently.
func (e *LUTEvaluator) ShallowCopy() *LUTEvaluator {
	cp := &LUTEvaluator{
		params:   e.params,
		ringQ:    e.ringQ,
		planes:   e.planes,
		eval:     rgsw.NewEvaluator(e.params, nil),
		rot:      e.rot,
		planeRot: e.planeRot,
	}
	cp.allocBuffers()
	return cp
}

// Planes returns the plane layout of the evaluator ring
func (e *LUTEvaluator) Planes() BitPlanes {
	return e.planes
}

// monomial returns X^{-k} in NTT and Montgomery form, 0 <= k < 2N.
func (e *LUTEvaluator) monomial(k int) ring.Poly {
	n2 := 2 * e.params.N()
	m := e.ringQ.NewMonomialXi((n2 - k%n2) % n2)
	e.ringQ.NTT(m, m)
	e.ringQ.MForm(m, m)
	return m
}

func (e *LUTEvaluator) checkAccumulators(accs Accumulators) error {
	if len(accs)*e.planes.NumParLUT() < 8 {
		return fmt.Errorf("%w: %d accumulators carry %d planes, need 8",
			ErrDimensionMismatch, len(accs), len(accs)*e.planes.NumParLUT())
	}
	for _, acc := range accs {
		if acc.Value[0].N() != e.params.N() {
			return fmt.Errorf("%w: accumulator degree %d, evaluator degree %d",
				ErrDimensionMismatch, acc.Value[0].N(), e.params.N())
		}
	}
	return nil
}

// Eval returns the eight bits of table[x], where x is the byte encrypted by sel
// and table the byte table packed in accs. accs is not modified.
func (e *LUTEvaluator) Eval(sel *[8]*rgsw.Ciphertext, accs Accumulators) (out [8]*Ciphertext, err error) {
	if err = e.checkAccumulators(accs); err != nil {
		return
	}

	for a, acc := range accs.Clone() {
		for i := 0; i < 8; i++ {
			e.rotateStep(acc, sel[i], e.rot[i])
		}
		for p := 0; p < e.planes.NumParLUT(); p++ {
			if bit := e.planes.Plane(a, p); bit < 8 {
				out[bit] = e.extract(acc, e.planeRot[p])
			}
		}
	}
	return
}

// EvalKnown returns the eight bits of table[v] for a public byte v. No external
// product is performed, the accumulators are only rotated.
func (e *LUTEvaluator) EvalKnown(v byte, accs Accumulators) (out [8]*Ciphertext, err error) {
	if err = e.checkAccumulators(accs); err != nil {
		return
	}

	for a, acc := range accs {
		for p := 0; p < e.planes.NumParLUT(); p++ {
			if bit := e.planes.Plane(a, p); bit < 8 {
				out[bit] = e.extract(acc, e.monomial(e.planes.Degree(p, v)))
			}
		}
	}
	return
}

// rotateStep computes acc += ExternalProduct(acc*X^{-k} - acc, sel) in place.
func (e *LUTEvaluator) rotateStep(acc *rlwe.Ciphertext, sel *rgsw.Ciphertext, rot ring.Poly) {
	for k := range acc.Value {
		e.ringQ.MulCoeffsMontgomery(acc.Value[k], rot, e.buf.Value[k])
		e.ringQ.Sub(e.buf.Value[k], acc.Value[k], e.buf.Value[k])
	}
	e.eval.ExternalProduct(e.buf, sel, e.prod)
	for k := range acc.Value {
		e.ringQ.Add(acc.Value[k], e.prod.Value[k], acc.Value[k])
	}
}

// extract returns acc*rot as a new bit. rot moves the wanted coefficient to degree 0.
func (e *LUTEvaluator) extract(acc *rlwe.Ciphertext, rot ring.Poly) *Ciphertext {
	ct := rlwe.NewCiphertext(e.params, 1, acc.Level())
	for k := range acc.Value {
		e.ringQ.MulCoeffsMontgomery(acc.Value[k], rot, ct.Value[k])
	}
	ct.IsNTT = true
	return &Ciphertext{ct}
}

// CMux returns c0 when g encrypts 0 and c1 when g encrypts 1:
// c0 + ExternalProduct(c1 - c0, g).
func (e *LUTEvaluator) CMux(g *rgsw.Ciphertext, c0, c1 *Ciphertext) *Ciphertext {
	for k := range e.buf.Value {
		e.ringQ.Sub(c1.Value[k], c0.Value[k], e.buf.Value[k])
	}
	e.eval.ExternalProduct(e.buf, g, e.prod)

	out := rlwe.NewCiphertext(e.params, 1, c0.Level())
	for k := range out.Value {
		e.ringQ.Add(c0.Value[k], e.prod.Value[k], out.Value[k])
	}
	out.IsNTT = true
	return &Ciphertext{out}
}
