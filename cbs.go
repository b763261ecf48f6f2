// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"context"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
)

// BitToGGSW lifts an encrypted bit to an RGSW selector under the GLWE key
// (circuit bootstrapping).
//
// The bit is first brought to the blind-rotation input ring with the
// dimension-reducing keyswitch. Each populated gadget row j is then obtained
// by a blind rotation of bit*Δ - Q/4 with a sign test polynomial of scale
// 2^(w*j)/2, a trace that zeroes every non-constant coefficient and a shift
// by 2^(w*j)/2, which leaves an encryption of bit*2^(w*j). The second half of
// the selector is the external product of each row with the scheme-switching
// key. Rows below GGSWRows-CBSLevels stay zero.
func (eval *Evaluator) BitToGGSW(ct *Ciphertext) (*rgsw.Ciphertext, error) {
	lwe, err := eval.toLWE(ct)
	if err != nil {
		return nil, err
	}

	q := eval.params.Q()
	ringQLWE := eval.params.paramsLWE.RingQ().AtLevel(lwe.Level())
	ringQLWE.AddScalar(lwe.Value[0], q-q/4, lwe.Value[0])

	p := eval.params.paramsGLWE
	out := rgsw.NewCiphertext(p, p.MaxLevel(), p.MaxLevelP(), eval.params.GGSWBase())

	rows, levels := eval.params.GGSWRows(), eval.params.CBSLevels()
	for k := 0; k < levels; k++ {
		j := rows - levels + k

		res, err := eval.br.Evaluate(lwe, map[int]*ring.Poly{0: &eval.testPolys[k]}, eval.evk.BRK)
		if err != nil {
			return nil, fmt.Errorf("blind rotation: %w", err)
		}
		row := res[0]

		if err = eval.eval.Trace(row, 0, row); err != nil {
			return nil, fmt.Errorf("trace: %w", err)
		}

		half := uint64(1) << (eval.params.GGSWBase()*j - 1)
		eval.ringQ.AddScalar(row.Value[0], half, row.Value[0])

		eval.schemeSwitch(row, out, j)
	}

	return out, nil
}

// toLWE returns a copy of ct re-encrypted in the blind-rotation input ring.
func (eval *Evaluator) toLWE(ct *Ciphertext) (*rlwe.Ciphertext, error) {
	switch n := ct.Value[0].N(); n {
	case eval.params.N():
		out := rlwe.NewCiphertext(eval.params.paramsLWE, 1, ct.Level())
		if err := eval.eval.ApplyEvaluationKey(ct.Ciphertext, eval.evk.KSK, out); err != nil {
			return nil, fmt.Errorf("keyswitch: %w", err)
		}
		return out, nil
	case eval.params.NLWE():
		return ct.Ciphertext.CopyNew(), nil
	default:
		return nil, fmt.Errorf("%w: bit of degree %d, want %d or %d",
			ErrDimensionMismatch, n, eval.params.N(), eval.params.NLWE())
	}
}

// schemeSwitch writes the GLev row RLWE(m*S_j) and its product with the
// scheme-switching key, RLWE(m*s*S_j), as row j of out.
func (eval *Evaluator) schemeSwitch(row *rlwe.Ciphertext, out *rgsw.Ciphertext, j int) {
	eval.eval.ExternalProduct(row, eval.evk.SSKey[0], eval.ssBuf)

	m := out.Value[0].Value[0][j]
	ms := out.Value[1].Value[0][j]
	for k := 0; k < 2; k++ {
		eval.ringQ.MForm(row.Value[k], m[k].Q)
		eval.ringQ.MForm(eval.ssBuf.Value[k], ms[k].Q)
	}
}

// BitsToGGSW lifts every bit on the worker pool. The output is in input order.
func (eval *Evaluator) BitsToGGSW(ctx context.Context, bits []*Ciphertext) ([]*rgsw.Ciphertext, error) {
	out := make([]*rgsw.Ciphertext, len(bits))
	err := eval.forEach(ctx, len(bits), func(w *Evaluator, i int) (err error) {
		if out[i], err = w.BitToGGSW(bits[i]); err != nil {
			return fmt.Errorf("bit %d: %w", i, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
