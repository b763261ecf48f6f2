// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"context"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rgsw"
)

// ChunkBits is the width of a workload chunk
const ChunkBits = 16

// NumChunks is the number of chunks of a transciphered block
const NumChunks = StateBits / ChunkBits

// Workload names a post-processing step applied to transciphered bits
type Workload string

const (
	WorkloadNone        Workload = "none"
	WorkloadXORHalves   Workload = "xor-halves"
	WorkloadXORConstant Workload = "xor-constant"
	WorkloadMax         Workload = "max"
)

// ParseWorkload parses a workload name
func ParseWorkload(s string) (Workload, error) {
	switch w := Workload(s); w {
	case WorkloadNone, WorkloadXORHalves, WorkloadXORConstant, WorkloadMax:
		return w, nil
	case "":
		return WorkloadNone, nil
	}
	return "", fmt.Errorf("unknown workload %q", s)
}

// Chunk is a 16-bit encrypted integer, MSB first, with a selector per bit.
type Chunk struct {
	Sel  []*rgsw.Ciphertext
	Bits []*Ciphertext
}

// NewChunk lifts 16 bits to a chunk.
func (eval *Evaluator) NewChunk(ctx context.Context, bits []*Ciphertext) (Chunk, error) {
	if len(bits) != ChunkBits {
		return Chunk{}, fmt.Errorf("%w: chunk of %d bits", ErrInvalidLength, len(bits))
	}
	sel, err := eval.BitsToGGSW(ctx, bits)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Sel: sel, Bits: bits}, nil
}

// XORHalves adds the right half of bits to its left half in place.
func (eval *Evaluator) XORHalves(bits []*Ciphertext) error {
	if len(bits) != StateBits {
		return fmt.Errorf("%w: got %d bits, want %d", ErrInvalidLength, len(bits), StateBits)
	}
	half := len(bits) / 2
	for i := 0; i < half; i++ {
		if n, m := bits[i].Value[0].N(), bits[half+i].Value[0].N(); n != m {
			return fmt.Errorf("%w: bit %d has degree %d, bit %d has degree %d",
				ErrDimensionMismatch, i, n, half+i, m)
		}
	}
	for i := 0; i < half; i++ {
		eval.AddInPlace(bits[i], bits[half+i])
	}
	return nil
}

// XORConstant flips every bit in place.
func (eval *Evaluator) XORConstant(bits []*Ciphertext) {
	for _, ct := range bits {
		eval.addConstant(ct, eval.params.Delta())
	}
}

// MaxOfTwo returns the bits of the larger of a and b.
//
// For every output bit j the comparison walks k from the least to the most
// significant bit: when a_k != b_k the candidate becomes the bit j of the
// operand holding the one, otherwise it is kept. The last difference seen,
// the most significant one, decides.
func (eval *Evaluator) MaxOfTwo(ctx context.Context, a, b Chunk) ([]*Ciphertext, error) {
	if len(a.Bits) != ChunkBits || len(b.Bits) != ChunkBits || len(a.Sel) != ChunkBits || len(b.Sel) != ChunkBits {
		return nil, fmt.Errorf("%w: chunks must hold %d bits", ErrInvalidLength, ChunkBits)
	}

	out := make([]*Ciphertext, ChunkBits)
	err := eval.forEach(ctx, ChunkBits, func(w *Evaluator, j int) error {
		e := a.Bits[j]
		for k := ChunkBits - 1; k >= 0; k-- {
			mid0 := w.lut.CMux(b.Sel[k], e, b.Bits[j])
			mid1 := w.lut.CMux(b.Sel[k], a.Bits[j], e)
			e = w.lut.CMux(a.Sel[k], mid0, mid1)
		}
		out[j] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Max8 returns the 16 bits of the largest of the eight chunks of bits.
// The running maximum is lifted to selectors again before every fold.
func (eval *Evaluator) Max8(ctx context.Context, bits []*Ciphertext) ([]*Ciphertext, error) {
	if len(bits) != StateBits {
		return nil, fmt.Errorf("%w: got %d bits, want %d", ErrInvalidLength, len(bits), StateBits)
	}

	sel, err := eval.BitsToGGSW(ctx, bits)
	if err != nil {
		return nil, err
	}
	chunk := func(i int) Chunk {
		return Chunk{Sel: sel[ChunkBits*i : ChunkBits*(i+1)], Bits: bits[ChunkBits*i : ChunkBits*(i+1)]}
	}

	running, err := eval.MaxOfTwo(ctx, chunk(0), chunk(1))
	if err != nil {
		return nil, err
	}
	for i := 2; i < NumChunks; i++ {
		c, err := eval.NewChunk(ctx, running)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
		if running, err = eval.MaxOfTwo(ctx, c, chunk(i)); err != nil {
			return nil, fmt.Errorf("fold %d: %w", i, err)
		}
	}
	return running, nil
}

// RunWorkload applies w to the transciphered bits. xor-halves and
// xor-constant return the 128 updated bits, max returns 16 bits.
func (eval *Evaluator) RunWorkload(ctx context.Context, w Workload, bits []*Ciphertext) ([]*Ciphertext, error) {
	switch w {
	case WorkloadNone, "":
		return bits, nil
	case WorkloadXORHalves:
		if err := eval.XORHalves(bits); err != nil {
			return nil, err
		}
		return bits, nil
	case WorkloadXORConstant:
		eval.XORConstant(bits)
		return bits, nil
	case WorkloadMax:
		return eval.Max8(ctx, bits)
	}
	return nil, fmt.Errorf("unknown workload %q", w)
}
