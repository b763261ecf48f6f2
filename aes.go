// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"context"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rgsw"

	"github.com/luxfi/transcipher/internal/aesref"
)

// StateBits is the number of encrypted bits of an AES state
const StateBits = 8 * aesref.BlockSize

// State holds the encrypted bits of an AES state. Bit 8*p+i belongs to byte
// p = 4*column+row. Transcipher returns the bits of each byte MSB first.
type State [StateBits]*Ciphertext

// Bits returns the bits of the state as a list
func (s *State) Bits() []*Ciphertext {
	return s[:]
}

// byteState holds the bits of each byte, LSB first.
type byteState [aesref.BlockSize][8]*Ciphertext

// Transcipher decrypts an AES-128 block under the key encrypted in rk and
// returns the plaintext as encrypted bits.
func (eval *Evaluator) Transcipher(ctx context.Context, block []byte, rk *RoundKeys) (*State, error) {
	if len(block) != aesref.BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidBlock, len(block))
	}

	var ct [aesref.BlockSize]byte
	copy(ct[:], block)
	ct = aesref.InvShiftRows(ct)

	// Rounds 10 and 9 on the public block.
	var mult [aesref.BlockSize][4][8]*Ciphertext
	err := eval.forEach(ctx, 4*aesref.BlockSize, func(w *Evaluator, t int) (err error) {
		p, m := t/4, t%4
		mult[p][m], err = w.lut.EvalKnown(ct[p], rk.Entry[p][m])
		return
	})
	if err != nil {
		return nil, fmt.Errorf("entry round: %w", err)
	}
	state := invShiftRows(eval.invMixColumns(&mult))

	for i := 0; i < NumMiddleRounds; i++ {
		sel, err := eval.selectors(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", NumMiddleRounds-i, err)
		}

		err = eval.forEach(ctx, 4*aesref.BlockSize, func(w *Evaluator, t int) (err error) {
			p, m := t/4, t%4
			mult[p][m], err = w.lut.Eval(&sel[p], rk.Middle[i][p][m])
			return
		})
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", NumMiddleRounds-i, err)
		}
		state = invShiftRows(eval.invMixColumns(&mult))
	}

	sel, err := eval.selectors(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("round 0: %w", err)
	}
	var last byteState
	err = eval.forEach(ctx, aesref.BlockSize, func(w *Evaluator, p int) (err error) {
		last[p], err = w.lut.Eval(&sel[p], rk.Exit[p])
		return
	})
	if err != nil {
		return nil, fmt.Errorf("round 0: %w", err)
	}

	out := new(State)
	for p := range last {
		for i := 0; i < 8; i++ {
			out[8*p+i] = last[p][7-i]
		}
	}
	return out, nil
}

// selectors lifts the 128 state bits to RGSW selectors.
func (eval *Evaluator) selectors(ctx context.Context, state *byteState) (*[aesref.BlockSize][8]*rgsw.Ciphertext, error) {
	bits := make([]*Ciphertext, 0, StateBits)
	for p := range state {
		bits = append(bits, state[p][:]...)
	}

	ggsw, err := eval.BitsToGGSW(ctx, bits)
	if err != nil {
		return nil, err
	}

	sel := new([aesref.BlockSize][8]*rgsw.Ciphertext)
	for p := range sel {
		copy(sel[p][:], ggsw[8*p:8*p+8])
	}
	return sel, nil
}

// invMixColumns combines the four multiplied copies of each byte:
// out[4c+r] = 14*y[4c+r] ^ 11*y[4c+r+1] ^ 13*y[4c+r+2] ^ 9*y[4c+r+3], rows mod 4.
func (eval *Evaluator) invMixColumns(mult *[aesref.BlockSize][4][8]*Ciphertext) *byteState {
	const m9, m11, m13, m14 = 0, 1, 2, 3

	out := new(byteState)
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			p := 4*c + r
			for i := 0; i < 8; i++ {
				acc := eval.Add(mult[p][m14][i], mult[4*c+(r+1)%4][m11][i])
				eval.AddInPlace(acc, mult[4*c+(r+2)%4][m13][i])
				eval.AddInPlace(acc, mult[4*c+(r+3)%4][m9][i])
				out[p][i] = acc
			}
		}
	}
	return out
}

// invShiftRows relabels bytes, no homomorphic operation is involved.
func invShiftRows(s *byteState) *byteState {
	out := new(byteState)
	for p := range out {
		out[p] = s[aesref.InvShiftRowsIndex(p)]
	}
	return out
}
