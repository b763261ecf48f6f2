// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/stretchr/testify/require"
)

func TestXOR(t *testing.T) {
	tc := newTestContext(t)

	for _, a := range []byte{0, 1} {
		for _, b := range []byte{0, 1} {
			ctA, ctB := tc.enc.Encrypt(a), tc.enc.Encrypt(b)
			require.Equal(t, a^b, tc.dec.Decrypt(tc.eval.Add(ctA, ctB)), "%d XOR %d", a, b)

			tc.eval.AddInPlace(ctA, ctB)
			require.Equal(t, a^b, tc.dec.Decrypt(ctA))

			// XOR is its own inverse.
			tc.eval.AddInPlace(ctA, ctB)
			require.Equal(t, a, tc.dec.Decrypt(ctA))
		}
		require.Equal(t, 1-a, tc.dec.Decrypt(tc.eval.Not(tc.enc.Encrypt(a))))
		require.Equal(t, 1-a, tc.dec.DecryptLWE(tc.eval.Not(tc.enc.EncryptLWE(a))))
	}
}

func TestXORLWE(t *testing.T) {
	tc := newTestContext(t)

	for _, a := range []byte{0, 1} {
		for _, b := range []byte{0, 1} {
			ctA, ctB := tc.enc.EncryptLWE(a), tc.enc.EncryptLWE(b)
			sum := tc.eval.Add(ctA, ctB)
			require.Equal(t, tc.params.NLWE(), sum.Value[0].N())
			require.Equal(t, a^b, tc.dec.DecryptLWE(sum), "%d XOR %d", a, b)

			tc.eval.AddInPlace(ctA, ctB)
			require.Equal(t, a^b, tc.dec.DecryptLWE(ctA))
		}
	}

	require.Panics(t, func() { tc.eval.Add(tc.enc.Encrypt(1), tc.enc.EncryptLWE(1)) })
	require.Panics(t, func() { tc.eval.AddInPlace(tc.enc.EncryptLWE(1), tc.enc.Encrypt(1)) })
}

func TestWorkers(t *testing.T) {
	tc := newTestContext(t)

	require.Equal(t, 4, tc.eval.Workers())
	require.Equal(t, 1, tc.eval.WithWorkers(0).Workers())
	require.Equal(t, tc.params.N(), tc.eval.Parameters().N())
}

func TestShallowCopy(t *testing.T) {
	tc := newTestContext(t)

	cp := tc.eval.ShallowCopy()
	require.NotSame(t, tc.eval.eval, cp.eval)
	require.NotSame(t, tc.eval.lut, cp.lut)
	require.NotSame(t, tc.eval.lut.eval, cp.lut.eval)
	require.Same(t, tc.eval.evk, cp.evk)

	// Copies run external products concurrently without sharing buffers.
	sel := [2]*rgsw.Ciphertext{tc.encryptSelector(t, 0), tc.encryptSelector(t, 1)}
	c0, c1 := tc.enc.Encrypt(0), tc.enc.Encrypt(1)
	var wg sync.WaitGroup
	out := make([][2]*Ciphertext, 8)
	for k := range out {
		w := tc.eval.ShallowCopy()
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			for g := range sel {
				out[k][g] = w.LUT().CMux(sel[g], c0, c1)
			}
		}(k)
	}
	wg.Wait()
	for k := range out {
		require.Equal(t, byte(0), tc.dec.Decrypt(out[k][0]), "copy %d", k)
		require.Equal(t, byte(1), tc.dec.Decrypt(out[k][1]), "copy %d", k)
	}
}

func TestForEach(t *testing.T) {
	tc := newTestContext(t)
	ctx := context.Background()

	for _, workers := range []int{1, 3, 16} {
		eval := tc.eval.WithWorkers(workers)

		seen := make([]atomic.Int32, 10)
		require.NoError(t, eval.forEach(ctx, len(seen), func(w *Evaluator, i int) error {
			seen[i].Add(1)
			return nil
		}))
		for i := range seen {
			require.Equal(t, int32(1), seen[i].Load(), "workers=%d i=%d", workers, i)
		}

		errBoom := errors.New("boom")
		err := eval.forEach(ctx, 10, func(w *Evaluator, i int) error {
			if i == 4 {
				return errBoom
			}
			return nil
		})
		require.ErrorIs(t, err, errBoom)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err = eval.forEach(cctx, 10, func(w *Evaluator, i int) error { return nil })
		require.ErrorIs(t, err, context.Canceled)
	}
}
