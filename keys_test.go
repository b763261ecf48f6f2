// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"testing"

	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/stretchr/testify/require"
)

// TestSchemeSwitchingKey checks that SSKey encrypts the GLWE secret: the
// external product of an encryption of Δ with it has phase Δ*s.
func TestSchemeSwitchingKey(t *testing.T) {
	tc := newTestContext(t)
	p := tc.params.GLWE()
	ringQ := p.RingQ().AtLevel(p.MaxLevel())
	q, delta := tc.params.Q(), tc.params.Delta()

	require.Len(t, tc.evk.SSKey, 1)

	s := ringQ.NewPoly()
	ringQ.IMForm(tc.sk.SKGLWE.Value.Q, s)
	ringQ.INTT(s, s)

	out := rlwe.NewCiphertext(p, 1, p.MaxLevel())
	rgsw.NewEvaluator(p, nil).ExternalProduct(tc.enc.Encrypt(1).Ciphertext, tc.evk.SSKey[0], out)
	out.IsNTT = true

	pt := rlwe.NewPlaintext(p, out.Level())
	rlwe.NewDecryptor(p, tc.sk.SKGLWE).Decrypt(out, pt)
	if pt.IsNTT {
		ringQ.INTT(pt.Value, pt.Value)
	}

	nonZero := 0
	for i, si := range s.Coeffs[0] {
		var want uint64
		switch si {
		case 0:
		case 1:
			want = delta
		case q - 1:
			want = q - delta
		default:
			t.Fatalf("secret coefficient %d = %d is not ternary", i, si)
		}
		if si != 0 {
			nonZero++
		}

		d := (pt.Value.Coeffs[0][i] + q - want) % q
		if d > q/2 {
			d = q - d
		}
		require.Less(t, d, q/16, "coefficient %d: phase %d, want %d", i, pt.Value.Coeffs[0][i], want)
	}
	// A zero secret would pass the loop trivially.
	require.NotZero(t, nonZero)
}

func TestGenEvaluationKey(t *testing.T) {
	tc := newTestContext(t)

	require.NotNil(t, tc.evk.KSK)
	require.Len(t, tc.evk.AutoKeys, tc.params.GLWE().LogN())
	for power := range automorphismPowers(tc.params.GLWE()) {
		require.Contains(t, tc.evk.AutoKeys, power)
	}
}
