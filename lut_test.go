// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"testing"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transcipher/internal/aesref"
)

func TestBitPlanes(t *testing.T) {
	const delta = 1 << 40
	table := aesref.InvSBox

	for _, tc := range []struct {
		n, numParLUT, numAcc int
	}{
		{256, 1, 8},
		{512, 2, 4},
		{1024, 4, 2},
		{2048, 8, 1},
		{4096, 16, 1},
	} {
		bp := NewBitPlanes(tc.n, delta)
		require.Equal(t, tc.numParLUT, bp.NumParLUT(), tc.n)
		require.Equal(t, tc.numAcc, bp.NumAccumulators(), tc.n)

		coeffs := make([][]byte, bp.NumAccumulators())
		for a := range coeffs {
			packed := bp.Pack(&table, a)
			require.Len(t, packed, tc.n)
			coeffs[a] = make([]byte, tc.n)
			for i, c := range packed {
				switch c {
				case delta:
					coeffs[a][i] = 1
				case 0:
				default:
					t.Fatalf("N=%d: coefficient %d = %d", tc.n, i, c)
				}
			}
		}
		require.Equal(t, table, bp.Unpack(coeffs), tc.n)
	}

	// Padding planes of the last accumulator stay empty.
	bp := NewBitPlanes(4096, delta)
	packed := bp.Pack(&table, 0)
	for _, c := range packed[8*TableSize:] {
		require.Zero(t, c)
	}
	require.Equal(t, 3*TableSize+7, bp.Degree(3, 7))
	require.Equal(t, 9, NewBitPlanes(1024, delta).Plane(2, 1))
}

func TestEncryptionModeString(t *testing.T) {
	require.Equal(t, "trivial", Trivial.String())
	require.Equal(t, "secret", Secret.String())
	require.Equal(t, "EncryptionMode(7)", EncryptionMode(7).String())
}

func TestAccumulatorBuilder(t *testing.T) {
	tc := newTestContext(t)
	p := tc.params.GLWE()
	table := aesref.SBox

	_, err := NewAccumulatorBuilder(p, nil).Build(&table, Secret)
	require.ErrorIs(t, err, ErrMissingSecretKey)

	_, err = NewAccumulatorBuilder(p, nil).Build(&table, EncryptionMode(5))
	require.Error(t, err)

	dec := rlwe.NewDecryptor(p, tc.sk.SKGLWE)
	ringQ := p.RingQ()
	for _, mode := range []EncryptionMode{Trivial, Secret} {
		b := NewAccumulatorBuilder(p, tc.sk.SKGLWE)
		accs, err := b.Build(&table, mode)
		require.NoError(t, err)
		require.Len(t, accs, tc.params.NumAccumulators())

		coeffs := make([][]byte, len(accs))
		for a, acc := range accs {
			pt := rlwe.NewPlaintext(p, acc.Level())
			dec.Decrypt(acc, pt)
			if pt.IsNTT {
				ringQ.INTT(pt.Value, pt.Value)
			}
			coeffs[a] = make([]byte, p.N())
			for i, c := range pt.Value.Coeffs[0] {
				coeffs[a][i] = DecodeBit(c, tc.params.Q())
			}
		}
		require.Equal(t, table, b.Planes().Unpack(coeffs), mode.String())
	}
}

func TestLUTEvaluator(t *testing.T) {
	tc := newTestContext(t)
	p := tc.params.GLWE()
	lut := NewLUTEvaluator(p)
	b := NewAccumulatorBuilder(p, tc.sk.SKGLWE)

	table := RoundTable(0x3c, 2)
	step := 1
	if testing.Short() {
		step = 37
	}

	for _, mode := range []EncryptionMode{Trivial, Secret} {
		accs, err := b.Build(table, mode)
		require.NoError(t, err)
		snapshot := accs.Clone()

		t.Run("EvalKnown/"+mode.String(), func(t *testing.T) {
			for v := 0; v < TableSize; v++ {
				out, err := lut.EvalKnown(byte(v), accs)
				require.NoError(t, err)
				require.Equal(t, table[v], tc.dec.DecryptByte(out), "v=%#02x", v)
			}
		})

		t.Run("Eval/"+mode.String(), func(t *testing.T) {
			for v := 0; v < TableSize; v += step {
				out, err := lut.Eval(tc.encryptByteSelectors(t, byte(v)), accs)
				require.NoError(t, err)
				require.Equal(t, table[v], tc.dec.DecryptByte(out), "v=%#02x", v)
			}
		})

		// Eval works on copies.
		for a := range accs {
			require.True(t, accs[a].Equal(snapshot[a]))
		}
	}
}

func TestLUTEvaluatorDimensionMismatch(t *testing.T) {
	tc := newTestContext(t)
	p := tc.params.GLWE()
	table := aesref.InvSBox

	accs, err := NewAccumulatorBuilder(p, nil).Build(&table, Trivial)
	require.NoError(t, err)

	lut := NewLUTEvaluator(p)
	_, err = lut.EvalKnown(0, accs[:1])
	require.ErrorIs(t, err, ErrDimensionMismatch)

	small, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{LogN: 9, Q: p.Q(), NTTFlag: true})
	require.NoError(t, err)
	other, err := NewAccumulatorBuilder(small, nil).Build(&table, Trivial)
	require.NoError(t, err)
	_, err = lut.EvalKnown(0, append(Accumulators{accs[0]}, other[0]))
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCMux(t *testing.T) {
	tc := newTestContext(t)
	lut := tc.eval.LUT().ShallowCopy()

	for _, g := range []byte{0, 1} {
		sel := tc.encryptSelector(t, g)
		for _, c0 := range []byte{0, 1} {
			for _, c1 := range []byte{0, 1} {
				out := lut.CMux(sel, tc.enc.Encrypt(c0), tc.enc.Encrypt(c1))
				want := c0
				if g == 1 {
					want = c1
				}
				require.Equal(t, want, tc.dec.Decrypt(out), "CMux(%d, %d, %d)", g, c0, c1)
			}
		}
	}
}

// evalTable walks the accumulators of table with the pool selectors of every
// step-th input and returns the decrypted outputs.
func evalTable(t *testing.T, lut *LUTEvaluator, pool *selectorPool, dec *Decryptor, accs Accumulators, step int) map[int]byte {
	t.Helper()
	got := make(map[int]byte)
	for v := 0; v < TableSize; v += step {
		out, err := lut.Eval(pool.byteSelectors(byte(v)), accs)
		require.NoError(t, err)
		got[v] = dec.DecryptByte(out)
	}
	return got
}

func TestLUTEvaluatorBootstrappedSelectors(t *testing.T) {
	tc := newTestContext(t)
	p := tc.params.GLWE()
	pool := liftSelectors(t, tc.eval, tc.enc)
	lut := tc.eval.LUT().ShallowCopy()
	b := NewAccumulatorBuilder(p, tc.sk.SKGLWE)

	step := 1
	if testing.Short() {
		step = 17
	}

	invSBox := aesref.InvSBox
	tables := []struct {
		name  string
		table *[TableSize]byte
	}{
		{"InvSBox", &invSBox},
		{"mul9", RoundTable(0xa7, 0)},
		{"mul11", RoundTable(0x13, 1)},
		{"mul13", RoundTable(0x3c, 2)},
		{"mul14", RoundTable(0xe0, 3)},
	}
	for _, tt := range tables {
		t.Run(tt.name, func(t *testing.T) {
			accs, err := b.Build(tt.table, Secret)
			require.NoError(t, err)
			for v, got := range evalTable(t, lut, pool, tc.dec, accs, step) {
				require.Equal(t, tt.table[v], got, "v=%#02x", v)
			}
		})
	}
}

// TestLUTPacking checks that results do not depend on how the eight planes
// are spread over accumulators: one plane each at N=256, all eight at N=2048.
func TestLUTPacking(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping key generation of two extra parameter sets in short mode")
	}

	table := ExitTable(0x5e)
	results := make(map[int]map[int]byte)
	for _, lit := range []ParametersLiteral{
		{LogNLWE: 8, LogNGLWE: 8, LogQ: 54, BRBaseTwoDecomposition: 7, KSBaseTwoDecomposition: 7, GGSWBaseTwoDecomposition: 7, CBSLevels: 4},
		{LogNLWE: 8, LogNGLWE: 11, LogQ: 54, BRBaseTwoDecomposition: 7, KSBaseTwoDecomposition: 7, GGSWBaseTwoDecomposition: 7, CBSLevels: 4},
	} {
		params, err := NewParametersFromLiteral(lit)
		require.NoError(t, err)

		kgen := NewKeyGenerator(params)
		sk := kgen.GenSecretKey()
		eval := NewEvaluator(params, kgen.GenEvaluationKey(sk)).WithWorkers(4)

		accs, err := NewAccumulatorBuilder(params.GLWE(), sk.SKGLWE).Build(table, Secret)
		require.NoError(t, err)
		require.Len(t, accs, params.NumAccumulators())

		pool := liftSelectors(t, eval, NewEncryptor(params, sk))
		results[len(accs)] = evalTable(t, eval.LUT(), pool, NewDecryptor(params, sk), accs, 1)
	}

	require.Len(t, results, 2)
	require.Equal(t, results[8], results[1])
	for v, got := range results[1] {
		require.Equal(t, table[v], got, "v=%#02x", v)
	}
}
