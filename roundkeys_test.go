// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/transcipher/internal/aesref"
)

// decryptWithTables runs the table pipeline of Transcipher on cleartext bytes.
func decryptWithTables(key [16]byte, block [16]byte) (out [16]byte) {
	rk := aesref.ExpandKey(key)
	k10 := aesref.InvShiftRows(rk[aesref.Rounds])

	mix := func(mult *[16][4]byte) (s [16]byte) {
		const m9, m11, m13, m14 = 0, 1, 2, 3
		for c := 0; c < 4; c++ {
			for r := 0; r < 4; r++ {
				s[4*c+r] = mult[4*c+r][m14] ^ mult[4*c+(r+1)%4][m11] ^ mult[4*c+(r+2)%4][m13] ^ mult[4*c+(r+3)%4][m9]
			}
		}
		return aesref.InvShiftRows(s)
	}

	ct := aesref.InvShiftRows(block)
	var mult [16][4]byte
	for p := range mult {
		for m := range mult[p] {
			mult[p][m] = EntryTable(k10[p], rk[9][p], m)[ct[p]]
		}
	}
	state := mix(&mult)

	for i := 0; i < NumMiddleRounds; i++ {
		r := NumMiddleRounds - i
		for p := range mult {
			for m := range mult[p] {
				mult[p][m] = RoundTable(rk[r][p], m)[state[p]]
			}
		}
		state = mix(&mult)
	}

	for p := range out {
		out[p] = ExitTable(rk[0][p])[state[p]]
	}
	return
}

func TestRoundTablesDecrypt(t *testing.T) {
	for i := 0; i < 8; i++ {
		var key, block [16]byte
		rand.Read(key[:])
		rand.Read(block[:])

		want, err := aesref.DecryptBlock(key, block[:])
		require.NoError(t, err)
		require.Equal(t, want, decryptWithTables(key, block))
	}
}

func TestTables(t *testing.T) {
	require.Equal(t, aesref.Mul(aesref.InvSBox[0x12^0x34]^0x56, 13), EntryTable(0x34, 0x56, 2)[0x12])
	require.Equal(t, aesref.Mul(aesref.InvSBox[0x12]^0x56, 9), RoundTable(0x56, 0)[0x12])
	require.Equal(t, aesref.InvSBox[0xab]^0x0f, ExitTable(0x0f)[0xab])
}

func TestGenPublicRoundKeys(t *testing.T) {
	tc := newTestContext(t)
	key := [16]byte{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}

	rk, err := GenPublicRoundKeys(tc.params, key)
	require.NoError(t, err)

	expanded := aesref.ExpandKey(key)
	lut := tc.eval.LUT()
	for _, v := range []byte{0x00, 0x3a, 0xff} {
		out, err := lut.EvalKnown(v, rk.Exit[5])
		require.NoError(t, err)
		require.Equal(t, ExitTable(expanded[0][5])[v], tc.dec.DecryptByte(out))

		out, err = lut.EvalKnown(v, rk.Middle[2][9][3])
		require.NoError(t, err)
		require.Equal(t, RoundTable(expanded[6][9], 3)[v], tc.dec.DecryptByte(out))
	}

	_, err = GenRoundKeys(tc.params, nil, key)
	require.ErrorIs(t, err, ErrMissingSecretKey)
}
