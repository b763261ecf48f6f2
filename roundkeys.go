// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"fmt"

	"github.com/luxfi/transcipher/internal/aesref"
)

// NumMiddleRounds is the number of rounds walked with encrypted selectors
// before the final S-box round (rounds 8 down to 1).
const NumMiddleRounds = 8

// RoundKeys holds the key-dependent accumulators of every AES round.
// Tables are indexed by state byte position and, for the fused tables, by the
// index of the inverse MixColumns multiplier in {9, 11, 13, 14}.
type RoundKeys struct {
	// Entry fuses rounds 10 and 9: m*(InvSBox(x ^ K10'[p]) ^ K9[p])
	Entry [16][4]Accumulators
	// Middle[i] is round 8-i: m*(InvSBox(x) ^ K_r[p])
	Middle [NumMiddleRounds][16][4]Accumulators
	// Exit is round 0: InvSBox(x) ^ K0[p]
	Exit [16]Accumulators
}

// EntryTable returns the table of byte position p of the fused rounds 10 and 9
// for the m-th multiplier. k10 is the last round key after InvShiftRows.
func EntryTable(k10, k9 byte, m int) *[TableSize]byte {
	mult := aesref.InvMixMultipliers[m]
	t := new([TableSize]byte)
	for x := 0; x < TableSize; x++ {
		t[x] = aesref.Mul(aesref.InvSBox[byte(x)^k10]^k9, mult)
	}
	return t
}

// RoundTable returns the table of a middle round for the m-th multiplier.
func RoundTable(k byte, m int) *[TableSize]byte {
	mult := aesref.InvMixMultipliers[m]
	t := new([TableSize]byte)
	for x := 0; x < TableSize; x++ {
		t[x] = aesref.Mul(aesref.InvSBox[x]^k, mult)
	}
	return t
}

// ExitTable returns the table of the final round.
func ExitTable(k byte) *[TableSize]byte {
	t := new([TableSize]byte)
	for x := 0; x < TableSize; x++ {
		t[x] = aesref.InvSBox[x] ^ k
	}
	return t
}

// GenRoundKeys expands an AES-128 key and encrypts every round table under the
// GLWE key. The result is immutable and shared by all transcipherings.
func GenRoundKeys(params Parameters, sk *SecretKey, key [16]byte) (*RoundKeys, error) {
	return genRoundKeys(params, sk, key, Secret)
}

// GenPublicRoundKeys builds the round tables as trivial encryptions. The AES
// key is readable from the result; it is meant for profiling and tests.
func GenPublicRoundKeys(params Parameters, key [16]byte) (*RoundKeys, error) {
	return genRoundKeys(params, nil, key, Trivial)
}

func genRoundKeys(params Parameters, sk *SecretKey, key [16]byte, mode EncryptionMode) (*RoundKeys, error) {
	b := NewAccumulatorBuilder(params.paramsGLWE, nil)
	if sk != nil {
		b = NewAccumulatorBuilder(params.paramsGLWE, sk.SKGLWE)
	}

	rk := aesref.ExpandKey(key)
	k10 := aesref.InvShiftRows(rk[aesref.Rounds])

	out := new(RoundKeys)
	var err error
	for p := 0; p < 16; p++ {
		for m := 0; m < 4; m++ {
			if out.Entry[p][m], err = b.Build(EntryTable(k10[p], rk[9][p], m), mode); err != nil {
				return nil, fmt.Errorf("entry table %d/%d: %w", p, m, err)
			}
			for i := 0; i < NumMiddleRounds; i++ {
				r := NumMiddleRounds - i
				if out.Middle[i][p][m], err = b.Build(RoundTable(rk[r][p], m), mode); err != nil {
					return nil, fmt.Errorf("round %d table %d/%d: %w", r, p, m, err)
				}
			}
		}
		if out.Exit[p], err = b.Build(ExitTable(rk[0][p]), mode); err != nil {
			return nil, fmt.Errorf("exit table %d: %w", p, err)
		}
	}
	return out, nil
}
