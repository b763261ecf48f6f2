// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// TableSize is the number of entries of a byte lookup table
const TableSize = 256

// BitPlanes describes how the eight output bit-planes of a byte table are
// spread over accumulators of ring degree N. Accumulator a holds planes
// a*NumParLUT .. a*NumParLUT+NumParLUT-1, plane p of an accumulator lives at
// coefficients [p*256, (p+1)*256).
type BitPlanes struct {
	n         int
	numParLUT int
	numAcc    int
	delta     uint64
}

// NewBitPlanes returns the plane layout for ring degree n and bit scale delta.
// n must be a power of two of at least 256.
func NewBitPlanes(n int, delta uint64) BitPlanes {
	npl := n / TableSize
	return BitPlanes{
		n:         n,
		numParLUT: npl,
		numAcc:    (8 + npl - 1) / npl,
		delta:     delta,
	}
}

// NumParLUT returns the number of planes packed per accumulator
func (bp BitPlanes) NumParLUT() int { return bp.numParLUT }

// NumAccumulators returns the number of accumulators per byte table
func (bp BitPlanes) NumAccumulators() int { return bp.numAcc }

// Plane returns the output bit index carried by plane p of accumulator acc.
// Values of 8 and above are padding planes.
func (bp BitPlanes) Plane(acc, p int) int {
	return acc*bp.numParLUT + p
}

// Degree returns the coefficient holding entry v of plane p
func (bp BitPlanes) Degree(p int, v byte) int {
	return p*TableSize + int(v)
}

// Pack returns the plaintext coefficients of accumulator acc for table.
func (bp BitPlanes) Pack(table *[TableSize]byte, acc int) []uint64 {
	coeffs := make([]uint64, bp.n)
	for i := range coeffs {
		plane := bp.Plane(acc, i/TableSize)
		if plane >= 8 {
			break
		}
		if (table[i%TableSize]>>plane)&1 == 1 {
			coeffs[i] = bp.delta
		}
	}
	return coeffs
}

// Unpack recovers a table from the decoded coefficients of its accumulators.
func (bp BitPlanes) Unpack(coeffs [][]byte) (table [TableSize]byte) {
	for a, acc := range coeffs {
		for p := 0; p < bp.numParLUT; p++ {
			plane := bp.Plane(a, p)
			if plane >= 8 {
				break
			}
			for v := 0; v < TableSize; v++ {
				table[v] |= (acc[bp.Degree(p, byte(v))] & 1) << plane
			}
		}
	}
	return
}

// Accumulators are the GLWE encryptions of the packed planes of one byte table.
type Accumulators []*rlwe.Ciphertext

// Clone returns a deep copy of the accumulators
func (accs Accumulators) Clone() Accumulators {
	out := make(Accumulators, len(accs))
	for i, ct := range accs {
		out[i] = ct.CopyNew()
	}
	return out
}

// EncryptionMode selects how accumulators are encrypted
type EncryptionMode int

const (
	// Trivial accumulators are noiseless (m, 0) pairs and reveal the table
	Trivial EncryptionMode = iota
	// Secret accumulators are encrypted under the GLWE key
	Secret
)

func (m EncryptionMode) String() string {
	switch m {
	case Trivial:
		return "trivial"
	case Secret:
		return "secret"
	}
	return fmt.Sprintf("EncryptionMode(%d)", int(m))
}

// AccumulatorBuilder turns byte tables into accumulators
type AccumulatorBuilder struct {
	params rlwe.Parameters
	planes BitPlanes
	enc    *rlwe.Encryptor
}

// NewAccumulatorBuilder creates a builder over params. sk may be nil when only
// Trivial accumulators are built.
func NewAccumulatorBuilder(params rlwe.Parameters, sk *rlwe.SecretKey) *AccumulatorBuilder {
	b := &AccumulatorBuilder{
		params: params,
		planes: NewBitPlanes(params.N(), params.Q()[0]>>1),
	}
	if sk != nil {
		b.enc = rlwe.NewEncryptor(params, sk)
	}
	return b
}

// Planes returns the plane layout used by the builder
func (b *AccumulatorBuilder) Planes() BitPlanes {
	return b.planes
}

// Build packs table into NumAccumulators accumulators.
func (b *AccumulatorBuilder) Build(table *[TableSize]byte, mode EncryptionMode) (Accumulators, error) {
	if mode == Secret && b.enc == nil {
		return nil, ErrMissingSecretKey
	}

	level := b.params.MaxLevel()
	ringQ := b.params.RingQ().AtLevel(level)

	accs := make(Accumulators, b.planes.NumAccumulators())
	for a := range accs {
		pt := rlwe.NewPlaintext(b.params, level)
		copy(pt.Value.Coeffs[0], b.planes.Pack(table, a))
		ringQ.NTT(pt.Value, pt.Value)
		pt.IsNTT = true

		ct := rlwe.NewCiphertext(b.params, 1, level)
		switch mode {
		case Trivial:
			ct.Value[0].CopyLvl(level, pt.Value)
			ct.IsNTT = true
		case Secret:
			if err := b.enc.Encrypt(pt, ct); err != nil {
				return nil, fmt.Errorf("encrypt accumulator %d: %w", a, err)
			}
		default:
			return nil, fmt.Errorf("unknown encryption mode %d", int(mode))
		}
		accs[a] = ct
	}
	return accs, nil
}
