// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"math"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// Decryptor decrypts encrypted bits of either ring
type Decryptor struct {
	params  Parameters
	decGLWE *rlwe.Decryptor
	decLWE  *rlwe.Decryptor
}

// NewDecryptor creates a new decryptor from secret key
func NewDecryptor(params Parameters, sk *SecretKey) *Decryptor {
	return &Decryptor{
		params:  params,
		decGLWE: rlwe.NewDecryptor(params.paramsGLWE, sk.SKGLWE),
		decLWE:  rlwe.NewDecryptor(params.paramsLWE, sk.SKLWE),
	}
}

// Phase returns coefficient 0 of the plaintext of a GLWE bit, in [0, Q).
func (dec *Decryptor) Phase(ct *Ciphertext) uint64 {
	return phase(dec.params.paramsGLWE, dec.decGLWE, ct)
}

// PhaseLWE returns coefficient 0 of the plaintext of an LWE bit, in [0, Q).
func (dec *Decryptor) PhaseLWE(ct *Ciphertext) uint64 {
	return phase(dec.params.paramsLWE, dec.decLWE, ct)
}

// DecryptLWE decrypts a bit of the blind-rotation input ring
func (dec *Decryptor) DecryptLWE(ct *Ciphertext) byte {
	return DecodeBit(dec.PhaseLWE(ct), dec.params.Q())
}

func phase(params rlwe.Parameters, decryptor *rlwe.Decryptor, ct *Ciphertext) uint64 {
	pt := rlwe.NewPlaintext(params, ct.Level())
	decryptor.Decrypt(ct.Ciphertext, pt)

	if pt.IsNTT {
		params.RingQ().AtLevel(ct.Level()).INTT(pt.Value, pt.Value)
	}

	return pt.Value.Coeffs[0][0]
}

// Decrypt decrypts a ciphertext to a bit (0 or 1)
func (dec *Decryptor) Decrypt(ct *Ciphertext) byte {
	return DecodeBit(dec.Phase(ct), dec.params.Q())
}

// DecryptByte decrypts 8 ciphertexts (LSB first) to a byte
func (dec *Decryptor) DecryptByte(cts [8]*Ciphertext) byte {
	var b byte
	for i := 0; i < 8; i++ {
		b |= dec.Decrypt(cts[i]) << i
	}
	return b
}

// DecryptBits decrypts a bit list
func (dec *Decryptor) DecryptBits(cts []*Ciphertext) []byte {
	out := make([]byte, len(cts))
	for i, ct := range cts {
		out[i] = dec.Decrypt(ct)
	}
	return out
}

// DecodeBit rounds 2*phase/q to the nearest integer and returns its parity.
func DecodeBit(phase, q uint64) byte {
	return byte(((phase<<1 + q>>1) / q) & 1)
}

// NoiseBits returns log2 of the distance between the phase and the nearest bit encoding.
func NoiseBits(phase, q uint64) float64 {
	delta := q >> 1
	var ref uint64
	if DecodeBit(phase, q) == 1 {
		ref = delta
	}
	dist := phase - ref
	if phase < ref {
		dist = ref - phase
	}
	if dist > q>>1 {
		dist = q - dist
	}
	if dist == 0 {
		return 0
	}
	return math.Log2(float64(dist))
}
