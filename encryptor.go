// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"github.com/luxfi/lattice/v7/core/rlwe"
)

// Ciphertext represents an encrypted bit. Coefficient 0 of its phase is bit·Δ,
// the other coefficients carry no meaning.
type Ciphertext struct {
	*rlwe.Ciphertext
}

// CopyNew returns a deep copy of the encrypted bit
func (ct *Ciphertext) CopyNew() *Ciphertext {
	return &Ciphertext{ct.Ciphertext.CopyNew()}
}

// Encryptor encrypts bits under the GLWE key (the domain of transciphered bits)
// or under the LWE key (the blind-rotation input domain).
type Encryptor struct {
	params  Parameters
	encGLWE *rlwe.Encryptor
	encLWE  *rlwe.Encryptor
}

// NewEncryptor creates a new encryptor from secret key
func NewEncryptor(params Parameters, sk *SecretKey) *Encryptor {
	return &Encryptor{
		params:  params,
		encGLWE: rlwe.NewEncryptor(params.paramsGLWE, sk.SKGLWE),
		encLWE:  rlwe.NewEncryptor(params.paramsLWE, sk.SKLWE),
	}
}

// Encrypt encrypts a bit in the GLWE ring
// Note: Panics on error (should not happen with valid parameters)
func (enc *Encryptor) Encrypt(bit byte) *Ciphertext {
	return encryptBit(enc.params.paramsGLWE, enc.encGLWE, bit)
}

// EncryptLWE encrypts a bit in the blind-rotation input ring
func (enc *Encryptor) EncryptLWE(bit byte) *Ciphertext {
	return encryptBit(enc.params.paramsLWE, enc.encLWE, bit)
}

// EncryptByte encrypts a byte as 8 ciphertexts (LSB first)
func (enc *Encryptor) EncryptByte(b byte) [8]*Ciphertext {
	var cts [8]*Ciphertext
	for i := 0; i < 8; i++ {
		cts[i] = enc.Encrypt((b >> i) & 1)
	}
	return cts
}

// EncryptUint16 encrypts v as 16 ciphertexts (MSB first, the chunk layout of the workload engine)
func (enc *Encryptor) EncryptUint16(v uint16) []*Ciphertext {
	cts := make([]*Ciphertext, 16)
	for i := 0; i < 16; i++ {
		cts[i] = enc.Encrypt(byte(v>>(15-i)) & 1)
	}
	return cts
}

func encryptBit(params rlwe.Parameters, enc *rlwe.Encryptor, bit byte) *Ciphertext {
	pt := rlwe.NewPlaintext(params, params.MaxLevel())
	if bit&1 == 1 {
		pt.Value.Coeffs[0][0] = params.Q()[0] >> 1
	}
	params.RingQ().NTT(pt.Value, pt.Value)

	ct := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	if err := enc.Encrypt(pt, ct); err != nil {
		panic(err) // Should not happen with valid parameters
	}

	return &Ciphertext{ct}
}

// TrivialEncrypt returns the noiseless encryption (bit·Δ, 0) in the GLWE ring.
// It reveals the bit and is meant for public constants.
func TrivialEncrypt(params Parameters, bit byte) *Ciphertext {
	p := params.paramsGLWE
	ct := rlwe.NewCiphertext(p, 1, p.MaxLevel())
	if bit&1 == 1 {
		ct.Value[0].Coeffs[0][0] = params.Delta()
	}
	p.RingQ().NTT(ct.Value[0], ct.Value[0])
	ct.IsNTT = true
	return &Ciphertext{ct}
}
