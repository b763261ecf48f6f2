// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/luxfi/lattice/v7/core/rgsw/blindrot"
	"github.com/luxfi/lattice/v7/core/rlwe"
)

// SecretKey contains the LWE and GLWE secret keys
type SecretKey struct {
	// SKLWE is the key of blind-rotation inputs (degree n)
	SKLWE *rlwe.SecretKey
	// SKGLWE is the key of accumulators, selectors and transciphered bits (degree N)
	SKGLWE *rlwe.SecretKey
}

// EvaluationKey is the public key bundle used by the Evaluator.
// It never contains secret material.
type EvaluationKey struct {
	// BRK is the blind rotation key (RGSW encryptions of SKLWE under SKGLWE)
	BRK blindrot.MemBlindRotationEvaluationKeySet
	// KSK re-encrypts a degree-N ciphertext under SKGLWE into a degree-n ciphertext under SKLWE
	KSK *rlwe.EvaluationKey
	// AutoKeys holds the trace automorphism keys indexed by rotation power:
	// power i < logN-1 maps X to X^(5^(2^i)), power logN-1 maps X to X^-1.
	AutoKeys map[int]*rlwe.GaloisKey
	// SSKey is the scheme-switching key, RGSW encryptions of SKGLWE
	SSKey []*rgsw.Ciphertext
}

// KeyGenerator generates transciphering keys
type KeyGenerator struct {
	params   Parameters
	kgenLWE  *rlwe.KeyGenerator
	kgenGLWE *rlwe.KeyGenerator
}

// NewKeyGenerator creates a new key generator
func NewKeyGenerator(params Parameters) *KeyGenerator {
	return &KeyGenerator{
		params:   params,
		kgenLWE:  rlwe.NewKeyGenerator(params.paramsLWE),
		kgenGLWE: rlwe.NewKeyGenerator(params.paramsGLWE),
	}
}

// GenSecretKey generates a new secret key pair
func (kg *KeyGenerator) GenSecretKey() *SecretKey {
	return &SecretKey{
		SKLWE:  kg.kgenLWE.GenSecretKeyNew(),
		SKGLWE: kg.kgenGLWE.GenSecretKeyNew(),
	}
}

// automorphismPowers returns the Galois elements used by the trace, indexed by rotation power.
func automorphismPowers(params rlwe.Parameters) map[int]uint64 {
	logN := params.LogN()
	galEls := make(map[int]uint64, logN)
	for i := 0; i < logN-1; i++ {
		galEls[i] = params.GaloisElement(1 << i)
	}
	galEls[logN-1] = params.RingQ().NthRoot() - 1
	return galEls
}

// GenEvaluationKey generates the blind rotation, keyswitch, automorphism and
// scheme-switching keys from a secret key.
// Note: Panics on error (should not happen with valid parameters)
func (kg *KeyGenerator) GenEvaluationKey(sk *SecretKey) *EvaluationKey {
	p := kg.params

	brk := blindrot.GenEvaluationKeyNew(p.paramsGLWE, sk.SKGLWE, p.paramsLWE, sk.SKLWE, p.evkBR)

	// Ring-degree switching key N -> n, generated in the larger ring.
	ksk := kg.kgenGLWE.GenEvaluationKeyNew(sk.SKGLWE, sk.SKLWE, p.evkKS)

	powers := automorphismPowers(p.paramsGLWE)
	galEls := make([]uint64, len(powers))
	for power, galEl := range powers {
		galEls[power] = galEl
	}
	gks := kg.kgenGLWE.GenGaloisKeysNew(galEls, sk.SKGLWE, p.evkKS)
	autoKeys := make(map[int]*rlwe.GaloisKey, len(gks))
	for power, gk := range gks {
		autoKeys[power] = gk
	}

	return &EvaluationKey{
		BRK:      brk,
		KSK:      ksk,
		AutoKeys: autoKeys,
		SSKey:    []*rgsw.Ciphertext{kg.genSchemeSwitchingKey(sk.SKGLWE)},
	}
}

// genSchemeSwitchingKey encrypts the GLWE secret itself as an RGSW ciphertext.
func (kg *KeyGenerator) genSchemeSwitchingKey(sk *rlwe.SecretKey) *rgsw.Ciphertext {
	p := kg.params.paramsGLWE
	level := p.MaxLevel()

	// Secret keys are stored in NTT and Montgomery form. The encryptor drops
	// NTT plaintexts already in Montgomery form, so it gets plain NTT form.
	pt := rlwe.NewPlaintext(p, level)
	p.RingQ().AtLevel(level).IMForm(sk.Value.Q, pt.Value)
	pt.IsNTT = true
	pt.IsMontgomery = false

	ct := rgsw.NewCiphertext(p, level, p.MaxLevelP(), kg.params.GGSWBase())
	if err := rgsw.NewEncryptor(p, sk).Encrypt(pt, ct); err != nil {
		panic(err) // Should not happen with valid parameters
	}
	return ct
}

// evaluationKeySet exposes the automorphism keys to lattice evaluators.
func (evk *EvaluationKey) evaluationKeySet() *rlwe.MemEvaluationKeySet {
	gks := make([]*rlwe.GaloisKey, 0, len(evk.AutoKeys))
	for _, gk := range evk.AutoKeys {
		gks = append(gks, gk)
	}
	return rlwe.NewMemEvaluationKeySet(nil, gks...)
}
