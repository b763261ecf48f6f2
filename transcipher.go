// Package transcipher evaluates AES-128 decryption homomorphically.
//
// An AES ciphertext block is turned into 128 encrypted plaintext bits without
// ever decrypting intermediate state. The engine is a bootstrapped lookup-table
// evaluator built on luxfi/lattice primitives:
//   - RLWE encryption of bits (message in the constant coefficient)
//   - circuit bootstrapping of bits into RGSW selectors
//   - blind-rotation walks over key-dependent accumulators
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package transcipher

import (
	"errors"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/utils"
)

// Common errors.
var (
	ErrUnknownSize       = errors.New("unknown workload size")
	ErrDimensionMismatch = errors.New("ciphertext dimension mismatch")
	ErrInvalidBlock      = errors.New("AES block must be 16 bytes")
	ErrInvalidLength     = errors.New("invalid bit list length")
	ErrMissingSecretKey  = errors.New("secret key required for secret accumulators")
)

// Size tags a parameter set and the artifacts generated with it.
type Size string

const (
	SizeToy    Size = "toy"
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
)

// ParseSize parses a size tag. Numeric tags 0, 1 and 2 are accepted as aliases.
func ParseSize(s string) (Size, error) {
	switch s {
	case "toy", "0":
		return SizeToy, nil
	case "small", "1":
		return SizeSmall, nil
	case "medium", "2":
		return SizeMedium, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSize, s)
}

// Parameters defines the parameter set shared by every component
type Parameters struct {
	// paramsLWE is the blind-rotation input ring (degree n, key SKLWE)
	paramsLWE rlwe.Parameters
	// paramsGLWE is the accumulator / RGSW ring (degree N, key SKGLWE)
	paramsGLWE rlwe.Parameters

	evkBR   rlwe.EvaluationKeyParameters
	evkKS   rlwe.EvaluationKeyParameters
	evkGGSW rlwe.EvaluationKeyParameters

	cbsLevels int
}

// ParametersLiteral is a user-friendly parameter specification
type ParametersLiteral struct {
	// LogNLWE is log2 of the blind-rotation input dimension
	LogNLWE int
	// LogNGLWE is log2 of the accumulator ring degree (at least 8)
	LogNGLWE int
	// LogQ is the bit size of the single NTT-friendly prime shared by both rings
	LogQ int
	// BRBaseTwoDecomposition is the gadget base of the blind-rotation key
	BRBaseTwoDecomposition int
	// KSBaseTwoDecomposition is the gadget base of the keyswitch and automorphism keys
	KSBaseTwoDecomposition int
	// GGSWBaseTwoDecomposition is the gadget base of bootstrapped selectors and of the scheme-switching key
	GGSWBaseTwoDecomposition int
	// CBSLevels is the number of most significant selector rows built per bit
	CBSLevels int
}

// Standard parameter sets. They trade security for speed and exist to
// exercise the pipeline at growing ring degrees.
var (
	// ParamsToy packs 4 output planes per accumulator (N=1024)
	ParamsToy = ParametersLiteral{
		LogNLWE:                  8,
		LogNGLWE:                 10,
		LogQ:                     54,
		BRBaseTwoDecomposition:   7,
		KSBaseTwoDecomposition:   7,
		GGSWBaseTwoDecomposition: 7,
		CBSLevels:                4,
	}

	// ParamsSmall packs all 8 output planes in one accumulator (N=2048)
	ParamsSmall = ParametersLiteral{
		LogNLWE:                  9,
		LogNGLWE:                 11,
		LogQ:                     54,
		BRBaseTwoDecomposition:   7,
		KSBaseTwoDecomposition:   7,
		GGSWBaseTwoDecomposition: 7,
		CBSLevels:                4,
	}

	// ParamsMedium uses a larger blind-rotation input dimension
	ParamsMedium = ParametersLiteral{
		LogNLWE:                  10,
		LogNGLWE:                 11,
		LogQ:                     54,
		BRBaseTwoDecomposition:   6,
		KSBaseTwoDecomposition:   6,
		GGSWBaseTwoDecomposition: 7,
		CBSLevels:                4,
	}
)

// LiteralForSize returns the parameter literal tagged by size.
func LiteralForSize(size Size) (ParametersLiteral, error) {
	switch size {
	case SizeToy:
		return ParamsToy, nil
	case SizeSmall:
		return ParamsSmall, nil
	case SizeMedium:
		return ParamsMedium, nil
	}
	return ParametersLiteral{}, fmt.Errorf("%w: %q", ErrUnknownSize, size)
}

// NewParametersFromLiteral creates Parameters from a literal specification
func NewParametersFromLiteral(lit ParametersLiteral) (params Parameters, err error) {
	if lit.LogNGLWE < 8 {
		return params, fmt.Errorf("%w: accumulator ring degree 2^%d is below 256", ErrDimensionMismatch, lit.LogNGLWE)
	}
	if lit.LogNLWE > lit.LogNGLWE {
		return params, fmt.Errorf("%w: LWE degree 2^%d exceeds GLWE degree 2^%d", ErrDimensionMismatch, lit.LogNLWE, lit.LogNGLWE)
	}

	// The larger ring generates the prime so that it is NTT-friendly for both.
	params.paramsGLWE, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogNGLWE,
		LogQ:    []int{lit.LogQ},
		NTTFlag: true,
	})
	if err != nil {
		return
	}

	params.paramsLWE, err = rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogNLWE,
		Q:       params.paramsGLWE.Q(),
		NTTFlag: true,
	})
	if err != nil {
		return
	}

	params.evkBR = rlwe.EvaluationKeyParameters{BaseTwoDecomposition: utils.Pointy(lit.BRBaseTwoDecomposition)}
	params.evkKS = rlwe.EvaluationKeyParameters{BaseTwoDecomposition: utils.Pointy(lit.KSBaseTwoDecomposition)}
	params.evkGGSW = rlwe.EvaluationKeyParameters{BaseTwoDecomposition: utils.Pointy(lit.GGSWBaseTwoDecomposition)}

	rows := params.GGSWRows()
	if lit.CBSLevels < 1 || lit.CBSLevels > rows {
		return params, fmt.Errorf("CBSLevels must be in [1, %d], got %d", rows, lit.CBSLevels)
	}
	// The lowest populated row halves its scale in the test polynomial.
	if lit.GGSWBaseTwoDecomposition*(rows-lit.CBSLevels) < 1 {
		return params, fmt.Errorf("CBSLevels %d populates the unit row", lit.CBSLevels)
	}
	params.cbsLevels = lit.CBSLevels

	return
}

// NewParametersForSize creates the Parameters tagged by size.
func NewParametersForSize(size Size) (Parameters, error) {
	lit, err := LiteralForSize(size)
	if err != nil {
		return Parameters{}, err
	}
	return NewParametersFromLiteral(lit)
}

// LWE returns the parameters of the blind-rotation input ring
func (p Parameters) LWE() rlwe.Parameters {
	return p.paramsLWE
}

// GLWE returns the parameters of the accumulator ring
func (p Parameters) GLWE() rlwe.Parameters {
	return p.paramsGLWE
}

// NLWE returns the blind-rotation input dimension
func (p Parameters) NLWE() int {
	return p.paramsLWE.N()
}

// N returns the accumulator ring degree
func (p Parameters) N() int {
	return p.paramsGLWE.N()
}

// Q returns the ciphertext modulus
func (p Parameters) Q() uint64 {
	return p.paramsGLWE.Q()[0]
}

// Delta returns the bit scaling factor floor(Q/2)
func (p Parameters) Delta() uint64 {
	return p.Q() >> 1
}

// GGSWBase returns log2 of the selector gadget base
func (p Parameters) GGSWBase() int {
	return *p.evkGGSW.BaseTwoDecomposition
}

// GGSWRows returns the number of gadget rows of a selector
func (p Parameters) GGSWRows() int {
	return p.paramsGLWE.BaseTwoDecompositionVectorSize(0, p.paramsGLWE.MaxLevelP(), p.GGSWBase())[0]
}

// CBSLevels returns the number of populated selector rows
func (p Parameters) CBSLevels() int {
	return p.cbsLevels
}

// NumParLUT returns the number of output bit-planes packed per accumulator
func (p Parameters) NumParLUT() int {
	return p.N() / TableSize
}

// NumAccumulators returns the number of accumulators per byte table
func (p Parameters) NumAccumulators() int {
	return (8 + p.NumParLUT() - 1) / p.NumParLUT()
}
