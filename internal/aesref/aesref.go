// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package aesref is a byte-level AES-128 reference: GF(2^8) arithmetic, the
// S-boxes, the key schedule and block decryption. Blocks are column-major,
// byte 4*c+r holds row r of column c.
package aesref

import "fmt"

// BlockSize is the AES block size in bytes
const BlockSize = 16

// Rounds is the number of AES-128 rounds
const Rounds = 10

var (
	// SBox is the AES substitution box
	SBox [256]byte
	// InvSBox is the inverse of SBox
	InvSBox [256]byte
)

func init() {
	for x := 0; x < 256; x++ {
		s := affine(Inv(byte(x)))
		SBox[x] = s
		InvSBox[s] = byte(x)
	}
}

func affine(b byte) byte {
	s := b
	for i := 1; i <= 4; i++ {
		s ^= b<<i | b>>(8-i)
	}
	return s ^ 0x63
}

// xtime multiplies by x modulo x^8 + x^4 + x^3 + x + 1
func xtime(a byte) byte {
	if a&0x80 != 0 {
		return a<<1 ^ 0x1b
	}
	return a << 1
}

// Mul multiplies two elements of GF(2^8)
func Mul(a, b byte) byte {
	var p byte
	for b != 0 {
		if b&1 != 0 {
			p ^= a
		}
		a = xtime(a)
		b >>= 1
	}
	return p
}

// Inv returns the multiplicative inverse of a, with Inv(0) = 0
func Inv(a byte) byte {
	// a^254 = a^-1
	r := byte(1)
	for e := 254; e > 0; e >>= 1 {
		if e&1 == 1 {
			r = Mul(r, a)
		}
		a = Mul(a, a)
	}
	return r
}

// ExpandKey returns the eleven round keys of an AES-128 key.
func ExpandKey(key [16]byte) (rk [Rounds + 1][BlockSize]byte) {
	var w [44][4]byte
	for i := 0; i < 4; i++ {
		copy(w[i][:], key[4*i:4*i+4])
	}

	rcon := byte(1)
	for i := 4; i < 44; i++ {
		t := w[i-1]
		if i%4 == 0 {
			t = [4]byte{SBox[t[1]] ^ rcon, SBox[t[2]], SBox[t[3]], SBox[t[0]]}
			rcon = xtime(rcon)
		}
		for j := range t {
			w[i][j] = w[i-4][j] ^ t[j]
		}
	}

	for r := range rk {
		for c := 0; c < 4; c++ {
			copy(rk[r][4*c:4*c+4], w[4*r+c][:])
		}
	}
	return
}

// ShiftRows rotates row r left by r positions
func ShiftRows(s [BlockSize]byte) (out [BlockSize]byte) {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[4*c+r] = s[4*((c+r)%4)+r]
		}
	}
	return
}

// InvShiftRows rotates row r right by r positions
func InvShiftRows(s [BlockSize]byte) (out [BlockSize]byte) {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[4*c+r] = s[4*((c-r+4)%4)+r]
		}
	}
	return
}

// InvShiftRowsIndex returns the byte position read by InvShiftRows for position p.
func InvShiftRowsIndex(p int) int {
	c, r := p/4, p%4
	return 4*((c-r+4)%4) + r
}

// InvMixMultipliers are the coefficients of inverse MixColumns
var InvMixMultipliers = [4]byte{9, 11, 13, 14}

// InvMixColumns applies the inverse MixColumns transform
func InvMixColumns(s [BlockSize]byte) (out [BlockSize]byte) {
	for c := 0; c < 4; c++ {
		col := s[4*c : 4*c+4]
		for r := 0; r < 4; r++ {
			out[4*c+r] = Mul(col[r], 14) ^ Mul(col[(r+1)%4], 11) ^ Mul(col[(r+2)%4], 13) ^ Mul(col[(r+3)%4], 9)
		}
	}
	return
}

func addRoundKey(s *[BlockSize]byte, k *[BlockSize]byte) {
	for i := range s {
		s[i] ^= k[i]
	}
}

// DecryptBlock decrypts one block with AES-128.
func DecryptBlock(key [16]byte, block []byte) ([BlockSize]byte, error) {
	var s [BlockSize]byte
	if len(block) != BlockSize {
		return s, fmt.Errorf("aesref: block of %d bytes", len(block))
	}
	copy(s[:], block)

	rk := ExpandKey(key)
	addRoundKey(&s, &rk[Rounds])
	for r := Rounds - 1; r >= 0; r-- {
		s = InvShiftRows(s)
		for i := range s {
			s[i] = InvSBox[s[i]]
		}
		addRoundKey(&s, &rk[r])
		if r > 0 {
			s = InvMixColumns(s)
		}
	}
	return s, nil
}
