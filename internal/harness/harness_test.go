// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package harness

import (
	"crypto/aes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transcipher/internal/aesref"
)

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate([]byte("seed"))
	require.NoError(t, err)
	b, err := Generate([]byte("seed"))
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(a, b))

	c, err := Generate([]byte("other"))
	require.NoError(t, err)
	require.NotEqual(t, a.Block, c.Block)
}

func TestBlockDecryptsToDB(t *testing.T) {
	ds, err := Generate([]byte{1, 2, 3})
	require.NoError(t, err)

	pt, err := aesref.DecryptBlock(ds.Key, ds.Block[:])
	require.NoError(t, err)

	db, err := Unpack(pt[:])
	require.NoError(t, err)
	require.Equal(t, ds.DB, db)

	_, err = Unpack(pt[:aes.BlockSize-1])
	require.Error(t, err)
}

func TestExpectedFor(t *testing.T) {
	db := DB{1, 2, 3, 4, 0xffff, 6, 7, 8}
	e := ExpectedFor(db)
	require.Equal(t, uint16(0xffff), e.Max)
	require.Equal(t, DB{1 ^ 0xffff, 2 ^ 6, 3 ^ 7, 4 ^ 8, 0xffff, 6, 7, 8}, e.XORHalves)
	require.Equal(t, ^uint16(1), e.XORConstant[0])
	// 0xffff + 12 + 21 + 32 wraps to 64
	require.Equal(t, uint16(64), e.InnerProduct)
}

func TestDecodeUint16s(t *testing.T) {
	bits := make([]byte, 32)
	bits[15] = 1 // value 0 = 1
	bits[16] = 1 // value 1 = 0x8000
	got, err := DecodeUint16s(bits)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff([]uint16{1, 0x8000}, got))
	require.Equal(t, "1\n32768\n", FormatLines(got))

	_, err = DecodeUint16s(bits[:15])
	require.Error(t, err)
}
