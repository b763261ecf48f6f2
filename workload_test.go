// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeUint16(bits []byte) (v uint16) {
	for _, b := range bits {
		v = v<<1 | uint16(b)
	}
	return
}

func TestParseWorkload(t *testing.T) {
	for _, w := range []Workload{WorkloadNone, WorkloadXORHalves, WorkloadXORConstant, WorkloadMax} {
		got, err := ParseWorkload(string(w))
		require.NoError(t, err)
		require.Equal(t, w, got)
	}
	got, err := ParseWorkload("")
	require.NoError(t, err)
	require.Equal(t, WorkloadNone, got)

	_, err = ParseWorkload("sum")
	require.Error(t, err)
}

func TestXORWorkloads(t *testing.T) {
	tc := newTestContext(t)
	ctx := context.Background()

	values := [NumChunks]uint16{0x0001, 0xffff, 0x1234, 0x8000, 0x00ff, 0xff00, 0x4321, 0x0000}
	encrypt := func() []*Ciphertext {
		bits := make([]*Ciphertext, 0, StateBits)
		for _, v := range values {
			bits = append(bits, tc.enc.EncryptUint16(v)...)
		}
		return bits
	}

	out, err := tc.eval.RunWorkload(ctx, WorkloadXORHalves, encrypt())
	require.NoError(t, err)
	got := tc.dec.DecryptBits(out)
	for i, v := range values {
		want := v
		if i < NumChunks/2 {
			want ^= values[NumChunks/2+i]
		}
		require.Equal(t, want, decodeUint16(got[ChunkBits*i:ChunkBits*(i+1)]), "chunk %d", i)
	}

	out, err = tc.eval.RunWorkload(ctx, WorkloadXORConstant, encrypt())
	require.NoError(t, err)
	got = tc.dec.DecryptBits(out)
	for i, v := range values {
		require.Equal(t, ^v, decodeUint16(got[ChunkBits*i:ChunkBits*(i+1)]), "chunk %d", i)
	}

	bits := encrypt()
	out, err = tc.eval.RunWorkload(ctx, WorkloadNone, bits)
	require.NoError(t, err)
	require.Equal(t, bits, out)

	require.ErrorIs(t, tc.eval.XORHalves(bits[:64]), ErrInvalidLength)
	_, err = tc.eval.Max8(ctx, bits[:64])
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = tc.eval.NewChunk(ctx, bits[:8])
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = tc.eval.MaxOfTwo(ctx, Chunk{}, Chunk{})
	require.ErrorIs(t, err, ErrInvalidLength)
	_, err = tc.eval.RunWorkload(ctx, "sum", bits)
	require.Error(t, err)

	// Halves in different rings are rejected before any bit is touched.
	mixed := encrypt()
	mixed[StateBits-1] = tc.enc.EncryptLWE(1)
	first := mixed[0].CopyNew()
	require.ErrorIs(t, tc.eval.XORHalves(mixed), ErrDimensionMismatch)
	require.True(t, first.Equal(mixed[0].Ciphertext))

	// LWE-degree bits XOR in their own ring.
	lwe := make([]*Ciphertext, StateBits)
	for i := range lwe {
		lwe[i] = tc.enc.EncryptLWE(byte(i>>6) & 1)
	}
	require.NoError(t, tc.eval.XORHalves(lwe))
	for i := 0; i < StateBits/2; i++ {
		require.Equal(t, byte(1), tc.dec.DecryptLWE(lwe[i]), "bit %d", i)
	}
}

func TestMaxOfTwo(t *testing.T) {
	tc := newTestContext(t)
	ctx := context.Background()

	chunk := func(v uint16) Chunk {
		c, err := tc.eval.NewChunk(ctx, tc.enc.EncryptUint16(v))
		require.NoError(t, err)
		return c
	}
	maxOf := func(a, b Chunk) uint16 {
		out, err := tc.eval.MaxOfTwo(ctx, a, b)
		require.NoError(t, err)
		return decodeUint16(tc.dec.DecryptBits(out))
	}

	pairs := [][2]uint16{{0x1234, 0x0fff}, {0x00ff, 0x0100}, {0x8000, 0x7fff}}
	if testing.Short() {
		pairs = pairs[:1]
	}
	for _, p := range pairs {
		a, b := chunk(p[0]), chunk(p[1])
		want := p[0]
		if p[1] > want {
			want = p[1]
		}
		require.Equal(t, want, maxOf(a, b), "max(%#x, %#x)", p[0], p[1])
		require.Equal(t, want, maxOf(b, a), "max(%#x, %#x)", p[1], p[0])
	}

	a := chunk(0xbeef)
	require.Equal(t, uint16(0xbeef), maxOf(a, a))
}

func TestMax8(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping max of eight in short mode")
	}
	tc := newTestContext(t)
	ctx := context.Background()

	values := [NumChunks]uint16{0x0102, 0x7fff, 0x1234, 0x8001, 0x00ff, 0x8000, 0x4321, 0x0000}
	bits := make([]*Ciphertext, 0, StateBits)
	for _, v := range values {
		bits = append(bits, tc.enc.EncryptUint16(v)...)
	}

	out, err := tc.eval.RunWorkload(ctx, WorkloadMax, bits)
	require.NoError(t, err)
	require.Len(t, out, ChunkBits)
	require.Equal(t, uint16(0x8001), decodeUint16(tc.dec.DecryptBits(out)))
}
