// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package transcipher

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/luxfi/lattice/v7/core/rgsw"
	"github.com/luxfi/lattice/v7/core/rlwe"
)

// Objects are written as a sequence of little-endian uint64 counts and
// length-prefixed lattice binary encodings.

func writeUint(w io.Writer, v int) error {
	return binary.Write(w, binary.LittleEndian, uint64(v))
}

func readUint(r io.Reader) (int, error) {
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("count %d out of range", v)
	}
	return int(v), nil
}

func writeBlob(w io.Writer, m encoding.BinaryMarshaler) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err = writeUint(w, len(data)); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readBlob(r io.Reader, u encoding.BinaryUnmarshaler) error {
	n, err := readUint(r)
	if err != nil {
		return err
	}
	if l, ok := r.(interface{ Len() int }); ok && n > l.Len() {
		return io.ErrUnexpectedEOF
	}
	data := make([]byte, n)
	if _, err = io.ReadFull(r, data); err != nil {
		return err
	}
	return u.UnmarshalBinary(data)
}

func writeList[T encoding.BinaryMarshaler](w io.Writer, list []T) error {
	if err := writeUint(w, len(list)); err != nil {
		return err
	}
	for i, v := range list {
		if err := writeBlob(w, v); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func readList[T any, PT interface {
	*T
	encoding.BinaryUnmarshaler
}](r io.Reader) ([]*T, error) {
	n, err := readUint(r)
	if err != nil {
		return nil, err
	}
	// Every element carries at least its length prefix.
	if l, ok := r.(interface{ Len() int }); ok && 8*n > l.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	list := make([]*T, n)
	for i := range list {
		v := PT(new(T))
		if err := readBlob(r, v); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		list[i] = (*T)(v)
	}
	return list, nil
}

// ========== Secret Key Serialization ==========

// MarshalBinary serializes the secret key to binary format
func (sk *SecretKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := writeBlob(&buf, sk.SKLWE); err != nil {
		return nil, fmt.Errorf("serialize SKLWE: %w", err)
	}
	if err := writeBlob(&buf, sk.SKGLWE); err != nil {
		return nil, fmt.Errorf("serialize SKGLWE: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the secret key from binary format
func (sk *SecretKey) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)

	sk.SKLWE = new(rlwe.SecretKey)
	if err := readBlob(buf, sk.SKLWE); err != nil {
		return fmt.Errorf("deserialize SKLWE: %w", err)
	}
	sk.SKGLWE = new(rlwe.SecretKey)
	if err := readBlob(buf, sk.SKGLWE); err != nil {
		return fmt.Errorf("deserialize SKGLWE: %w", err)
	}

	return nil
}

// ========== Evaluation Key Serialization ==========

// MarshalBinary serializes the evaluation key to binary format
func (evk *EvaluationKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := writeList(&buf, evk.BRK.BlindRotationKeys); err != nil {
		return nil, fmt.Errorf("serialize BRK: %w", err)
	}
	if err := writeList(&buf, evk.BRK.AutomorphismKeys); err != nil {
		return nil, fmt.Errorf("serialize BRK automorphisms: %w", err)
	}
	if err := writeBlob(&buf, evk.KSK); err != nil {
		return nil, fmt.Errorf("serialize KSK: %w", err)
	}

	powers := make([]int, 0, len(evk.AutoKeys))
	for power := range evk.AutoKeys {
		powers = append(powers, power)
	}
	sort.Ints(powers)
	if err := writeUint(&buf, len(powers)); err != nil {
		return nil, fmt.Errorf("serialize AutoKeys: %w", err)
	}
	for _, power := range powers {
		if err := writeUint(&buf, power); err != nil {
			return nil, fmt.Errorf("serialize AutoKeys: %w", err)
		}
		if err := writeBlob(&buf, evk.AutoKeys[power]); err != nil {
			return nil, fmt.Errorf("serialize AutoKeys[%d]: %w", power, err)
		}
	}

	if err := writeList(&buf, evk.SSKey); err != nil {
		return nil, fmt.Errorf("serialize SSKey: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the evaluation key from binary format
func (evk *EvaluationKey) UnmarshalBinary(data []byte) (err error) {
	buf := bytes.NewReader(data)

	if evk.BRK.BlindRotationKeys, err = readList[rgsw.Ciphertext](buf); err != nil {
		return fmt.Errorf("deserialize BRK: %w", err)
	}
	if evk.BRK.AutomorphismKeys, err = readList[rlwe.GaloisKey](buf); err != nil {
		return fmt.Errorf("deserialize BRK automorphisms: %w", err)
	}
	evk.KSK = new(rlwe.EvaluationKey)
	if err = readBlob(buf, evk.KSK); err != nil {
		return fmt.Errorf("deserialize KSK: %w", err)
	}

	n, err := readUint(buf)
	if err != nil {
		return fmt.Errorf("deserialize AutoKeys: %w", err)
	}
	evk.AutoKeys = make(map[int]*rlwe.GaloisKey, n)
	for i := 0; i < n; i++ {
		power, err := readUint(buf)
		if err != nil {
			return fmt.Errorf("deserialize AutoKeys: %w", err)
		}
		gk := new(rlwe.GaloisKey)
		if err = readBlob(buf, gk); err != nil {
			return fmt.Errorf("deserialize AutoKeys[%d]: %w", power, err)
		}
		evk.AutoKeys[power] = gk
	}

	if evk.SSKey, err = readList[rgsw.Ciphertext](buf); err != nil {
		return fmt.Errorf("deserialize SSKey: %w", err)
	}
	return nil
}

// ========== Round Key Serialization ==========

// tables lists every accumulator set in serialization order.
func (rk *RoundKeys) tables() []*Accumulators {
	out := make([]*Accumulators, 0, 16*4*(1+NumMiddleRounds)+16)
	for p := range rk.Entry {
		for m := range rk.Entry[p] {
			out = append(out, &rk.Entry[p][m])
		}
	}
	for i := range rk.Middle {
		for p := range rk.Middle[i] {
			for m := range rk.Middle[i][p] {
				out = append(out, &rk.Middle[i][p][m])
			}
		}
	}
	for p := range rk.Exit {
		out = append(out, &rk.Exit[p])
	}
	return out
}

// MarshalBinary serializes the round keys to binary format
func (rk *RoundKeys) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	for i, accs := range rk.tables() {
		if err := writeList(&buf, []*rlwe.Ciphertext(*accs)); err != nil {
			return nil, fmt.Errorf("serialize table %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the round keys from binary format
func (rk *RoundKeys) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)
	for i, accs := range rk.tables() {
		list, err := readList[rlwe.Ciphertext](buf)
		if err != nil {
			return fmt.Errorf("deserialize table %d: %w", i, err)
		}
		*accs = list
	}
	return nil
}

// ========== Ciphertext Serialization ==========

// BitList is a list of encrypted bits as exchanged between client and server
type BitList []*Ciphertext

// MarshalBinary serializes the bit list to binary format
func (bl BitList) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeUint(&buf, len(bl)); err != nil {
		return nil, err
	}
	for i, ct := range bl {
		if err := writeBlob(&buf, ct.Ciphertext); err != nil {
			return nil, fmt.Errorf("serialize bit %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes the bit list from binary format
func (bl *BitList) UnmarshalBinary(data []byte) error {
	list, err := readList[rlwe.Ciphertext](bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("deserialize bits: %w", err)
	}
	out := make(BitList, len(list))
	for i, ct := range list {
		out[i] = &Ciphertext{ct}
	}
	*bl = out
	return nil
}
