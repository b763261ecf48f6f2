// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package harness generates reproducible transciphering workloads: a database
// of eight uint16 values, the AES key derived from the seed, the encrypted
// block and the cleartext expected outputs.
package harness

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// DBSize is the number of values packed in one AES block
const DBSize = 8

// DB is a database of 16-bit values, stored big-endian in the AES block
type DB [DBSize]uint16

// Dataset is a generated workload
type Dataset struct {
	Seed   []byte
	Key    [16]byte
	DB     DB
	Block  [aes.BlockSize]byte
	Expect Expected
}

// Expected holds the cleartext results of every workload
type Expected struct {
	Values       DB
	Max          uint16
	XORHalves    DB
	XORConstant  DB
	InnerProduct uint16
}

// KeyFromSeed derives the AES key as the first 16 bytes of SHA-256(seed).
func KeyFromSeed(seed []byte) (key [16]byte) {
	sum := sha256.Sum256(seed)
	copy(key[:], sum[:16])
	return
}

// GenerateDB expands seed into DBSize values with SHAKE256.
func GenerateDB(seed []byte) (db DB) {
	h := sha3.NewShake256()
	h.Write([]byte("transcipher/db"))
	h.Write(seed)

	var buf [2 * DBSize]byte
	h.Read(buf[:])
	for i := range db {
		db[i] = binary.BigEndian.Uint16(buf[2*i:])
	}
	return
}

// Pack returns the AES plaintext block of db.
func (db DB) Pack() (block [aes.BlockSize]byte) {
	for i, v := range db {
		binary.BigEndian.PutUint16(block[2*i:], v)
	}
	return
}

// Unpack reads a DB from an AES plaintext block.
func Unpack(block []byte) (db DB, err error) {
	if len(block) != aes.BlockSize {
		return db, fmt.Errorf("block of %d bytes", len(block))
	}
	for i := range db {
		db[i] = binary.BigEndian.Uint16(block[2*i:])
	}
	return
}

// EncryptBlock encrypts one block with AES-128 in ECB mode.
func EncryptBlock(key [16]byte, pt [aes.BlockSize]byte) (ct [aes.BlockSize]byte, err error) {
	c, err := aes.NewCipher(key[:])
	if err != nil {
		return ct, err
	}
	c.Encrypt(ct[:], pt[:])
	return
}

// Generate builds the dataset of seed.
func Generate(seed []byte) (*Dataset, error) {
	ds := &Dataset{
		Seed: append([]byte(nil), seed...),
		Key:  KeyFromSeed(seed),
		DB:   GenerateDB(seed),
	}

	var err error
	if ds.Block, err = EncryptBlock(ds.Key, ds.DB.Pack()); err != nil {
		return nil, fmt.Errorf("encrypt db: %w", err)
	}
	ds.Expect = ExpectedFor(ds.DB)
	return ds, nil
}

// ExpectedFor computes the cleartext result of every workload on db.
func ExpectedFor(db DB) (e Expected) {
	e.Values = db
	e.Max = db[0]
	half := DBSize / 2
	for i, v := range db {
		if v > e.Max {
			e.Max = v
		}
		e.XORHalves[i] = v
		e.XORConstant[i] = ^v
		if i < half {
			e.XORHalves[i] = v ^ db[half+i]
			e.InnerProduct += v * db[half+i]
		}
	}
	return
}

// DecodeUint16s packs MSB-first bits into 16-bit values.
func DecodeUint16s(bits []byte) ([]uint16, error) {
	if len(bits)%16 != 0 {
		return nil, fmt.Errorf("%d bits is not a multiple of 16", len(bits))
	}
	out := make([]uint16, len(bits)/16)
	for i := range out {
		for _, b := range bits[16*i : 16*(i+1)] {
			out[i] = out[i]<<1 | uint16(b&1)
		}
	}
	return out, nil
}

// FormatLines writes one value per line.
func FormatLines(values []uint16) string {
	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(strconv.Itoa(int(v)))
		sb.WriteByte('\n')
	}
	return sb.String()
}
