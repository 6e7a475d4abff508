// Package security implements Z-Wave Security S0 and S2 message
// encapsulation: nonce exchange, AES-CBC/CCM encryption, and the CMAC-style
// authentication tags both schemes use (spec.md §3, §4.3).
package security

/*
Copyright (C) 2017 Jan Kasiak

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/zwavelink/corezwave/internal/zwerror"
)

// NonceSize is the S0 nonce length in bytes.
const NonceSize = 8

// NonceTTL is how long an issued S0 nonce remains valid, or until first
// use, whichever is sooner (spec.md §4.5 timer conventions mirrored here).
const NonceTTL = 10 * time.Second

// Nonce is an issued, single-use S0 nonce.
type Nonce struct {
	ID       uint8
	Value    [NonceSize]byte
	IssuedAt time.Time
	consumed bool
}

// Expired reports whether n is past its TTL as of now.
func (n *Nonce) Expired(now time.Time) bool {
	return now.Sub(n.IssuedAt) > NonceTTL
}

// KeySet holds the three derived S0/S2 working keys: encryption,
// authentication (MAC), and nonce generation.
type KeySet struct {
	EncryptionKey [16]byte
	AuthKey       [16]byte
	NonceKey      [16]byte
}

// DeriveKeys expands a network/security key into a KeySet via HKDF, the
// same construction spake2plus.go in the commissioning stack this core
// borrows its crypto idiom from uses for session key expansion.
func DeriveKeys(networkKey []byte, info string) (*KeySet, error) {
	reader := hkdf.New(sha256.New, networkKey, nil, []byte(info))
	var ks KeySet
	if _, err := io.ReadFull(reader, ks.EncryptionKey[:]); err != nil {
		return nil, zwerror.Wrap(zwerror.KindSecurityMACFailed, "derive encryption key", err)
	}
	if _, err := io.ReadFull(reader, ks.AuthKey[:]); err != nil {
		return nil, zwerror.Wrap(zwerror.KindSecurityMACFailed, "derive auth key", err)
	}
	if _, err := io.ReadFull(reader, ks.NonceKey[:]); err != nil {
		return nil, zwerror.Wrap(zwerror.KindSecurityMACFailed, "derive nonce key", err)
	}
	return &ks, nil
}

// cmac computes AES-CMAC(key, data) per RFC 4493. No library in the
// retrieval pack implements CMAC; it is hand-rolled over stdlib
// crypto/aes block encryption (spec.md §9 stdlib-justification note).
func cmac(key []byte, data []byte) ([16]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return [16]byte{}, err
	}
	const blockSize = 16
	l := make([]byte, blockSize)
	block.Encrypt(l, l)
	k1 := shiftAndXorIfNeeded(l)
	k2 := shiftAndXorIfNeeded(k1[:])

	n := (len(data) + blockSize - 1) / blockSize
	var lastBlock []byte
	complete := n > 0 && len(data)%blockSize == 0
	if n == 0 {
		n = 1
		complete = false
	}

	padded := make([]byte, n*blockSize)
	copy(padded, data)
	if complete {
		lastBlock = xorBytes(padded[(n-1)*blockSize:n*blockSize], k1[:])
	} else {
		padded[len(data)] = 0x80
		lastBlock = xorBytes(padded[(n-1)*blockSize:n*blockSize], k2[:])
	}
	copy(padded[(n-1)*blockSize:n*blockSize], lastBlock)

	x := make([]byte, blockSize)
	for i := 0; i < n; i++ {
		y := xorBytes(x, padded[i*blockSize:(i+1)*blockSize])
		block.Encrypt(x, y)
	}
	var out [16]byte
	copy(out[:], x)
	return out, nil
}

func shiftAndXorIfNeeded(in []byte) [16]byte {
	var out [16]byte
	msb := in[0]&0x80 != 0
	carry := byte(0)
	for i := 15; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = (in[i] & 0x80) >> 7
	}
	if msb {
		out[15] ^= 0x87
	}
	return out
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// EncryptS0 encrypts plaintext with AES-128-CBC using an IV built from
// senderNonce||receiverNonce (S0's construction), returning ciphertext of
// the same length as plaintext.
func EncryptS0(key [16]byte, senderNonce, receiverNonce [NonceSize]byte, plaintext []byte) ([]byte, error) {
	iv := append(append([]byte{}, senderNonce[:]...), receiverNonce[:]...)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	padded := make([]byte, len(plaintext))
	copy(padded, plaintext)
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out, padded)
	return out, nil
}

// DecryptS0 is the inverse of EncryptS0.
func DecryptS0(key [16]byte, senderNonce, receiverNonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, zwerror.New(zwerror.KindSecurityMACFailed, "security S0: ciphertext not block-aligned")
	}
	iv := append(append([]byte{}, senderNonce[:]...), receiverNonce[:]...)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(out, ciphertext)
	return out, nil
}

// MACS0 computes the S0 message authentication tag: CMAC truncated to 8
// bytes over senderNonce||receiverNonce||ccCommand||sourceNode||destNode||ciphertext.
func MACS0(authKey [16]byte, senderNonce, receiverNonce [NonceSize]byte, ccCommand, sourceNode, destNode uint8, ciphertext []byte) ([8]byte, error) {
	buf := make([]byte, 0, NonceSize*2+3+len(ciphertext))
	buf = append(buf, senderNonce[:]...)
	buf = append(buf, receiverNonce[:]...)
	buf = append(buf, ccCommand, sourceNode, destNode)
	buf = append(buf, ciphertext...)
	full, err := cmac(authKey[:], buf)
	if err != nil {
		return [8]byte{}, err
	}
	var out [8]byte
	copy(out[:], full[:8])
	return out, nil
}

// VerifyMACS0 recomputes the MAC and compares it to tag in constant time.
func VerifyMACS0(authKey [16]byte, senderNonce, receiverNonce [NonceSize]byte, ccCommand, sourceNode, destNode uint8, ciphertext []byte, tag [8]byte) (bool, error) {
	want, err := MACS0(authKey, senderNonce, receiverNonce, ccCommand, sourceNode, destNode, ciphertext)
	if err != nil {
		return false, err
	}
	return hmac.Equal(want[:], tag[:]), nil
}

// Class identifies an S2 security class a node can be granted.
type Class uint8

// S2 security classes, strongest first. ClassNone marks a node included
// without any security granted.
const (
	ClassS2AccessControl Class = iota
	ClassS2Authenticated
	ClassS2Unauthenticated
	ClassS0Legacy
	ClassNone Class = 0xff
)

func (c Class) String() string {
	switch c {
	case ClassS2AccessControl:
		return "S2_ACCESS_CONTROL"
	case ClassS2Authenticated:
		return "S2_AUTHENTICATED"
	case ClassS2Unauthenticated:
		return "S2_UNAUTHENTICATED"
	case ClassS0Legacy:
		return "S0_LEGACY"
	case ClassNone:
		return "NONE"
	default:
		return fmt.Sprintf("Class(%d)", c)
	}
}
