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
	"sync"

	"github.com/zwavelink/corezwave/internal/zwerror"
)

// S2NonceSize is the S2 working nonce length.
const S2NonceSize = 13

// span is one peer's Singlecast Pre-Agreed Nonce state: an AES-CTR
// keystream generator advanced by 16-byte blocks on every use.
type span struct {
	block       cipher.Block
	ctr         [16]byte
	established bool
	failures    int
}

// SPANTable tracks per-(local,peer) node SPAN state across a driver's
// lifetime. Multicast state lives in the sibling MPANTable, keyed by the
// owning node and group id instead of a peer pair.
type SPANTable struct {
	mu    sync.Mutex
	spans map[uint16]*span // key = localNode<<8 | peerNode
}

// NewSPANTable returns an empty SPANTable.
func NewSPANTable() *SPANTable {
	return &SPANTable{spans: map[uint16]*span{}}
}

func spanKey(local, peer uint8) uint16 {
	return uint16(local)<<8 | uint16(peer)
}

// EstablishS2Nonce seeds local<->peer's SPAN from senderEntropy and
// receiverEntropy via the nonce generation key, resetting any prior state
// and its consecutive-failure count.
func (t *SPANTable) EstablishS2Nonce(nonceKey [16]byte, local, peer uint8, senderEntropy, receiverEntropy []byte) error {
	block, err := aes.NewCipher(nonceKey[:])
	if err != nil {
		return err
	}
	seedInput := append(append([]byte{}, senderEntropy...), receiverEntropy...)
	mixed, err := cmac(nonceKey[:], seedInput)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &span{block: block, established: true}
	copy(s.ctr[:], mixed[:])
	t.spans[spanKey(local, peer)] = s
	return nil
}

// NextNonce advances local<->peer's SPAN one AES-CTR block and returns
// the next 13-byte working nonce (the first 13 bytes of the block).
func (t *SPANTable) NextNonce(local, peer uint8) ([S2NonceSize]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[spanKey(local, peer)]
	if !ok || !s.established {
		return [S2NonceSize]byte{}, zwerror.Wrap(zwerror.KindSecurityNonceMissing,
			"security S2: no established SPAN", nil)
	}
	out := make([]byte, 16)
	s.block.Encrypt(out, s.ctr[:])
	incrementCounter(&s.ctr)
	var nonce [S2NonceSize]byte
	copy(nonce[:], out[:S2NonceSize])
	return nonce, nil
}

// RecordFailure increments local<->peer's consecutive decrypt-failure
// count and reports whether the transaction should now be aborted
// (three consecutive failures, per spec.md §4.5 security recovery policy).
func (t *SPANTable) RecordFailure(local, peer uint8) (abort bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[spanKey(local, peer)]
	if !ok {
		return false
	}
	s.failures++
	return s.failures >= 3
}

// RecordSuccess resets local<->peer's consecutive-failure count.
func (t *SPANTable) RecordSuccess(local, peer uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.spans[spanKey(local, peer)]; ok {
		s.failures = 0
	}
}

// mpan is one multicast group's Pre-Agreed Nonce state: a 16-byte inner
// state advanced by one AES block per nonce, owned by the node that
// originates the group's traffic.
type mpan struct {
	block       cipher.Block
	state       [16]byte
	established bool
	failures    int
}

// MPANTable tracks Multicast Pre-Agreed Nonce state per (owner, group):
// owner is the node originating the group's multicast frames, group the
// 1-byte MPAN Grouping identifier carried in the S2 envelope's MGRP
// extension.
type MPANTable struct {
	mu    sync.Mutex
	mpans map[uint16]*mpan // key = ownerNode<<8 | groupID
}

// NewMPANTable returns an empty MPANTable.
func NewMPANTable() *MPANTable {
	return &MPANTable{mpans: map[uint16]*mpan{}}
}

func mpanKey(owner, group uint8) uint16 {
	return uint16(owner)<<8 | uint16(group)
}

// Establish seeds (owner, group)'s MPAN from the group entropy negotiated
// at inclusion, resetting any prior state and its failure count.
func (t *MPANTable) Establish(nonceKey [16]byte, owner, group uint8, groupEntropy []byte) error {
	block, err := aes.NewCipher(nonceKey[:])
	if err != nil {
		return err
	}
	mixed, err := cmac(nonceKey[:], append([]byte{owner, group}, groupEntropy...))
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m := &mpan{block: block, established: true}
	copy(m.state[:], mixed[:])
	t.mpans[mpanKey(owner, group)] = m
	return nil
}

// NextNonce advances (owner, group)'s MPAN one AES block and returns the
// next 13-byte working nonce.
func (t *MPANTable) NextNonce(owner, group uint8) ([S2NonceSize]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.mpans[mpanKey(owner, group)]
	if !ok || !m.established {
		return [S2NonceSize]byte{}, zwerror.Wrap(zwerror.KindSecurityNonceMissing,
			"security S2: no established MPAN", nil)
	}
	next := make([]byte, 16)
	m.block.Encrypt(next, m.state[:])
	copy(m.state[:], next)
	var nonce [S2NonceSize]byte
	copy(nonce[:], next[:S2NonceSize])
	return nonce, nil
}

// RecordFailure increments (owner, group)'s consecutive decrypt-failure
// count and reports whether the group's state should be abandoned (same
// three-strike policy as the singlecast SPAN).
func (t *MPANTable) RecordFailure(owner, group uint8) (abort bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.mpans[mpanKey(owner, group)]
	if !ok {
		return false
	}
	m.failures++
	return m.failures >= 3
}

// RecordSuccess resets (owner, group)'s consecutive-failure count.
func (t *MPANTable) RecordSuccess(owner, group uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.mpans[mpanKey(owner, group)]; ok {
		m.failures = 0
	}
}

func incrementCounter(ctr *[16]byte) {
	for i := len(ctr) - 1; i >= 0; i-- {
		ctr[i]++
		if ctr[i] != 0 {
			return
		}
	}
}

// EncryptS2 seals plaintext with AES-128-CCM under key, using nonce as the
// 13-byte CCM nonce and aad as associated data (the S2 header this core
// authenticates but does not encrypt).
func EncryptS2(key [16]byte, nonce [S2NonceSize]byte, aad, plaintext []byte) ([]byte, error) {
	aead, err := newCCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// DecryptS2 opens ciphertext (which includes its trailing 8-byte MAC)
// sealed by EncryptS2, returning an error if authentication fails.
func DecryptS2(key [16]byte, nonce [S2NonceSize]byte, aad, ciphertext []byte) ([]byte, error) {
	aead, err := newCCM(key)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, zwerror.Wrap(zwerror.KindSecurityMACFailed, "security S2: CCM auth failed", err)
	}
	return out, nil
}

// newCCM builds an AES-128-CCM AEAD with an 8-byte tag, the size Z-Wave
// S2 uses. The stdlib has no CCM mode (crypto/cipher offers GCM but not
// CCM), so S2's 8-byte-tag CCM is implemented directly atop CTR+CBC-MAC rather than
// through a cipher.AEAD wrapper (spec.md §9 stdlib-justification note).
func newCCM(key [16]byte) (ccmAEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return ccmAEAD{}, err
	}
	return ccmAEAD{block: block}, nil
}

type ccmAEAD struct {
	block cipher.Block
}

const ccmTagSize = 8

func (c ccmAEAD) Seal(dst, nonce, plaintext, aad []byte) []byte {
	tag := c.cbcMAC(nonce, aad, plaintext)
	ct := make([]byte, len(plaintext))
	c.ctrCrypt(nonce, plaintext, ct)
	encTag := make([]byte, ccmTagSize)
	c.ctrCryptTag(nonce, tag, encTag)
	return append(append(dst, ct...), encTag...)
}

func (c ccmAEAD) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < ccmTagSize {
		return nil, zwerror.New(zwerror.KindSecurityMACFailed, "security S2: ciphertext shorter than tag")
	}
	ct := ciphertext[:len(ciphertext)-ccmTagSize]
	gotEncTag := ciphertext[len(ciphertext)-ccmTagSize:]
	pt := make([]byte, len(ct))
	c.ctrCrypt(nonce, ct, pt)

	wantTag := c.cbcMAC(nonce, aad, pt)
	wantEncTag := make([]byte, ccmTagSize)
	c.ctrCryptTag(nonce, wantTag, wantEncTag)

	if !constantTimeEqual(gotEncTag, wantEncTag) {
		return nil, zwerror.New(zwerror.KindSecurityMACFailed, "security S2: tag mismatch")
	}
	return append(dst, pt...), nil
}

// ctrCrypt runs AES-CTR with a counter block built from the 13-byte nonce
// and a zeroed 3-byte counter suffix (encrypt and decrypt are identical).
func (c ccmAEAD) ctrCrypt(nonce, in, out []byte) {
	var iv [16]byte
	copy(iv[:13], nonce)
	stream := cipher.NewCTR(c.block, iv[:])
	stream.XORKeyStream(out, in)
}

func (c ccmAEAD) ctrCryptTag(nonce, tag, out []byte) {
	var iv [16]byte
	copy(iv[:13], nonce)
	iv[15] = 1
	stream := cipher.NewCTR(c.block, iv[:])
	stream.XORKeyStream(out, tag[:ccmTagSize])
}

// cbcMAC computes the CCM MAC over aad||plaintext under a nonce-derived
// IV, truncated to ccmTagSize.
func (c ccmAEAD) cbcMAC(nonce, aad, plaintext []byte) []byte {
	var iv [16]byte
	copy(iv[:13], nonce)
	mac := cipher.NewCBCEncrypter(c.block, iv[:])

	buf := append(append([]byte{}, aad...), plaintext...)
	padded := make([]byte, ((len(buf)+15)/16)*16)
	copy(padded, buf)
	if len(padded) == 0 {
		padded = make([]byte, 16)
	}
	out := make([]byte, len(padded))
	mac.CryptBlocks(out, padded)
	return out[len(out)-16 : len(out)-16+ccmTagSize]
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
