package driver

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
	"crypto/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/internal/zwerror"
	"github.com/zwavelink/corezwave/security"
)

// SecureContext implements cc.SecureContext against this driver's S0/S2
// key material and per-peer nonce/SPAN state (spec.md §4.4). A Driver
// owns exactly one SecureContext for its lifetime.
type SecureContext struct {
	logger    *zap.Logger
	s0Keys    *security.KeySet
	s2Keys    map[security.Class]*security.KeySet
	defaultS2 security.Class
	spans     *security.SPANTable
	mpans     *security.MPANTable

	mu         sync.Mutex
	ownNonces  map[uint8]*security.Nonce // issued by us, resolved by the 1-byte id a peer echoes back
	peerNonces map[uint8]*security.Nonce // latest NonceReport received from a peer, keyed by peer nodeId
	sequences  map[uint8]uint8           // next S2 sequence number per peer nodeId
}

// NewSecureContext returns a SecureContext. s0Keys/s2Keys may be nil if
// that scheme is never used; defaultS2Class selects which class
// EncryptS2 seals new outgoing traffic under.
func NewSecureContext(s0Keys *security.KeySet, s2Keys map[security.Class]*security.KeySet, defaultS2Class security.Class, logger *zap.Logger) *SecureContext {
	return &SecureContext{
		logger:     logger,
		s0Keys:     s0Keys,
		s2Keys:     s2Keys,
		defaultS2:  defaultS2Class,
		spans:      security.NewSPANTable(),
		mpans:      security.NewMPANTable(),
		ownNonces:  map[uint8]*security.Nonce{},
		peerNonces: map[uint8]*security.Nonce{},
		sequences:  map[uint8]uint8{},
	}
}

// SPANs returns the SPAN table backing S2 singlecast state, so
// bootstrap/inclusion code can call EstablishS2Nonce once entropy is
// negotiated with a peer.
func (s *SecureContext) SPANs() *security.SPANTable { return s.spans }

// MPANs returns the MPAN table backing S2 multicast state, so
// bootstrap/inclusion code can call Establish once a group's entropy is
// negotiated with its owner.
func (s *SecureContext) MPANs() *security.MPANTable { return s.mpans }

// IssueNonce generates and records a fresh nonce for an upcoming
// NonceReport (spec.md §4.4's request/response exchange).
func (s *SecureContext) IssueNonce() (*security.Nonce, error) {
	var value [security.NonceSize]byte
	if _, err := rand.Read(value[:]); err != nil {
		return nil, zwerror.Wrap(zwerror.KindSecurityNonceMissing, "security: generate nonce", err)
	}
	n := &security.Nonce{ID: value[0], Value: value, IssuedAt: time.Now()}
	s.mu.Lock()
	s.ownNonces[n.ID] = n
	s.mu.Unlock()
	return n, nil
}

// RecordPeerNonce stores a nonce peerNodeID reported via NonceReport, so
// a subsequent EncryptS0 addressed to that node can consume it.
func (s *SecureContext) RecordPeerNonce(peerNodeID uint8, n *security.Nonce) {
	s.mu.Lock()
	s.peerNonces[peerNodeID] = n
	s.mu.Unlock()
}

func (s *SecureContext) takeOwnNonce(id uint8) (*security.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.ownNonces[id]
	if !ok {
		return nil, zwerror.Wrap(zwerror.KindSecurityNonceMissing, "security: no issued nonce for id", nil)
	}
	delete(s.ownNonces, id)
	if n.Expired(time.Now()) {
		return nil, zwerror.Wrap(zwerror.KindSecurityNonceMissing, "security: issued nonce expired", nil)
	}
	return n, nil
}

func (s *SecureContext) takePeerNonce(peerNodeID uint8) (*security.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.peerNonces[peerNodeID]
	if !ok {
		return nil, zwerror.Wrap(zwerror.KindSecurityNonceMissing, "security: no nonce received from peer", nil)
	}
	delete(s.peerNonces, peerNodeID)
	if n.Expired(time.Now()) {
		return nil, zwerror.Wrap(zwerror.KindSecurityNonceMissing, "security: peer nonce expired", nil)
	}
	return n, nil
}

// DecryptS0 implements cc.SecureContext.
func (s *SecureContext) DecryptS0(senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, ccCommand, sourceNode, destNode uint8) ([]uint8, error) {
	if s.s0Keys == nil {
		return nil, zwerror.New(zwerror.KindSecurityMACFailed, "security: S0 not provisioned")
	}
	receiverNonce, err := s.takeOwnNonce(receiverNonceID)
	if err != nil {
		return nil, err
	}
	ok, err := security.VerifyMACS0(s.s0Keys.AuthKey, senderNonce, receiverNonce.Value, ccCommand, sourceNode, destNode, ciphertext, mac)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zwerror.ErrSecurityMACFailed
	}
	return security.DecryptS0(s.s0Keys.EncryptionKey, senderNonce, receiverNonce.Value, ciphertext)
}

// EncryptS0 implements cc.SecureContext.
func (s *SecureContext) EncryptS0(ccCommand, sourceNode, destNode uint8, plaintext []uint8) (senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, err error) {
	if s.s0Keys == nil {
		err = zwerror.New(zwerror.KindSecurityMACFailed, "security: S0 not provisioned")
		return
	}
	receiverNonce, nerr := s.takePeerNonce(destNode)
	if nerr != nil {
		err = nerr
		return
	}
	if _, rerr := rand.Read(senderNonce[:]); rerr != nil {
		err = zwerror.Wrap(zwerror.KindSecurityNonceMissing, "security: generate sender nonce", rerr)
		return
	}
	ciphertext, err = security.EncryptS0(s.s0Keys.EncryptionKey, senderNonce, receiverNonce.Value, plaintext)
	if err != nil {
		return
	}
	mac, err = security.MACS0(s.s0Keys.AuthKey, senderNonce, receiverNonce.Value, ccCommand, sourceNode, destNode, ciphertext)
	receiverNonceID = receiverNonce.ID
	return
}

// DecryptS2 implements cc.SecureContext. A multicast frame is opened
// against the sending group's MPAN chain (keyed by the frame's source
// node and MGRP group id); singlecast frames use the per-peer SPAN.
func (s *SecureContext) DecryptS2(sequence, groupID uint8, multicast bool, sealed []uint8, sourceNode, destNode uint8) ([]uint8, error) {
	keys, ok := s.s2Keys[s.defaultS2]
	if !ok {
		return nil, zwerror.New(zwerror.KindSecurityMACFailed, "security: S2 class not provisioned")
	}

	if multicast {
		nonce, err := s.mpans.NextNonce(sourceNode, groupID)
		if err != nil {
			return nil, err
		}
		aad := []uint8{sequence, groupID}
		plaintext, err := security.DecryptS2(keys.EncryptionKey, nonce, aad, sealed)
		if err != nil {
			if s.mpans.RecordFailure(sourceNode, groupID) {
				return nil, zwerror.Wrap(zwerror.KindSecurityMACFailed, "security S2: abandoning MPAN after repeated MAC failure", err)
			}
			return nil, err
		}
		s.mpans.RecordSuccess(sourceNode, groupID)
		return plaintext, nil
	}

	nonce, err := s.spans.NextNonce(destNode, sourceNode)
	if err != nil {
		return nil, err
	}
	aad := []uint8{sequence}
	plaintext, err := security.DecryptS2(keys.EncryptionKey, nonce, aad, sealed)
	if err != nil {
		if s.spans.RecordFailure(destNode, sourceNode) {
			return nil, zwerror.Wrap(zwerror.KindSecurityMACFailed, "security S2: aborting after repeated MAC failure", err)
		}
		return nil, err
	}
	s.spans.RecordSuccess(destNode, sourceNode)
	return plaintext, nil
}

// EncryptS2 implements cc.SecureContext.
func (s *SecureContext) EncryptS2(sourceNode, destNode uint8, plaintext []uint8) (sequence uint8, sealed []uint8, err error) {
	keys, ok := s.s2Keys[s.defaultS2]
	if !ok {
		err = zwerror.New(zwerror.KindSecurityMACFailed, "security: S2 class not provisioned")
		return
	}
	nonce, nerr := s.spans.NextNonce(sourceNode, destNode)
	if nerr != nil {
		err = nerr
		return
	}
	s.mu.Lock()
	sequence = s.sequences[destNode]
	s.sequences[destNode] = sequence + 1
	s.mu.Unlock()
	sealed, err = security.EncryptS2(keys.EncryptionKey, nonce, []uint8{sequence}, plaintext)
	return
}
