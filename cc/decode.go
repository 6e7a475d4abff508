package cc

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
	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/internal/zwerror"
	"github.com/zwavelink/corezwave/security"
)

// SecureContext decrypts and encrypts Security S0/S2 Message
// Encapsulation payloads on behalf of Decode/Encode. A driver's security
// engine implements this against its per-node nonce and key state; Decode
// and Encode never touch nonce/key material directly (spec.md §4.3).
//
// DecryptS0/EncryptS0 carry the sender's nonce as a full value rather than
// an id: the receiver of a Message Encapsulation never generated the
// sender's nonce, so it has nothing to look an id up against. The
// receiver's own nonce, by contrast, is referenced by the 1-byte id it
// issued via NonceReport, since the receiver already holds that value.
type SecureContext interface {
	DecryptS0(senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, ccCommand, sourceNode, destNode uint8) ([]uint8, error)
	EncryptS0(ccCommand, sourceNode, destNode uint8, plaintext []uint8) (senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, err error)
	DecryptS2(sequence, groupID uint8, multicast bool, sealed []uint8, sourceNode, destNode uint8) ([]uint8, error)
	EncryptS2(sourceNode, destNode uint8, plaintext []uint8) (sequence uint8, sealed []uint8, err error)
}

// Decode recursively unwraps data's encapsulation stack and parses the
// innermost application CC. asm reassembles Transport Service segments
// across calls; pass the same *Assembler for every frame received from a
// node. secure may be nil if the node is never expected to use Security;
// a Security envelope with a nil secure context fails with MalformedCC.
//
// Decode returns (nil, nil) while a Transport Service datagram is still
// assembling: the caller should not treat this as an error or a decoded
// CC, just incomplete input.
func Decode(nodeID uint8, data []uint8, asm *Assembler, secure SecureContext) (*Encapsulated, error) {
	return decode(nodeID, 0, data, asm, secure, nil)
}

func decode(nodeID, endpointIndex uint8, data []uint8, asm *Assembler, secure SecureContext, stack Stack) (*Encapsulated, error) {
	if err := validatePayload(len(data) >= 1, "cc: empty payload"); err != nil {
		return nil, err
	}

	ccID := data[0]
	if !IsEncapsulation(ccID) {
		inst, err := ParseApplicationCC(nodeID, endpointIndex, data)
		if err != nil {
			return nil, err
		}
		return &Encapsulated{Inner: inst, Stack: stack}, nil
	}

	switch ccID {
	case device.CommandClassTransportService:
		if asm == nil {
			return nil, zwerror.New(zwerror.KindMalformedCC, "cc: TransportService segment with no assembler")
		}
		datagram, complete, err := asm.Accept(data)
		if err != nil {
			return nil, err
		}
		if !complete {
			return nil, nil
		}
		return decode(nodeID, endpointIndex, datagram, asm, secure,
			append(stack, Wrapper{Kind: WrapTransportService}))

	case device.CommandClassMultiChannel:
		source, dest, bitAddressed, inner, err := decodeMultiChannelEncap(data)
		if err != nil {
			return nil, err
		}
		return decode(nodeID, dest, inner, asm, secure, append(stack, Wrapper{
			Kind: WrapMultiChannel, SourceEndpoint: source, DestEndpoint: dest, BitAddressed: bitAddressed,
		}))

	case device.CommandClassSupervision:
		// A Supervision Report is the terminal reply to our own supervised
		// Set, not a wrapper around an inner CC: only Get wraps.
		if len(data) >= 2 && data[1] == supervisionCommandReport {
			inst, err := ParseApplicationCC(nodeID, endpointIndex, data)
			if err != nil {
				return nil, err
			}
			return &Encapsulated{Inner: inst, Stack: stack}, nil
		}
		sessionID, statusUpdates, inner, err := decodeSupervisionGet(data)
		if err != nil {
			return nil, err
		}
		return decode(nodeID, endpointIndex, inner, asm, secure, append(stack, Wrapper{
			Kind: WrapSupervision, SupervisionSessionID: sessionID, SupervisionStatusUpdates: statusUpdates,
		}))

	case device.CommandClassCRC16Encap:
		inner, err := decodeCRC16Encap(data)
		if err != nil {
			return nil, err
		}
		return decode(nodeID, endpointIndex, inner, asm, secure, append(stack, Wrapper{Kind: WrapCRC16}))

	case device.CommandClassSecurity:
		if secure == nil {
			return nil, zwerror.New(zwerror.KindMalformedCC, "cc: Security S0 envelope with no secure context")
		}
		senderNonce, receiverNonceID, ciphertext, mac, err := decodeSecurityS0Envelope(data)
		if err != nil {
			return nil, err
		}
		// ccCommand/sourceNode/destNode for the MAC are bound once the
		// inner CC is known; S0 authenticates the *encapsulation* frame,
		// so pass the envelope's own command byte and node addressing.
		inner, err := secure.DecryptS0(senderNonce, receiverNonceID, ciphertext, mac,
			securityS0CommandMessageEncapsulation, nodeID, nodeID)
		if err != nil {
			return nil, err
		}
		return decode(nodeID, endpointIndex, inner, asm, secure, append(stack, Wrapper{Kind: WrapSecurityS0}))

	case device.CommandClassSecurity2:
		if secure == nil {
			return nil, zwerror.New(zwerror.KindMalformedCC, "cc: Security S2 envelope with no secure context")
		}
		sequence, groupID, multicast, sealed, err := decodeSecurityS2Envelope(data)
		if err != nil {
			return nil, err
		}
		inner, err := secure.DecryptS2(sequence, groupID, multicast, sealed, nodeID, nodeID)
		if err != nil {
			return nil, err
		}
		return decode(nodeID, endpointIndex, inner, asm, secure, append(stack, Wrapper{
			Kind: WrapSecurityS2, S2GroupID: groupID, S2Multicast: multicast,
		}))

	default:
		return nil, zwerror.New(zwerror.KindMalformedCC, "cc: unhandled encapsulation")
	}
}

// Encode serializes ccID/ccCommand/v as an application CC and applies the
// requested encapsulations in spec.md §4.3's resolution order: application
// CC -> CRC16 -> Multi Channel -> Supervision -> Security -> Transport
// Service (only when the result exceeds the single-frame MTU). Encode
// returns one or more frames: len(result) > 1 only when Transport Service
// segmentation was required.
func Encode(ccID, ccCommand uint8, v interface{}, opts EncodeOptions, secure SecureContext) ([][]uint8, error) {
	body, err := SerializeApplicationCC(ccID, ccCommand, v)
	if err != nil {
		return nil, err
	}

	if opts.UseCRC16 {
		body = encodeCRC16Encap(body)
	}

	if opts.EndpointIndex != 0 {
		body = encodeMultiChannelEncap(opts.EndpointIndex, body)
	}

	if opts.UseSupervision {
		body = encodeSupervisionGet(opts.SupervisionID, true, body)
	}

	mtu := mtuPlain
	if opts.NodeIsSecure {
		if secure == nil {
			return nil, zwerror.New(zwerror.KindMalformedCC, "cc: Encode: secure node with no secure context")
		}
		if opts.SecurityClass == 0 {
			// S0 authenticates the encapsulation frame itself, so the MAC
			// binds the envelope's command byte, mirroring decode.
			senderNonce, receiverNonceID, ciphertext, mac, err := secure.EncryptS0(securityS0CommandMessageEncapsulation, 0, 0, body)
			if err != nil {
				return nil, err
			}
			body = encodeSecurityS0Envelope(senderNonce, receiverNonceID, ciphertext, mac)
		} else {
			sequence, sealed, err := secure.EncryptS2(0, 0, body)
			if err != nil {
				return nil, err
			}
			body = encodeSecurityS2Envelope(sequence, sealed)
		}
		mtu = mtuSecurityS0
	}

	if !opts.ForceTransportService && len(body) <= mtu {
		return [][]uint8{body}, nil
	}

	return segmentDatagram(0, body), nil
}
