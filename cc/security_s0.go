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

// Security (S0) command values this core exchanges. Network key bootstrap
// (NetworkKeySet/Verify, SchemeGet/Report) is out of scope: nodes are
// provisioned with their security class out of band (spec.md Non-goals).
const (
	securityS0CommandNonceGet             uint8 = 0x40
	securityS0CommandNonceReport          uint8 = 0x41
	securityS0CommandMessageEncapsulation uint8 = 0x81
)

// SecurityS0NonceGet requests a fresh nonce from the peer.
type SecurityS0NonceGet struct{}

// SecurityS0NonceReport carries a freshly issued nonce.
type SecurityS0NonceReport struct {
	Nonce [security.NonceSize]byte
}

// securityS0Envelope is the parsed-but-still-encrypted Message
// Encapsulation envelope: ccId | ccCommand | senderNonce(8) | ciphertext... | receiverNonceId | mac(8)
// The sender's nonce travels in full since the receiver never generated
// it and has no pool to look it up in; the receiver's nonce travels only
// as the 1-byte id it issued via NonceReport, since the receiver already
// holds the value under that id.
func decodeSecurityS0Envelope(data []uint8) (senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, err error) {
	if err := validatePayload(len(data) >= 2+security.NonceSize+1+8, "SecurityS0.MessageEncapsulation: payload too short"); err != nil {
		return senderNonce, 0, nil, mac, err
	}
	if err := validatePayload(data[1] == securityS0CommandMessageEncapsulation,
		"SecurityS0: unsupported command 0x%02x", data[1]); err != nil {
		return senderNonce, 0, nil, mac, err
	}
	copy(senderNonce[:], data[2:2+security.NonceSize])
	body := data[2+security.NonceSize:]
	receiverNonceID = body[len(body)-9]
	copy(mac[:], body[len(body)-8:])
	ciphertext = body[:len(body)-9]
	return senderNonce, receiverNonceID, ciphertext, mac, nil
}

// encodeSecurityS0Envelope builds a Message Encapsulation envelope around
// an already-encrypted ciphertext and its MAC.
func encodeSecurityS0Envelope(senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte) []uint8 {
	out := make([]uint8, 0, 2+security.NonceSize+len(ciphertext)+9)
	out = append(out, device.CommandClassSecurity, securityS0CommandMessageEncapsulation)
	out = append(out, senderNonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, receiverNonceID)
	out = append(out, mac[:]...)
	return out
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassSecurity, CCCommand: securityS0CommandNonceGet,
		Name: "SecurityS0.NonceGet", Version: 1,
		Parse:     func(payload []uint8) (interface{}, error) { return &SecurityS0NonceGet{}, nil },
		Serialize: func(v interface{}) ([]uint8, error) { return nil, nil },
	})

	Register(&Descriptor{
		CCID: device.CommandClassSecurity, CCCommand: securityS0CommandNonceReport,
		Name: "SecurityS0.NonceReport", Version: 1,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= security.NonceSize,
				"SecurityS0.NonceReport: payload too short"); err != nil {
				return nil, err
			}
			var r SecurityS0NonceReport
			copy(r.Nonce[:], payload[:security.NonceSize])
			return &r, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*SecurityS0NonceReport)
			if !ok {
				return nil, zwerror.New(zwerror.KindMalformedCC, "SecurityS0.NonceReport: bad type")
			}
			return append([]uint8{}, r.Nonce[:]...), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassSecurity, CCCommand: securityS0CommandMessageEncapsulation,
		Name: "SecurityS0.MessageEncapsulation", Version: 1,
		Parse: func(payload []uint8) (interface{}, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"SecurityS0.MessageEncapsulation must be unwrapped via Decode, not Parse")
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"SecurityS0.MessageEncapsulation must be built via Encode, not Serialize")
		},
	})
}
