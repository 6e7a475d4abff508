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
)

// Security 2 command values this core exchanges. Key exchange (KEX
// Get/Report/Set, Public Key Report) is commissioning-time only and out
// of scope: nodes arrive already bootstrapped into a security class
// (spec.md Non-goals).
const (
	securityS2CommandMessageEncapsulation uint8 = 0x03
)

// securityS2ExtensionMGRP is the MPAN Grouping extension: one byte of
// group id identifying which MPAN chain sealed a multicast frame.
const securityS2ExtensionMGRP uint8 = 0x03

// decodeSecurityS2Envelope splits a Message Encapsulation envelope into
// its sequence/extension header and the still-sealed ciphertext (which
// includes its trailing CCM tag). When the extension flag is set, the
// unencrypted extension block is walked for an MGRP extension; its group
// id selects the MPAN chain instead of the sender's singlecast SPAN.
// Layout: ccId | ccCommand | sequence | extensionFlag |
//         [extensions: length | type | data...]... | ciphertext+tag...
func decodeSecurityS2Envelope(data []uint8) (sequence, groupID uint8, multicast bool, sealed []uint8, err error) {
	if err := validatePayload(len(data) >= 4, "SecurityS2.MessageEncapsulation: payload too short"); err != nil {
		return 0, 0, false, nil, err
	}
	if err := validatePayload(data[1] == securityS2CommandMessageEncapsulation,
		"SecurityS2: unsupported command 0x%02x", data[1]); err != nil {
		return 0, 0, false, nil, err
	}
	sequence = data[2]
	rest := data[4:]
	more := data[3]&0x01 != 0
	for more {
		if err := validatePayload(len(rest) >= 2, "SecurityS2: truncated extension header"); err != nil {
			return 0, 0, false, nil, err
		}
		extLen := int(rest[0])
		if err := validatePayload(extLen >= 2 && extLen <= len(rest), "SecurityS2: bad extension length %d", extLen); err != nil {
			return 0, 0, false, nil, err
		}
		extType := rest[1] & 0x3f
		more = rest[1]&0x80 != 0
		if extType == securityS2ExtensionMGRP {
			if err := validatePayload(extLen >= 3, "SecurityS2: MGRP extension too short"); err != nil {
				return 0, 0, false, nil, err
			}
			groupID = rest[2]
			multicast = true
		}
		rest = rest[extLen:]
	}
	sealed = rest
	return sequence, groupID, multicast, sealed, nil
}

// encodeSecurityS2Envelope builds a Message Encapsulation envelope around
// an already-sealed ciphertext+tag.
func encodeSecurityS2Envelope(sequence uint8, sealed []uint8) []uint8 {
	out := make([]uint8, 0, 4+len(sealed))
	out = append(out, device.CommandClassSecurity2, securityS2CommandMessageEncapsulation, sequence, 0x00)
	return append(out, sealed...)
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassSecurity2, CCCommand: securityS2CommandMessageEncapsulation,
		Name: "SecurityS2.MessageEncapsulation", Version: 1,
		Parse: func(payload []uint8) (interface{}, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"SecurityS2.MessageEncapsulation must be unwrapped via Decode, not Parse")
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"SecurityS2.MessageEncapsulation must be built via Encode, not Serialize")
		},
	})
}
