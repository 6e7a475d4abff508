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
	"encoding/binary"

	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/internal/zwerror"
)

// CRC16 Encap command value.
const crc16CommandEncap uint8 = 0x01

// crc16CCITT computes the CRC-16/CCITT-FALSE checksum (poly 0x1021, init
// 0xFFFF) CRC16 Encap uses: no ecosystem library in the retrieval pack
// implements this exact variant, so it is hand-rolled over the standard
// bit-at-a-time algorithm (spec.md §9 stdlib-justification note).
func crc16CCITT(data []uint8) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// decodeCRC16Encap validates and strips a CRC16 Encap envelope.
// Layout: ccId | ccCommand | inner... | crc16(big-endian, over everything before it)
func decodeCRC16Encap(data []uint8) (inner []uint8, err error) {
	if err := validatePayload(len(data) >= 4, "CRC16.Encap: payload too short"); err != nil {
		return nil, err
	}
	if err := validatePayload(data[1] == crc16CommandEncap,
		"CRC16: unsupported command 0x%02x", data[1]); err != nil {
		return nil, err
	}
	body := data[:len(data)-2]
	want := binary.BigEndian.Uint16(data[len(data)-2:])
	got := crc16CCITT(body)
	if got != want {
		return nil, zwerror.New(zwerror.KindMalformedCC, "CRC16.Encap: checksum mismatch")
	}
	return body[2:], nil
}

// encodeCRC16Encap wraps inner in a CRC16 Encap envelope with a trailing
// checksum over the header and inner bytes.
func encodeCRC16Encap(inner []uint8) []uint8 {
	body := make([]uint8, 0, 2+len(inner))
	body = append(body, device.CommandClassCRC16Encap, crc16CommandEncap)
	body = append(body, inner...)
	sum := crc16CCITT(body)
	out := make([]uint8, 2)
	binary.BigEndian.PutUint16(out, sum)
	return append(body, out...)
}
