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

// Supervision command values.
const (
	supervisionCommandGet    uint8 = 0x01
	supervisionCommandReport uint8 = 0x02
)

// Supervision status codes (spec.md scenario 6).
const (
	SupervisionStatusNoSupport uint8 = 0x00
	SupervisionStatusWorking   uint8 = 0x01
	SupervisionStatusFail      uint8 = 0x02
	SupervisionStatusSuccess   uint8 = 0xff
)

// SupervisionReport is the reply to a supervised Set, decoded as a
// terminal application CC (not an encapsulation) when its ccCommand is
// supervisionCommandReport; driver.Driver resolves it to the originating
// write by SessionID, treating Working as a deadline extension and
// Success/Fail as terminal (spec.md scenario 6).
type SupervisionReport struct {
	SessionID         uint8
	MoreStatusUpdates bool
	Status            uint8
	Duration          uint8
}

// decodeSupervisionGet strips a Supervision Get envelope, returning the
// session metadata and the inner CC bytes.
// Layout: ccId | ccCommand | sessionId(bit7=statusUpdates) | length | inner...
func decodeSupervisionGet(data []uint8) (sessionID uint8, statusUpdates bool, inner []uint8, err error) {
	if err := validatePayload(len(data) >= 4, "Supervision.Get: payload too short"); err != nil {
		return 0, false, nil, err
	}
	if err := validatePayload(data[1] == supervisionCommandGet,
		"Supervision: unsupported command 0x%02x", data[1]); err != nil {
		return 0, false, nil, err
	}
	statusUpdates = data[2]&0x80 != 0
	sessionID = data[2] & 0x7f
	length := int(data[3])
	if err := validatePayload(len(data) >= 4+length, "Supervision.Get: inner CC truncated"); err != nil {
		return 0, false, nil, err
	}
	return sessionID, statusUpdates, data[4 : 4+length], nil
}

// encodeSupervisionGet wraps inner in a Supervision Get envelope.
func encodeSupervisionGet(sessionID uint8, statusUpdates bool, inner []uint8) []uint8 {
	flags := sessionID & 0x7f
	if statusUpdates {
		flags |= 0x80
	}
	out := make([]uint8, 0, 4+len(inner))
	out = append(out, device.CommandClassSupervision, supervisionCommandGet, flags, uint8(len(inner)))
	return append(out, inner...)
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassSupervision, CCCommand: supervisionCommandReport,
		Name: "Supervision.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 3, "Supervision.Report: payload too short"); err != nil {
				return nil, err
			}
			return &SupervisionReport{
				SessionID:         payload[0] & 0x7f,
				MoreStatusUpdates: payload[0]&0x80 != 0,
				Status:            payload[1],
				Duration:          payload[2],
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*SupervisionReport)
			if !ok {
				return nil, zwerror.New(zwerror.KindMalformedCC, "Supervision.Report: bad type")
			}
			flags := r.SessionID & 0x7f
			if r.MoreStatusUpdates {
				flags |= 0x80
			}
			return []uint8{flags, r.Status, r.Duration}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassSupervision, CCCommand: supervisionCommandGet,
		Name: "Supervision.Get", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"Supervision.Get must be unwrapped via Decode, not Parse")
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"Supervision.Get must be built via Encode, not Serialize")
		},
	})
}
