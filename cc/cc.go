// Package cc encodes and decodes Command Classes: node-addressed
// application commands, including the encapsulation CCs (Multi Channel,
// Supervision, Security S0/S2, CRC16, Transport Service) that wrap an
// application CC for transport (spec.md §3, §4.3).
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
	"fmt"

	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/internal/zwerror"
)

// Instance is a single, non-encapsulating application Command Class
// command: a bare (ccId, ccCommand) addressed to a node/endpoint with its
// payload already stripped of any encapsulation envelope.
type Instance struct {
	NodeID        uint8
	EndpointIndex uint8 // 0 is the root device
	CCID          uint8
	CCCommand     uint8
	Payload       []uint8
	// Parsed holds the typed decode result (e.g. *BinarySwitchReport) when
	// the (CCID, CCCommand) pair is registered; nil for unknown pairs,
	// which still carry their raw Payload.
	Parsed interface{}
}

// Stack records the ordered encapsulation envelope a CC arrived in,
// outermost-first: Decode appends each wrapper as it unwraps it, so
// Stack[0] is the outermost layer and the last entry the innermost.
type Stack []Wrapper

// WrapperKind identifies an encapsulation layer.
type WrapperKind int

const (
	WrapCRC16 WrapperKind = iota
	WrapMultiChannel
	WrapSupervision
	WrapSecurityS0
	WrapSecurityS2
	WrapTransportService
)

// Wrapper is one encapsulation layer's metadata, enough to reconstruct it
// on re-encode.
type Wrapper struct {
	Kind WrapperKind

	// Multi Channel
	SourceEndpoint uint8
	DestEndpoint   uint8
	BitAddressed   bool

	// Supervision
	SupervisionSessionID     uint8
	SupervisionStatusUpdates bool

	// Security
	SecurityClass uint8 // 0 = S0, else an S2 class identifier
	S2GroupID     uint8 // MPAN group that sealed a multicast frame
	S2Multicast   bool

	// Transport Service
	SegmentTotal int
	DatagramHash uint16
}

// Encapsulated is a fully-decoded CC: its innermost application CC plus
// the ordered stack of encapsulations it arrived wrapped in (spec.md §3).
type Encapsulated struct {
	Inner *Instance
	Stack Stack
}

// EncodeOptions selects which outer encapsulations to apply, per the
// encode resolution order in spec.md §4.3 (innermost to outermost):
// application CC -> CRC16 -> Multi Channel -> Supervision -> Security ->
// Transport Service (when oversized).
type EncodeOptions struct {
	EndpointIndex         uint8 // nonzero triggers Multi Channel wrapping
	UseCRC16              bool
	UseSupervision        bool
	SupervisionID         uint8
	NodeIsSecure          bool
	SecurityClass         uint8
	ForceTransportService bool
}

// Single-frame MTU, in payload bytes, before Transport Service
// segmentation is required (spec.md §4.3).
const (
	mtuSecurityS0 = 39
	mtuPlain      = 46
)

// validatePayload is the strict boundary assertion spec.md §4.3 requires
// at every decode step: on failure it aborts decoding immediately with
// zwerror.KindMalformedCC and no partial state is returned to the caller.
func validatePayload(condition bool, format string, args ...interface{}) error {
	if condition {
		return nil
	}
	return zwerror.Wrap(zwerror.KindMalformedCC, fmt.Sprintf(format, args...), nil)
}

// Descriptor is a registered application CC command: parse/serialize for
// one (ccId, ccCommand) pair, plus enough metadata to drive the interview
// driver and the response-matching predicate (spec.md §4.3, §9).
type Descriptor struct {
	CCID      uint8
	CCCommand uint8
	Name      string
	Version   uint8

	// Parse decodes payload (the bytes after ccId/ccCommand) into a typed
	// value stored in Instance.Parsed.
	Parse func(payload []uint8) (interface{}, error)

	// Serialize encodes v (the same type Parse produces) back to payload
	// bytes.
	Serialize func(v interface{}) ([]uint8, error)

	// ExpectedResponseCommand is the ccCommand of the paired response, or
	// 0 if this command class command carries no application-level
	// response (e.g. Set commands).
	ExpectedResponseCommand uint8
}

type registryKey struct {
	ccID      uint8
	ccCommand uint8
}

var registry = map[registryKey]*Descriptor{}

// Register adds d to the CC registry, keyed by (ccId, ccCommand). Matches
// spec.md §9's "registry keyed by (ccId, ccCommand, version)" design note;
// version is carried on the Descriptor itself rather than the key since
// this core does not multi-version a single command's wire shape.
func Register(d *Descriptor) {
	registry[registryKey{d.CCID, d.CCCommand}] = d
}

func lookup(ccID, ccCommand uint8) (*Descriptor, bool) {
	d, ok := registry[registryKey{ccID, ccCommand}]
	return d, ok
}

// ParseApplicationCC decodes a non-encapsulating application CC: the
// first two bytes are ccId/ccCommand, the rest is the registered
// descriptor's payload.
func ParseApplicationCC(nodeID, endpointIndex uint8, data []uint8) (*Instance, error) {
	if err := validatePayload(len(data) >= 2, "cc payload too short: %d < 2", len(data)); err != nil {
		return nil, err
	}
	ccID, ccCommand := data[0], data[1]
	payload := data[2:]

	inst := &Instance{NodeID: nodeID, EndpointIndex: endpointIndex, CCID: ccID,
		CCCommand: ccCommand, Payload: payload}

	if d, ok := lookup(ccID, ccCommand); ok {
		parsed, err := d.Parse(payload)
		if err != nil {
			return nil, zwerror.Wrap(zwerror.KindMalformedCC,
				fmt.Sprintf("cc 0x%02x/0x%02x (%s)", ccID, ccCommand, d.Name), err)
		}
		inst.Parsed = parsed
	}

	return inst, nil
}

// SerializeApplicationCC encodes a registered (ccID, ccCommand, v) back
// to wire bytes: ccId | ccCommand | payload.
func SerializeApplicationCC(ccID, ccCommand uint8, v interface{}) ([]uint8, error) {
	d, ok := lookup(ccID, ccCommand)
	if !ok {
		return nil, zwerror.New(zwerror.KindMalformedCC,
			fmt.Sprintf("cc 0x%02x/0x%02x not registered", ccID, ccCommand))
	}
	payload, err := d.Serialize(v)
	if err != nil {
		return nil, zwerror.Wrap(zwerror.KindMalformedCC, d.Name, err)
	}
	out := make([]uint8, 0, 2+len(payload))
	out = append(out, ccID, ccCommand)
	out = append(out, payload...)
	return out, nil
}

// IsEncapsulation reports whether ccID is one of the wrapping CCs that
// recursively carries an inner CC.
func IsEncapsulation(ccID uint8) bool {
	switch ccID {
	case device.CommandClassMultiChannel, device.CommandClassSupervision,
		device.CommandClassSecurity, device.CommandClassSecurity2,
		device.CommandClassCRC16Encap, device.CommandClassTransportService:
		return true
	default:
		return false
	}
}
