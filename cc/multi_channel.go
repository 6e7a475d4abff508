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

// Multi Channel command values. CmdEncap wraps/unwraps application CCs;
// EndPointGet/Report and CapabilityGet/Report drive the Endpoints
// interview stage (spec.md §4.7).
const (
	multiChannelCommandCmdEncap         uint8 = 0x0D
	multiChannelCommandEndPointGet      uint8 = 0x07
	multiChannelCommandEndPointReport   uint8 = 0x08
	multiChannelCommandCapabilityGet    uint8 = 0x09
	multiChannelCommandCapabilityReport uint8 = 0x0A
)

// MultiChannelEndPointGet requests the node's total endpoint count.
type MultiChannelEndPointGet struct{}

// MultiChannelEndPointReport carries the node's total endpoint count.
type MultiChannelEndPointReport struct {
	Identical       bool // endpoints share one capability set
	Dynamic         bool
	IndividualCount uint8
	AggregatedCount uint8
}

// MultiChannelCapabilityGet requests one endpoint's device class and
// command class lists.
type MultiChannelCapabilityGet struct {
	EndpointIndex uint8
}

// MultiChannelCapabilityReport carries one endpoint's device class and
// supported/controlled command classes, split at device.CommandClassMark
// the same way a root NIF is (spec.md §4.7 Endpoints stage).
type MultiChannelCapabilityReport struct {
	EndpointIndex uint8
	Generic       uint8
	Specific      uint8
	SupportedCCs  []uint8
	ControlledCCs []uint8
}

// decodeMultiChannelEncap strips a Multi Channel CmdEncap envelope,
// returning the source/destination endpoint and the inner CC bytes.
// Layout: ccId | ccCommand | sourceEndpoint | destEndpoint(bit7=bitAddress) | inner...
func decodeMultiChannelEncap(data []uint8) (source, dest uint8, bitAddressed bool, inner []uint8, err error) {
	if err := validatePayload(len(data) >= 4, "MultiChannel.CmdEncap: payload too short"); err != nil {
		return 0, 0, false, nil, err
	}
	if err := validatePayload(data[1] == multiChannelCommandCmdEncap,
		"MultiChannel: unsupported command 0x%02x", data[1]); err != nil {
		return 0, 0, false, nil, err
	}
	source = data[2]
	bitAddressed = data[3]&0x80 != 0
	dest = data[3] & 0x7f
	inner = data[4:]
	return source, dest, bitAddressed, inner, nil
}

// encodeMultiChannelEncap wraps inner in a Multi Channel CmdEncap targeted
// at destEndpoint from endpoint 0 (the source this core always reports
// itself as, per spec.md scenario 3).
func encodeMultiChannelEncap(destEndpoint uint8, inner []uint8) []uint8 {
	out := make([]uint8, 0, 4+len(inner))
	out = append(out, device.CommandClassMultiChannel, multiChannelCommandCmdEncap, 0x00, destEndpoint&0x7f)
	return append(out, inner...)
}

func init() {
	// Registered so IsEncapsulation-driven dispatch can also look up the
	// CmdEncap descriptor's name/version for logging; Decode/Encode in
	// decode.go drive the actual recursive unwrap rather than Parse here.
	Register(&Descriptor{
		CCID: device.CommandClassMultiChannel, CCCommand: multiChannelCommandCmdEncap,
		Name: "MultiChannel.CmdEncap", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			return nil, zwerror.New(zwerror.KindMalformedCC,
				"MultiChannel.CmdEncap must be unwrapped via Decode, not Parse")
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			return nil, fmt.Errorf("cc: MultiChannel.CmdEncap must be built via Encode, not Serialize")
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultiChannel, CCCommand: multiChannelCommandEndPointGet,
		Name: "MultiChannel.EndPointGet", Version: 4,
		Parse:                   func(payload []uint8) (interface{}, error) { return &MultiChannelEndPointGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: multiChannelCommandEndPointReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultiChannel, CCCommand: multiChannelCommandEndPointReport,
		Name: "MultiChannel.EndPointReport", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 2, "MultiChannel.EndPointReport: payload too short"); err != nil {
				return nil, err
			}
			return &MultiChannelEndPointReport{
				Identical:       payload[0]&0x40 != 0,
				Dynamic:         payload[0]&0x80 != 0,
				IndividualCount: payload[1] & 0x7f,
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*MultiChannelEndPointReport)
			if !ok {
				return nil, fmt.Errorf("cc: MultiChannel.EndPointReport: bad type %T", v)
			}
			var flags uint8
			if r.Dynamic {
				flags |= 0x80
			}
			if r.Identical {
				flags |= 0x40
			}
			return []uint8{flags, r.IndividualCount & 0x7f, r.AggregatedCount}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultiChannel, CCCommand: multiChannelCommandCapabilityGet,
		Name: "MultiChannel.CapabilityGet", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "MultiChannel.CapabilityGet: payload too short"); err != nil {
				return nil, err
			}
			return &MultiChannelCapabilityGet{EndpointIndex: payload[0] & 0x7f}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			g, ok := v.(*MultiChannelCapabilityGet)
			if !ok {
				return nil, fmt.Errorf("cc: MultiChannel.CapabilityGet: bad type %T", v)
			}
			return []uint8{g.EndpointIndex & 0x7f}, nil
		},
		ExpectedResponseCommand: multiChannelCommandCapabilityReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultiChannel, CCCommand: multiChannelCommandCapabilityReport,
		Name: "MultiChannel.CapabilityReport", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 3, "MultiChannel.CapabilityReport: payload too short"); err != nil {
				return nil, err
			}
			out := &MultiChannelCapabilityReport{
				EndpointIndex: payload[0] & 0x7f,
				Generic:       payload[1],
				Specific:      payload[2],
			}
			afterMark := false
			for _, ccID := range payload[3:] {
				if !afterMark && ccID == device.CommandClassMark {
					afterMark = true
					continue
				}
				if afterMark {
					out.ControlledCCs = append(out.ControlledCCs, ccID)
				} else {
					out.SupportedCCs = append(out.SupportedCCs, ccID)
				}
			}
			return out, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*MultiChannelCapabilityReport)
			if !ok {
				return nil, fmt.Errorf("cc: MultiChannel.CapabilityReport: bad type %T", v)
			}
			out := []uint8{r.EndpointIndex & 0x7f, r.Generic, r.Specific}
			out = append(out, r.SupportedCCs...)
			out = append(out, device.CommandClassMark)
			out = append(out, r.ControlledCCs...)
			return out, nil
		},
	})
}
