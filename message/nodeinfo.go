package message

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

	"github.com/zwavelink/corezwave/frame"
)

// ZWGetNodeProtocolInfo is the response payload for
// FuncZWGetNodeProtocolInfo: the Interview driver's ProtocolInfo stage.
type ZWGetNodeProtocolInfo struct {
	Listening           bool
	FrequentListening   bool
	Routing             bool
	MaxBaudRate         uint32
	Beaming             bool
	BasicDeviceClass    uint8
	GenericDeviceClass  uint8
	SpecificDeviceClass uint8
}

// ZWRequestNodeInfoResponse acknowledges that the controller accepted a
// FuncZWRequestNodeInfo request; the node information itself arrives
// later as a FuncZWApplicationUpdate callback.
type ZWRequestNodeInfoResponse struct {
	Accepted bool
}

// ZWApplicationUpdate is the callback carrying a node's NIF: device
// class plus supported/controlled command classes, separated by
// device.CommandClassMark (spec.md §4.7 NodeInfo stage).
type ZWApplicationUpdate struct {
	Status              uint8
	NodeID              uint8
	BasicDeviceClass    uint8
	GenericDeviceClass  uint8
	SpecificDeviceClass uint8
	SupportedCCs        []uint8
	ControlledCCs       []uint8
}

func registerNodeInfo() {
	Register(FuncZWGetNodeProtocolInfo, &Descriptor{
		Name: "ZWGetNodeProtocolInfo",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			nodeID, ok := v.(uint8)
			if !ok {
				return nil, fmt.Errorf("message: ZWGetNodeProtocolInfo serialize: bad type %T", v)
			}
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncZWGetNodeProtocolInfo),
				Payload: []uint8{nodeID}}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 6 {
				return nil, errTooShort(FuncZWGetNodeProtocolInfo, len(f.Payload), 6)
			}
			caps := f.Payload[0]
			// MaxBaudRate/Beaming live in Payload[1]/Payload[2] on real
			// controllers; they are not decoded and are left at their
			// zero value, so the ProtocolInfo stage records 0/false for them.
			return &ZWGetNodeProtocolInfo{
				Listening:           caps&0x80 != 0,
				FrequentListening:   caps&0x60 != 0 && caps&0x80 == 0,
				Routing:             caps&0x40 != 0,
				BasicDeviceClass:    f.Payload[3],
				GenericDeviceClass:  f.Payload[4],
				SpecificDeviceClass: f.Payload[5],
			}, nil
		},
	})

	Register(FuncZWRequestNodeInfo, &Descriptor{
		Name: "ZWRequestNodeInfo",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			nodeID, ok := v.(uint8)
			if !ok {
				return nil, fmt.Errorf("message: ZWRequestNodeInfo serialize: bad type %T", v)
			}
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncZWRequestNodeInfo),
				Payload: []uint8{nodeID}}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 1 {
				return nil, errTooShort(FuncZWRequestNodeInfo, len(f.Payload), 1)
			}
			return &ZWRequestNodeInfoResponse{Accepted: f.Payload[0] != 0}, nil
		},
	})

	Register(FuncZWApplicationUpdate, &Descriptor{
		Name: "ZWApplicationUpdate",
		ParseRequest: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) < 4 {
				return nil, errTooShort(FuncZWApplicationUpdate, len(f.Payload), 4)
			}
			out := &ZWApplicationUpdate{Status: f.Payload[0], NodeID: f.Payload[1]}
			if out.Status != ApplicationUpdateStateReceived {
				return out, nil
			}
			if len(f.Payload) < 6 {
				return nil, errTooShort(FuncZWApplicationUpdate, len(f.Payload), 6)
			}
			out.BasicDeviceClass = f.Payload[3]
			out.GenericDeviceClass = f.Payload[4]
			out.SpecificDeviceClass = f.Payload[5]

			afterMark := false
			for _, ccID := range f.Payload[6:] {
				if !afterMark && ccID == 0xef {
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
	})
}
