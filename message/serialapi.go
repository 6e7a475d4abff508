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
	"encoding/binary"

	"github.com/zwavelink/corezwave/frame"
)

// SerialAPIGetInitData is the response payload for FuncSerialAPIGetInitData.
type SerialAPIGetInitData struct {
	Version      uint8
	Secondary    bool
	StaticUpdate bool
	Nodes        []uint8 // node ids present on the network
}

// SerialAPIGetCapabilities is the response payload for
// FuncSerialAPIGetCapabilities.
type SerialAPIGetCapabilities struct {
	Version          uint16
	Manufacturer     uint16
	ProductType      uint16
	ProductID        uint16
	SupportedFuncIDs []uint8
}

// ZWGetControllerCapabilities is the response payload for
// FuncZWGetControllerCapabilities.
type ZWGetControllerCapabilities struct {
	Secondary                      bool
	NonStandardHomeID              bool
	StaticUpdateControllerIDServer bool
	WasPrimary                     bool
	StaticUpdateController         bool
}

// MemoryGetID is the response payload for FuncMemoryGetID.
type MemoryGetID struct {
	HomeID uint32
	NodeID uint8
}

// ZWGetVersion is the response payload for FuncZWGetVersion.
type ZWGetVersion struct {
	Library string
	Type    uint8
}

func registerSerialAPI() {
	Register(FuncSerialAPIGetInitData, &Descriptor{
		Name: "SerialAPIGetInitData",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncSerialAPIGetInitData)}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 34 {
				return nil, errTooShort(FuncSerialAPIGetInitData, len(f.Payload), 34)
			}
			out := &SerialAPIGetInitData{Version: f.Payload[0]}
			caps := f.Payload[1]
			out.Secondary = caps&0x4 != 0
			out.StaticUpdate = caps&0x8 != 0
			if f.Payload[2] != 29 {
				return nil, errMalformed(FuncSerialAPIGetInitData, "bad node bitmap length")
			}
			for i, b := range f.Payload[3 : 3+29] {
				for bit := uint8(0); bit < 8; bit++ {
					if b&(1<<bit) != 0 {
						out.Nodes = append(out.Nodes, 1+uint8(i)*8+bit)
					}
				}
			}
			return out, nil
		},
	})

	Register(FuncSerialAPIGetCapabilities, &Descriptor{
		Name: "SerialAPIGetCapabilities",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncSerialAPIGetCapabilities)}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 40 {
				return nil, errTooShort(FuncSerialAPIGetCapabilities, len(f.Payload), 40)
			}
			out := &SerialAPIGetCapabilities{}
			out.Version = binary.LittleEndian.Uint16(f.Payload[0:2])
			out.Manufacturer = binary.BigEndian.Uint16(f.Payload[2:4])
			out.ProductType = binary.BigEndian.Uint16(f.Payload[4:6])
			out.ProductID = binary.BigEndian.Uint16(f.Payload[6:8])
			for i, b := range f.Payload[8:] {
				for bit := uint8(0); bit < 8; bit++ {
					if b&(1<<bit) != 0 {
						out.SupportedFuncIDs = append(out.SupportedFuncIDs, 1+uint8(i)*8+bit)
					}
				}
			}
			return out, nil
		},
	})

	Register(FuncZWGetControllerCapabilities, &Descriptor{
		Name: "ZWGetControllerCapabilities",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncZWGetControllerCapabilities)}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 1 {
				return nil, errTooShort(FuncZWGetControllerCapabilities, len(f.Payload), 1)
			}
			b := f.Payload[0]
			return &ZWGetControllerCapabilities{
				Secondary:                      b&0x1 != 0,
				NonStandardHomeID:              b&0x2 != 0,
				StaticUpdateControllerIDServer: b&0x4 != 0,
				WasPrimary:                     b&0x8 != 0,
				StaticUpdateController:         b&0x10 != 0,
			}, nil
		},
	})

	Register(FuncMemoryGetID, &Descriptor{
		Name: "MemoryGetID",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncMemoryGetID)}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 5 {
				return nil, errTooShort(FuncMemoryGetID, len(f.Payload), 5)
			}
			return &MemoryGetID{
				HomeID: binary.BigEndian.Uint32(f.Payload[0:4]),
				NodeID: f.Payload[4],
			}, nil
		},
	})

	Register(FuncZWGetVersion, &Descriptor{
		Name: "ZWGetVersion",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncZWGetVersion)}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) < 1 {
				return nil, errTooShort(FuncZWGetVersion, len(f.Payload), 1)
			}
			// Library version is a NUL-terminated string followed by a
			// library type byte.
			end := len(f.Payload) - 1
			for i, b := range f.Payload[:end] {
				if b == 0 {
					end = i
					break
				}
			}
			return &ZWGetVersion{
				Library: string(f.Payload[:end]),
				Type:    f.Payload[len(f.Payload)-1],
			}, nil
		},
	})
}
