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
	"fmt"

	"github.com/zwavelink/corezwave/device"
)

const (
	manufacturerSpecificCommandGet    uint8 = 0x04
	manufacturerSpecificCommandReport uint8 = 0x05
)

// ManufacturerSpecificGet requests manufacturer/product identification.
type ManufacturerSpecificGet struct{}

// ManufacturerSpecificReport carries manufacturer/product identification,
// the value the interview driver keys the device database lookup on.
type ManufacturerSpecificReport struct {
	ManufacturerID uint16
	ProductType    uint16
	ProductID      uint16
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassManufacturerSpecific, CCCommand: manufacturerSpecificCommandGet,
		Name: "ManufacturerSpecific.Get", Version: 2,
		Parse:                   func(payload []uint8) (interface{}, error) { return &ManufacturerSpecificGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: manufacturerSpecificCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassManufacturerSpecific, CCCommand: manufacturerSpecificCommandReport,
		Name: "ManufacturerSpecific.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 6, "ManufacturerSpecific.Report: payload too short"); err != nil {
				return nil, err
			}
			return &ManufacturerSpecificReport{
				ManufacturerID: binary.BigEndian.Uint16(payload[0:2]),
				ProductType:    binary.BigEndian.Uint16(payload[2:4]),
				ProductID:      binary.BigEndian.Uint16(payload[4:6]),
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*ManufacturerSpecificReport)
			if !ok {
				return nil, fmt.Errorf("cc: ManufacturerSpecific.Report: bad type %T", v)
			}
			out := make([]uint8, 6)
			binary.BigEndian.PutUint16(out[0:2], r.ManufacturerID)
			binary.BigEndian.PutUint16(out[2:4], r.ProductType)
			binary.BigEndian.PutUint16(out[4:6], r.ProductID)
			return out, nil
		},
	})
}
