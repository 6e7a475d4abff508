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
)

const (
	binarySensorCommandGet    uint8 = 0x02
	binarySensorCommandReport uint8 = 0x03
)

// Binary Sensor Type.
const (
	BinarySensorTypeGeneral    uint8 = 0x01
	BinarySensorTypeSmoke      uint8 = 0x02
	BinarySensorTypeCO         uint8 = 0x03
	BinarySensorTypeCO2        uint8 = 0x04
	BinarySensorTypeMotion     uint8 = 0x0C
	BinarySensorTypeDoorWindow uint8 = 0x0A
)

// BinarySensorGet requests one sensor type's current state. SensorType 0
// means "any supported type" (V1 behavior).
type BinarySensorGet struct {
	SensorType uint8
}

// BinarySensorReport carries one sensor type's current boolean state.
type BinarySensorReport struct {
	SensorType uint8
	Value      bool
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassBinarySensor, CCCommand: binarySensorCommandGet,
		Name: "BinarySensor.Get", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			g := &BinarySensorGet{}
			if len(payload) >= 1 {
				g.SensorType = payload[0]
			}
			return g, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			g, ok := v.(*BinarySensorGet)
			if !ok {
				return nil, fmt.Errorf("cc: BinarySensor.Get: bad type %T", v)
			}
			if g.SensorType == 0 {
				return nil, nil
			}
			return []uint8{g.SensorType}, nil
		},
		ExpectedResponseCommand: binarySensorCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassBinarySensor, CCCommand: binarySensorCommandReport,
		Name: "BinarySensor.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "BinarySensor.Report: payload too short"); err != nil {
				return nil, err
			}
			r := &BinarySensorReport{Value: payload[0] != 0, SensorType: BinarySensorTypeGeneral}
			if len(payload) >= 2 {
				r.SensorType = payload[1]
			}
			return r, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*BinarySensorReport)
			if !ok {
				return nil, fmt.Errorf("cc: BinarySensor.Report: bad type %T", v)
			}
			return []uint8{encodeBoolValue(r.Value), r.SensorType}, nil
		},
	})
}
