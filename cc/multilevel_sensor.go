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
	multilevelSensorCommandGet                   uint8 = 0x04
	multilevelSensorCommandReport                uint8 = 0x05
	multilevelSensorCommandSupportedSensorGet    uint8 = 0x01
	multilevelSensorCommandSupportedSensorReport uint8 = 0x02
)

// Multilevel Sensor Type, a selection commonly implemented by devices.
const (
	MultilevelSensorTypeTemperature uint8 = 0x01
	MultilevelSensorTypeLuminance   uint8 = 0x03
	MultilevelSensorTypePower       uint8 = 0x04
	MultilevelSensorTypeHumidity    uint8 = 0x05
)

// MultilevelSensorGet requests one sensor type's current value. SensorType
// 0 requests the device's default sensor (V1 behavior).
type MultilevelSensorGet struct {
	SensorType uint8
	Scale      uint8
}

// MultilevelSensorReport carries one sensor reading. Value is a
// fixed-point integer; Precision gives the number of implied decimal
// places and Size the byte width the value was encoded at.
type MultilevelSensorReport struct {
	SensorType uint8
	Scale      uint8
	Precision  uint8
	Size       uint8
	Value      int32
}

// MultilevelSensorSupportedSensorGet requests the bitmask of supported
// sensor types.
type MultilevelSensorSupportedSensorGet struct{}

// MultilevelSensorSupportedSensorReport carries the bitmask of supported
// sensor types, one bit per MultilevelSensorType value (bit 0 = type 1).
type MultilevelSensorSupportedSensorReport struct {
	SupportedSensorTypes []uint8
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSensor, CCCommand: multilevelSensorCommandGet,
		Name: "MultilevelSensor.Get", Version: 5,
		Parse: func(payload []uint8) (interface{}, error) {
			g := &MultilevelSensorGet{}
			if len(payload) >= 1 {
				g.SensorType = payload[0]
			}
			if len(payload) >= 2 {
				g.Scale = (payload[1] >> 3) & 0x03
			}
			return g, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			g, ok := v.(*MultilevelSensorGet)
			if !ok {
				return nil, fmt.Errorf("cc: MultilevelSensor.Get: bad type %T", v)
			}
			if g.SensorType == 0 {
				return nil, nil
			}
			return []uint8{g.SensorType, (g.Scale & 0x03) << 3}, nil
		},
		ExpectedResponseCommand: multilevelSensorCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSensor, CCCommand: multilevelSensorCommandReport,
		Name: "MultilevelSensor.Report", Version: 5,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 2, "MultilevelSensor.Report: payload too short"); err != nil {
				return nil, err
			}
			size := payload[1] & 0x07
			scale := (payload[1] >> 3) & 0x03
			precision := (payload[1] >> 5) & 0x07
			if err := validatePayload(len(payload) >= int(2+size), "MultilevelSensor.Report: value truncated"); err != nil {
				return nil, err
			}
			return &MultilevelSensorReport{
				SensorType: payload[0],
				Scale:      scale,
				Precision:  precision,
				Size:       size,
				Value:      decodeSignedValue(payload[2 : 2+size]),
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*MultilevelSensorReport)
			if !ok {
				return nil, fmt.Errorf("cc: MultilevelSensor.Report: bad type %T", v)
			}
			enc, err := encodeSignedValue(r.Value, r.Size)
			if err != nil {
				return nil, err
			}
			level := (r.Precision&0x07)<<5 | (r.Scale&0x03)<<3 | (r.Size & 0x07)
			return append([]uint8{r.SensorType, level}, enc...), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSensor, CCCommand: multilevelSensorCommandSupportedSensorGet,
		Name: "MultilevelSensor.SupportedSensorGet", Version: 5,
		Parse:                   func(payload []uint8) (interface{}, error) { return &MultilevelSensorSupportedSensorGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: multilevelSensorCommandSupportedSensorReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSensor, CCCommand: multilevelSensorCommandSupportedSensorReport,
		Name: "MultilevelSensor.SupportedSensorReport", Version: 5,
		Parse: func(payload []uint8) (interface{}, error) {
			bitmask := make([]uint8, len(payload))
			copy(bitmask, payload)
			return &MultilevelSensorSupportedSensorReport{SupportedSensorTypes: bitmask}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*MultilevelSensorSupportedSensorReport)
			if !ok {
				return nil, fmt.Errorf("cc: MultilevelSensor.SupportedSensorReport: bad type %T", v)
			}
			return r.SupportedSensorTypes, nil
		},
	})
}
