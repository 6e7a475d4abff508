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
	binarySwitchCommandSet    uint8 = 0x01
	binarySwitchCommandGet    uint8 = 0x02
	binarySwitchCommandReport uint8 = 0x03
)

// BinarySwitchSet is Binary Switch CC's Set command.
type BinarySwitchSet struct {
	TargetValue bool
	Duration    uint8 // V2: 0 = instant, omit by passing 0
}

// BinarySwitchGet is Binary Switch CC's Get command.
type BinarySwitchGet struct{}

// BinarySwitchReport is Binary Switch CC's Report command.
type BinarySwitchReport struct {
	CurrentValue bool
	TargetValue  bool // V2+
	Duration     uint8
}

func encodeBoolValue(on bool) uint8 {
	if on {
		return 0xff
	}
	return 0x00
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassBinarySwitch, CCCommand: binarySwitchCommandSet,
		Name: "BinarySwitch.Set", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "BinarySwitch.Set: payload too short"); err != nil {
				return nil, err
			}
			s := &BinarySwitchSet{TargetValue: payload[0] != 0}
			if len(payload) >= 2 {
				s.Duration = payload[1]
			}
			return s, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*BinarySwitchSet)
			if !ok {
				return nil, fmt.Errorf("cc: BinarySwitch.Set: bad type %T", v)
			}
			if s.Duration == 0 {
				return []uint8{encodeBoolValue(s.TargetValue)}, nil
			}
			return []uint8{encodeBoolValue(s.TargetValue), s.Duration}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassBinarySwitch, CCCommand: binarySwitchCommandGet,
		Name: "BinarySwitch.Get", Version: 2,
		Parse:                   func(payload []uint8) (interface{}, error) { return &BinarySwitchGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: binarySwitchCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassBinarySwitch, CCCommand: binarySwitchCommandReport,
		Name: "BinarySwitch.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "BinarySwitch.Report: payload too short"); err != nil {
				return nil, err
			}
			r := &BinarySwitchReport{CurrentValue: payload[0] != 0}
			if len(payload) >= 3 {
				r.TargetValue = payload[1] != 0
				r.Duration = payload[2]
			}
			return r, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*BinarySwitchReport)
			if !ok {
				return nil, fmt.Errorf("cc: BinarySwitch.Report: bad type %T", v)
			}
			return []uint8{encodeBoolValue(r.CurrentValue), encodeBoolValue(r.TargetValue), r.Duration}, nil
		},
	})
}
