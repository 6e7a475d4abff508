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

// Basic Command.
const (
	basicCommandSet    uint8 = 0x01
	basicCommandGet    uint8 = 0x02
	basicCommandReport uint8 = 0x03
)

// BasicSet is Basic CC's Set command.
type BasicSet struct {
	TargetValue uint8 // 0x00-0x63, or 0xff for "on"
}

// BasicGet is Basic CC's Get command (no fields).
type BasicGet struct{}

// BasicReport is Basic CC's Report command.
type BasicReport struct {
	CurrentValue uint8
	TargetValue  uint8 // V2+: 0 if not present
	Duration     uint8 // V2+: 0 if not present
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassBasic, CCCommand: basicCommandSet, Name: "Basic.Set", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Basic.Set: payload too short"); err != nil {
				return nil, err
			}
			return &BasicSet{TargetValue: payload[0]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*BasicSet)
			if !ok {
				return nil, fmt.Errorf("cc: Basic.Set: bad type %T", v)
			}
			return []uint8{s.TargetValue}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassBasic, CCCommand: basicCommandGet, Name: "Basic.Get", Version: 2,
		Parse:                   func(payload []uint8) (interface{}, error) { return &BasicGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: basicCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassBasic, CCCommand: basicCommandReport, Name: "Basic.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Basic.Report: payload too short"); err != nil {
				return nil, err
			}
			r := &BasicReport{CurrentValue: payload[0]}
			if len(payload) >= 3 {
				r.TargetValue = payload[1]
				r.Duration = payload[2]
			}
			return r, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*BasicReport)
			if !ok {
				return nil, fmt.Errorf("cc: Basic.Report: bad type %T", v)
			}
			return []uint8{r.CurrentValue, r.TargetValue, r.Duration}, nil
		},
	})
}
