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
	batteryCommandGet    uint8 = 0x02
	batteryCommandReport uint8 = 0x03
)

// BatteryLevelLow is the special Report value meaning "battery low", in
// place of a percentage.
const BatteryLevelLow uint8 = 0xff

// BatteryGet requests the node's battery level.
type BatteryGet struct{}

// BatteryReport carries the node's battery level as a percentage, or
// BatteryLevelLow.
type BatteryReport struct {
	Level uint8
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassBattery, CCCommand: batteryCommandGet,
		Name: "Battery.Get", Version: 1,
		Parse:                   func(payload []uint8) (interface{}, error) { return &BatteryGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: batteryCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassBattery, CCCommand: batteryCommandReport,
		Name: "Battery.Report", Version: 1,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Battery.Report: payload too short"); err != nil {
				return nil, err
			}
			return &BatteryReport{Level: payload[0]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*BatteryReport)
			if !ok {
				return nil, fmt.Errorf("cc: Battery.Report: bad type %T", v)
			}
			return []uint8{r.Level}, nil
		},
	})
}
