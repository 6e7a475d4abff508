package driver

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

import "time"

// Attempts configures per-layer retry budgets (spec.md §6).
type Attempts struct {
	Controller int `yaml:"controller"`
	SendData   int `yaml:"sendData"`
}

// Timeouts configures the wait windows spec.md §4.5/§4.7 name.
type Timeouts struct {
	ACK              time.Duration `yaml:"ack"`
	Response         time.Duration `yaml:"response"`
	SendDataCallback time.Duration `yaml:"sendDataCallback"`
	Nonce            time.Duration `yaml:"nonce"`
}

// LogConfig selects the verbosity an external loader supplies; the core
// treats its contents as opaque configuration, not a logging policy it
// owns (spec.md §6 "logConfig: {...}").
type LogConfig struct {
	Level string `yaml:"level"`
}

// Options configures a Driver. The zero value is usable: New fills every
// zero-valued field with its documented default.
type Options struct {
	PreserveUnknownValues        bool      `yaml:"preserveUnknownValues"`
	DisableOptimisticValueUpdate bool      `yaml:"disableOptimisticValueUpdate"`
	Attempts                     Attempts  `yaml:"attempts"`
	Timeouts                     Timeouts  `yaml:"timeouts"`
	LogConfig                    LogConfig `yaml:"logConfig"`

	// PersistenceDir roots the on-disk persistence store (spec.md §6
	// persistent state). The zero value runs with an in-memory store
	// that does not survive a restart.
	PersistenceDir string `yaml:"persistenceDir"`

	// NetworkKey bootstraps the S0 KeySet this core derives its working
	// keys from (spec.md §4.4). Provisioned out of band; never read from
	// a file by this package.
	NetworkKey []byte `yaml:"-"`
}

// withDefaults returns a copy of o with every zero-valued field from
// spec.md §6.1's Options defaults table filled in.
func (o Options) withDefaults() Options {
	if o.Attempts.Controller == 0 {
		o.Attempts.Controller = 5
	}
	if o.Attempts.SendData == 0 {
		o.Attempts.SendData = 3
	}
	if o.Timeouts.ACK == 0 {
		o.Timeouts.ACK = 1600 * time.Millisecond
	}
	if o.Timeouts.Response == 0 {
		o.Timeouts.Response = 10 * time.Second
	}
	if o.Timeouts.SendDataCallback == 0 {
		o.Timeouts.SendDataCallback = 65 * time.Second
	}
	if o.Timeouts.Nonce == 0 {
		o.Timeouts.Nonce = 10 * time.Second
	}
	return o
}
