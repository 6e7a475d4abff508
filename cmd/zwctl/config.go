package main

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
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zwavelink/corezwave/driver"
)

// fileConfig is the on-disk shape --config loads: driver.Options inlined
// plus the connection settings zwctl itself owns. NetworkKeyHex lets a
// config file provision S0 key material without the key ever flowing
// through process arguments or shell history.
type fileConfig struct {
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	NetworkKeyHex string `yaml:"networkKey"`

	driver.Options `yaml:",inline"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("zwctl: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("zwctl: parse config %s: %w", path, err)
	}
	if cfg.NetworkKeyHex != "" {
		key, err := hex.DecodeString(cfg.NetworkKeyHex)
		if err != nil {
			return cfg, fmt.Errorf("zwctl: networkKey is not valid hex: %w", err)
		}
		cfg.Options.NetworkKey = key
	}
	return cfg, nil
}

// resolvePort returns the serial device path and baud rate, giving
// command-line flags priority over the config file.
func resolvePort(cfg fileConfig) (string, int) {
	port := portName
	if port == "" {
		port = cfg.Port
	}
	baud := baudRate
	if baud == 0 {
		baud = cfg.Baud
	}
	if baud == 0 {
		baud = 115200
	}
	return port, baud
}
