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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zwavelink/corezwave/driver"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Open the network and print its event stream until interrupted",
	Long: `monitor brings the driver up against the configured serial port,
runs network initialization, and prints every NodeAdded, value change and
interview-stage event as it arrives. Press Ctrl-C to stop.`,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, ctx, closeFn, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	fmt.Printf("connected, homeId=0x%08x\n", d.HomeID())
	events := d.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			printEvent(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func printEvent(ev driver.Event) {
	switch ev.Kind {
	case driver.EventNodeAdded, driver.EventNodeRemoved:
		fmt.Printf("[%s] node %d\n", ev.Kind, ev.NodeID)
	case driver.EventNodeInterviewStageChanged:
		fmt.Printf("[%s] node %d -> %s\n", ev.Kind, ev.NodeID, ev.Stage)
	case driver.EventValueUpdated, driver.EventValueNotification:
		fmt.Printf("[%s] node %d %s.%s%s = %v\n", ev.Kind, ev.ValueID.NodeID,
			ev.ValueID.Property, ev.ValueID.PropertyKey, endpointSuffix(ev.ValueID.EndpointIndex), ev.NewValue)
	case driver.EventValueRemoved:
		fmt.Printf("[%s] node %d %s.%s%s\n", ev.Kind, ev.ValueID.NodeID,
			ev.ValueID.Property, ev.ValueID.PropertyKey, endpointSuffix(ev.ValueID.EndpointIndex))
	case driver.EventDriverReady:
		fmt.Println("[DriverReady]")
	case driver.EventDriverError:
		fmt.Printf("[%s] node %d: %v\n", ev.Kind, ev.NodeID, ev.Err)
	default:
		fmt.Printf("[%s]\n", ev.Kind)
	}
}

func endpointSuffix(index uint8) string {
	if index == 0 {
		return ""
	}
	return fmt.Sprintf("@%d", index)
}
