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
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var setDuration time.Duration

var setCmd = &cobra.Command{
	Use:   "set <switch|level> <nodeId> <value>",
	Short: "Write a Binary Switch or Multilevel Switch target value, supervised when the node supports it",
	Args:  cobra.ExactArgs(3),
	RunE:  runSet,
}

func init() {
	setCmd.Flags().DurationVar(&setDuration, "duration", 0, "transition duration hint passed to the node")
}

func runSet(cmd *cobra.Command, args []string) error {
	kind, nodeArg, valueArg := args[0], args[1], args[2]

	nodeID, err := parseNodeID(nodeArg)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, ctx, closeFn, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	n, ok := d.GetNode(nodeID)
	if !ok {
		return fmt.Errorf("zwctl: node %d not found", nodeID)
	}

	switch kind {
	case "switch":
		target, err := strconv.ParseBool(valueArg)
		if err != nil {
			return fmt.Errorf("zwctl: invalid switch value %q (want true/false)", valueArg)
		}
		if err := d.SetBinarySwitch(ctx, n, target, setDuration); err != nil {
			return fmt.Errorf("zwctl: set binary switch: %w", err)
		}

	case "level":
		target, err := strconv.Atoi(valueArg)
		if err != nil || target < 0 || (target > 99 && target != 255) {
			return fmt.Errorf("zwctl: invalid level value %q (want 0-99 or 255)", valueArg)
		}
		if err := d.SetMultilevelSwitch(ctx, n, uint8(target), setDuration); err != nil {
			return fmt.Errorf("zwctl: set multilevel switch: %w", err)
		}

	default:
		return fmt.Errorf("zwctl: unknown set target %q (want switch|level)", kind)
	}

	fmt.Printf("node %d: %s set to %s requested\n", nodeID, kind, valueArg)
	return nil
}
