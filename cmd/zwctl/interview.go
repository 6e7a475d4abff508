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
	"github.com/zwavelink/corezwave/node"
)

var interviewCmd = &cobra.Command{
	Use:   "interview <nodeId>",
	Short: "Reset a node's interview stage and watch it re-run",
	Long: `interview forces nodeId back to the ProtocolInfo stage and restarts its
interview, printing stage-change and value events for that node until the
interview finishes, fails, or Ctrl-C is pressed.`,
	Args: cobra.ExactArgs(1),
	RunE: runInterview,
}

func runInterview(cmd *cobra.Command, args []string) error {
	nodeID, err := parseNodeID(args[0])
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

	if _, ok := d.GetNode(nodeID); !ok {
		return fmt.Errorf("zwctl: node %d not found", nodeID)
	}

	if err := d.ReinterviewNode(ctx, nodeID, node.StageNone); err != nil {
		return err
	}

	// StageDynamic is the last stage the driver publishes a stage-changed
	// event for; StageComplete itself only updates the node's in-memory
	// state, so that is what this command waits on.
	events := d.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.NodeID != nodeID {
				continue
			}
			printEvent(ev)
			if ev.Kind == driver.EventDriverError {
				return fmt.Errorf("zwctl: interview failed: %w", ev.Err)
			}
			if ev.Kind == driver.EventNodeInterviewStageChanged && ev.Stage == node.StageDynamic {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
