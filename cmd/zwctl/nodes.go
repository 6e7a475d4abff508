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
	"sort"

	"github.com/spf13/cobra"

	"github.com/zwavelink/corezwave/node"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "Initialize the network and print its node list",
	RunE:  runNodes,
}

func runNodes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, _, closeFn, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	nodes := d.GetNodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })

	fmt.Printf("%-6s %-10s %-28s %-10s %s\n", "NODE", "STAGE", "DEVICE CLASS", "SECURE", "LISTENING")
	for _, n := range nodes {
		printNodeRow(n)
	}
	return nil
}

func printNodeRow(n *node.Node) {
	dc := n.DeviceClass()
	deviceClass := fmt.Sprintf("0x%02x/0x%02x/0x%02x", dc.Basic, dc.Generic, dc.Specific)
	fmt.Printf("%-6d %-10s %-28s %-10v %v\n", n.ID(), n.InterviewStage(), deviceClass, n.IsSecure(), n.IsListening())
}
