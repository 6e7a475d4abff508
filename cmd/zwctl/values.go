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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zwavelink/corezwave/valuedb"
)

var valuesCmd = &cobra.Command{
	Use:   "values <nodeId>",
	Short: "Initialize the network and print one node's current ValueDB entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runValues,
}

func runValues(cmd *cobra.Command, args []string) error {
	nodeID, err := parseNodeID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	d, _, closeFn, err := openDriver(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if _, ok := d.GetNode(nodeID); !ok {
		return fmt.Errorf("zwctl: node %d not found", nodeID)
	}

	snapshot := d.ValueDB().ForNode(nodeID)
	ids := make([]valuedb.ID, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].EndpointIndex != ids[j].EndpointIndex {
			return ids[i].EndpointIndex < ids[j].EndpointIndex
		}
		if ids[i].CCID != ids[j].CCID {
			return ids[i].CCID < ids[j].CCID
		}
		return ids[i].Property < ids[j].Property
	})

	for _, id := range ids {
		fmt.Printf("ep%d cc=0x%02x %s%s = %v\n", id.EndpointIndex, id.CCID, id.Property, propertyKeySuffix(id.PropertyKey), snapshot[id])
	}
	return nil
}

func propertyKeySuffix(key string) string {
	if key == "" {
		return ""
	}
	return "[" + key + "]"
}

func parseNodeID(arg string) (uint8, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > 255 {
		return 0, fmt.Errorf("zwctl: invalid node id %q", arg)
	}
	return uint8(n), nil
}
