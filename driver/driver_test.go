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

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/cc"
	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/node"
	"github.com/zwavelink/corezwave/transport"
	"github.com/zwavelink/corezwave/valuedb"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	tr := transport.NewFake()
	require.NoError(t, tr.Open(context.Background()))
	return New(tr, nil, nil, Options{}, zap.NewNop())
}

func encapsulated(nodeID uint8, ccID uint8, parsed interface{}) *cc.Encapsulated {
	return &cc.Encapsulated{Inner: &cc.Instance{NodeID: nodeID, CCID: ccID, Parsed: parsed}}
}

func TestApplyCCBatteryReportSetsLevel(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(5, zap.NewNop())

	d.applyCC(n, encapsulated(5, device.CommandClassBattery, &cc.BatteryReport{Level: 42}))

	v, ok := d.values.Get(valuedb.ID{NodeID: 5, CCID: device.CommandClassBattery, Property: "level"})
	require.True(t, ok)
	assert.Equal(t, uint8(42), v)
}

func TestApplyCCManufacturerSpecificReportSetsThreeValues(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(7, zap.NewNop())
	ccID := device.CommandClassManufacturerSpecific

	d.applyCC(n, encapsulated(7, ccID, &cc.ManufacturerSpecificReport{
		ManufacturerID: 0x0086, ProductType: 0x0002, ProductID: 0x0064,
	}))

	mid, ok := d.values.Get(valuedb.ID{NodeID: 7, CCID: ccID, Property: "manufacturerId"})
	require.True(t, ok)
	assert.Equal(t, uint16(0x0086), mid)

	pt, ok := d.values.Get(valuedb.ID{NodeID: 7, CCID: ccID, Property: "productType"})
	require.True(t, ok)
	assert.Equal(t, uint16(0x0002), pt)

	pid, ok := d.values.Get(valuedb.ID{NodeID: 7, CCID: ccID, Property: "productId"})
	require.True(t, ok)
	assert.Equal(t, uint16(0x0064), pid)
}

func TestApplyCCVersionReportFormatsFirmwareVersion(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(3, zap.NewNop())

	d.applyCC(n, encapsulated(3, device.CommandClassVersion, &cc.VersionReport{
		ApplicationVersion: 4, ApplicationSubVersion: 12,
	}))

	v, ok := d.values.Get(valuedb.ID{NodeID: 3, CCID: device.CommandClassVersion, Property: "firmwareVersion"})
	require.True(t, ok)
	assert.Equal(t, "4.12", v)
}

func TestApplyCCBinarySwitchReportSetsCurrentAndTargetValue(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(9, zap.NewNop())
	ccID := device.CommandClassBinarySwitch

	d.applyCC(n, encapsulated(9, ccID, &cc.BinarySwitchReport{CurrentValue: true, TargetValue: false}))

	cur, ok := d.values.Get(valuedb.ID{NodeID: 9, CCID: ccID, Property: "currentValue"})
	require.True(t, ok)
	assert.Equal(t, true, cur)

	tgt, ok := d.values.Get(valuedb.ID{NodeID: 9, CCID: ccID, Property: "targetValue"})
	require.True(t, ok)
	assert.Equal(t, false, tgt)
}

func TestApplyCCMultilevelSensorReportKeysByPropertyKey(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(11, zap.NewNop())
	ccID := device.CommandClassMultilevelSensor

	d.applyCC(n, encapsulated(11, ccID, &cc.MultilevelSensorReport{SensorType: 1, Value: 215}))

	v, ok := d.values.Get(valuedb.ID{NodeID: 11, CCID: ccID, Property: "value", PropertyKey: "1"})
	require.True(t, ok)
	assert.Equal(t, int32(215), v)
}

func TestApplyCCWakeUpNotificationFiresNotifyWithoutPanicking(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(13, zap.NewNop())

	assert.NotPanics(t, func() {
		d.applyCC(n, encapsulated(13, device.CommandClassWakeup, &cc.WakeUpNotification{}))
	})
}

func TestApplyCCUnknownCCDroppedUnlessPreserveUnknownValues(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(17, zap.NewNop())
	id := valuedb.ID{NodeID: 17, CCID: 0x7f, Property: "raw", PropertyKey: "0x01"}

	d.applyCC(n, &cc.Encapsulated{Inner: &cc.Instance{NodeID: 17, CCID: 0x7f, CCCommand: 0x01, Payload: []uint8{0xaa}}})
	_, ok := d.values.Get(id)
	assert.False(t, ok, "unknown CC must not be stored without PreserveUnknownValues")

	d.opts.PreserveUnknownValues = true
	d.applyCC(n, &cc.Encapsulated{Inner: &cc.Instance{NodeID: 17, CCID: 0x7f, CCCommand: 0x01, Payload: []uint8{0xaa}}})
	v, ok := d.values.Get(id)
	require.True(t, ok)
	assert.Equal(t, []uint8{0xaa}, v)
}

// secureContext must return a true nil interface, not an interface
// wrapping a nil *SecureContext, or every `secure == nil` check inside
// cc.Decode/Encode would incorrectly see a non-nil context.
func TestSecureContextReturnsTrueNilWhenUnprovisioned(t *testing.T) {
	d := newTestDriver(t)
	assert.Nil(t, d.secureContext())
}

func TestGetNodeAndGetNodesReflectNodeMap(t *testing.T) {
	d := newTestDriver(t)
	n4 := node.New(4, zap.NewNop())
	n6 := node.New(6, zap.NewNop())
	d.nodes[4] = n4
	d.nodes[6] = n6

	_, ok := d.GetNode(99)
	assert.False(t, ok)

	got, ok := d.GetNode(4)
	require.True(t, ok)
	assert.Same(t, n4, got)

	all := d.GetNodes()
	assert.Len(t, all, 2)
}

func TestRemoveNodeDropsNodeAndItsValues(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(8, zap.NewNop())
	d.nodes[8] = n
	d.values.Set(valuedb.ID{NodeID: 8, CCID: device.CommandClassBattery, Property: "level"}, uint8(50))

	d.RemoveNode(8)

	_, ok := d.GetNode(8)
	assert.False(t, ok)
	assert.Empty(t, d.values.ForNode(8))
}

func TestReinterviewNodeFailsForUnknownNode(t *testing.T) {
	d := newTestDriver(t)
	err := d.ReinterviewNode(context.Background(), 200, node.StageNone)
	assert.Error(t, err)
}

func TestReinterviewNodeResetsStageAndRestartsInterview(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(20, zap.NewNop())
	n.AdvanceInterviewStage(node.StageProtocolInfo)
	n.AdvanceInterviewStage(node.StageNodeInfo)
	d.nodes[20] = n

	require.NoError(t, d.ReinterviewNode(context.Background(), 20, node.StageNone))
	assert.Equal(t, node.StageNone, n.InterviewStage())
}

func TestNextCallbackIDCyclesWithinValidRange(t *testing.T) {
	d := newTestDriver(t)
	seen := map[uint8]bool{}
	for i := 0; i < 300; i++ {
		id := d.nextCallbackID()
		assert.NotEqual(t, uint8(0), id)
		seen[id] = true
	}
	assert.True(t, len(seen) > 1)
}

// publish must drop the oldest pending event rather than block once the
// events channel is full (spec.md §5 "the core must never block on an
// application listener"), mirroring valuedb.Store.publish's policy.
func TestPublishDropsOldestEventWhenChannelFull(t *testing.T) {
	d := newTestDriver(t)
	capacity := cap(d.events)

	for i := 0; i < capacity+10; i++ {
		d.publish(Event{Kind: EventNodeAdded, NodeID: uint8(i % 256)})
	}

	assert.Len(t, d.events, capacity)
	first := <-d.events
	assert.NotEqual(t, uint8(0), first.NodeID, "the earliest-published events should have been dropped")
}

func TestDeliverCCWaiterIsNonBlockingWithoutARegisteredWaiter(t *testing.T) {
	d := newTestDriver(t)
	assert.NotPanics(t, func() {
		d.deliverCCWaiter(5, encapsulated(5, device.CommandClassBattery, &cc.BatteryReport{Level: 1}))
	})
}

func TestDeliverCCWaiterDeliversToRegisteredChannel(t *testing.T) {
	d := newTestDriver(t)
	ch := make(chan *cc.Encapsulated, 1)
	key := ccWaitKey{nodeID: 5, ccID: device.CommandClassBattery}
	d.mu.Lock()
	d.ccWaiters[key] = ch
	d.mu.Unlock()

	enc := encapsulated(5, device.CommandClassBattery, &cc.BatteryReport{Level: 9})
	d.deliverCCWaiter(5, enc)

	select {
	case got := <-ch:
		assert.Same(t, enc, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered CC")
	}
}

// Association groupings are both ValueDB state and required persistent
// state: folding a report must record the group's members and mirror
// them into the persistence store.
func TestApplyCCAssociationReportStoresGroupMembersAndPersists(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(6, zap.NewNop())
	ccID := device.CommandClassAssociation

	d.applyCC(n, encapsulated(6, ccID, &cc.AssociationGroupingsReport{SupportedGroupings: 2}))
	d.applyCC(n, encapsulated(6, ccID, &cc.AssociationReport{
		GroupingIdentifier: 1, MaxNodesSupported: 5, NodeIDs: []uint8{1, 9},
	}))

	count, ok := d.values.Get(valuedb.ID{NodeID: 6, CCID: ccID, Property: "groupCount"})
	require.True(t, ok)
	assert.Equal(t, uint8(2), count)

	members, ok := d.values.Get(valuedb.ID{NodeID: 6, CCID: ccID, Property: "nodeIds", PropertyKey: "1"})
	require.True(t, ok)
	assert.Equal(t, []uint8{1, 9}, members)

	raw, ok := d.store.Get("node-6-associations")
	require.True(t, ok, "association groupings must reach the persistence store")
	var groups map[string][]uint8
	require.NoError(t, json.Unmarshal(raw, &groups))
	assert.Equal(t, []uint8{1, 9}, groups["1"])
}
