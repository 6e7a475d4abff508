// Package node models a single Z-Wave node and its endpoints: identity,
// capability flags, supported/controlled command classes, security
// class, and interview progress (spec.md §3).
package node

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
	"sync"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/security"
)

// MaxNodeID is the highest nodeId the classic Z-Wave addressing space
// assigns without the 16-bit extension (spec.md §9). Ids above it are
// accepted but logged as a capability warning rather than rejected,
// per the ledger's nodeId-bounds decision.
const MaxNodeID = 232

// DeviceClass is the controller-reported basic/generic/specific triple
// (spec.md §3, message.ZWGetNodeProtocolInfo/NIF).
type DeviceClass struct {
	Basic    uint8
	Generic  uint8
	Specific uint8
}

// Endpoint is one addressable unit within a node; index 0 is the root
// endpoint and always exists.
type Endpoint struct {
	Index         uint8
	DeviceClass   DeviceClass
	SupportedCCs  []uint8
	ControlledCCs []uint8
}

// Node is a single Z-Wave device on the network. All mutation happens
// from the driver thread; readers take the read lock (spec.md §5).
type Node struct {
	logger *zap.Logger

	mu sync.RWMutex

	id   uint8
	gone bool

	deviceClass         DeviceClass
	isListening         bool
	isFrequentListening bool
	isRouting           bool
	maxBaudRate         uint32
	isSecure            bool
	protocolVersion     uint8
	isBeaming           bool

	supportedCCs  []uint8
	controlledCCs []uint8

	securityClass  security.Class
	interviewStage InterviewStage

	endpoints map[uint8]*Endpoint
}

// New returns a node with the given id, at InterviewStage None. id
// above MaxNodeID is accepted (16-bit node id extension) but logged.
func New(id uint8, logger *zap.Logger) *Node {
	if int(id) > MaxNodeID {
		logger.Warn("node id exceeds classic addressing range",
			zap.Uint8("nodeId", id), zap.Int("max", MaxNodeID))
	}
	return &Node{
		logger:         logger,
		id:             id,
		interviewStage: StageNone,
		securityClass:  security.ClassNone,
		endpoints:      map[uint8]*Endpoint{0: {Index: 0}},
	}
}

// ID returns the node's id. Immutable after construction.
func (n *Node) ID() uint8 { return n.id }

// DeviceClass returns the node's reported device classification.
func (n *Node) DeviceClass() DeviceClass {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deviceClass
}

// SetProtocolInfo records the fields reported by the controller's
// protocol-info response (spec.md §4.7 ProtocolInfo stage). Enforces
// the invariant isListening ⇒ ¬isFrequentListening by clearing
// frequent-listening when isListening is set.
func (n *Node) SetProtocolInfo(dc DeviceClass, isListening, isFrequentListening, isRouting bool, maxBaudRate uint32, isBeaming bool, protocolVersion uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deviceClass = dc
	n.isListening = isListening
	n.isFrequentListening = isFrequentListening && !isListening
	n.isRouting = isRouting
	n.maxBaudRate = maxBaudRate
	n.isBeaming = isBeaming
	n.protocolVersion = protocolVersion
}

// IsListening reports whether the node is always reachable.
func (n *Node) IsListening() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isListening
}

// IsFrequentListening reports whether the node is an FLiRS device.
func (n *Node) IsFrequentListening() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isFrequentListening
}

// IsRouting reports whether the node can relay frames for other nodes.
func (n *Node) IsRouting() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isRouting
}

// IsSecure reports whether the node was included with any security
// class granted.
func (n *Node) IsSecure() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isSecure
}

// SecurityClass returns the node's granted security class.
func (n *Node) SecurityClass() security.Class {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.securityClass
}

// SetSecurityClass records the security class granted during S0/S2
// bootstrapping.
func (n *Node) SetSecurityClass(c security.Class) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.securityClass = c
	n.isSecure = c != security.ClassNone
}

// SetSupportedCCs records the node's NIF-reported supported and
// controlled command classes (spec.md §4.7 NodeInfo stage).
func (n *Node) SetSupportedCCs(supported, controlled []uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.supportedCCs = append([]uint8(nil), supported...)
	n.controlledCCs = append([]uint8(nil), controlled...)
}

// SupportsCC reports whether ccID is in the node's supported set.
func (n *Node) SupportsCC(ccID uint8) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, id := range n.supportedCCs {
		if id == ccID {
			return true
		}
	}
	return false
}

// SupportedCCs returns a copy of the node's supported command class
// list.
func (n *Node) SupportedCCs() []uint8 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]uint8(nil), n.supportedCCs...)
}

// Endpoint returns endpoint index, creating it if it does not yet
// exist (spec.md §4.7 Endpoints stage).
func (n *Node) Endpoint(index uint8) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[index]
	if !ok {
		ep = &Endpoint{Index: index}
		n.endpoints[index] = ep
	}
	return ep
}

// Endpoints returns every endpoint index currently known, including 0.
func (n *Node) Endpoints() []uint8 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]uint8, 0, len(n.endpoints))
	for idx := range n.endpoints {
		out = append(out, idx)
	}
	return out
}

// InterviewStage returns the node's current stage.
func (n *Node) InterviewStage() InterviewStage {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.interviewStage
}

// AdvanceInterviewStage moves the node to stage, refusing to move
// backward (spec.md §3: "the stage may only advance monotonically; a
// reset to an earlier stage is a deliberate re-interview operation").
// Returns false, logging a warning, if stage does not advance.
func (n *Node) AdvanceInterviewStage(stage InterviewStage) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if stage <= n.interviewStage {
		n.logger.Warn("refusing non-monotonic interview stage advance",
			zap.Uint8("nodeId", n.id),
			zap.String("current", n.interviewStage.String()),
			zap.String("requested", stage.String()))
		return false
	}
	n.interviewStage = stage
	return true
}

// ResetInterviewStage forces stage regardless of ordering, for a
// deliberate re-interview (spec.md §3).
func (n *Node) ResetInterviewStage(stage InterviewStage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.interviewStage = stage
}
