// Package driver orchestrates the Z-Wave host driver core: it owns the
// transport, send queue, node model, ValueDB, interview runner and
// persistence store as a single logical writer (spec.md §5), and is the
// only package applications import directly.
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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/cc"
	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/frame"
	"github.com/zwavelink/corezwave/internal/zwerror"
	"github.com/zwavelink/corezwave/interview"
	"github.com/zwavelink/corezwave/message"
	"github.com/zwavelink/corezwave/node"
	"github.com/zwavelink/corezwave/persistence"
	"github.com/zwavelink/corezwave/security"
	"github.com/zwavelink/corezwave/sendqueue"
	"github.com/zwavelink/corezwave/transport"
	"github.com/zwavelink/corezwave/valuedb"
)

// securityS0CommandNonceReport mirrors cc's unexported constant of the
// same name: NonceReport's command value within the Security (S0) CC,
// needed here to address a reply through sendApplicationCC.
const securityS0CommandNonceReport uint8 = 0x41

// Driver is the top-level orchestrator: the single-writer scheduler that
// owns the transport, send queue, node model and ValueDB (spec.md §5).
// All public methods are goroutine safe.
type Driver struct {
	logger *zap.Logger
	opts   Options
	tr     transport.Transport
	queue  *sendqueue.Queue
	values *valuedb.Store
	store  persistence.Store
	secure *SecureContext
	runner *interview.Runner

	homeID         uint32
	controllerNode uint8

	mu                 sync.RWMutex
	nodes              map[uint8]*node.Node
	asm                map[uint8]*cc.Assembler // per-node Transport Service reassembly
	nifWaiters         map[uint8]chan *message.ZWApplicationUpdate
	ccWaiters          map[ccWaitKey]chan *cc.Encapsulated
	supervisionWaiters map[supervisionKey]chan *cc.SupervisionReport
	verifyPolls        map[valuedb.ID]context.CancelFunc

	events chan Event

	callbackSeq    uint32
	supervisionSeq uint32

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New returns an unopened Driver. store may be nil to run with an
// in-memory persistence store that does not survive a restart. secure
// may be nil if the network never uses Security S0/S2.
func New(tr transport.Transport, store persistence.Store, secure *SecureContext, opts Options, logger *zap.Logger) *Driver {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = persistence.NewMemStore()
	}

	d := &Driver{
		logger:             logger,
		opts:               opts,
		tr:                 tr,
		values:             valuedb.New(logger.Named("valuedb")),
		store:              store,
		secure:             secure,
		nodes:              map[uint8]*node.Node{},
		asm:                map[uint8]*cc.Assembler{},
		nifWaiters:         map[uint8]chan *message.ZWApplicationUpdate{},
		ccWaiters:          map[ccWaitKey]chan *cc.Encapsulated{},
		supervisionWaiters: map[supervisionKey]chan *cc.SupervisionReport{},
		verifyPolls:        map[valuedb.ID]context.CancelFunc{},
		events:             make(chan Event, 256),
	}
	d.queue = sendqueue.NewQueue(tr, logger.Named("sendqueue"))
	d.queue.SetTimeouts(opts.Timeouts.ACK, opts.Timeouts.Response)
	d.runner = interview.NewRunner(d.buildStages(), store, logger.Named("interview"))
	return d
}

// ValueDB returns the driver's value store.
func (d *Driver) ValueDB() *valuedb.Store { return d.values }

// secureContext returns d.secure as a cc.SecureContext, or a true nil
// interface when no SecureContext was provisioned. A bare typed-nil
// *SecureContext passed as an interface value would not compare equal
// to nil inside cc.Decode/Encode.
func (d *Driver) secureContext() cc.SecureContext {
	if d.secure == nil {
		return nil
	}
	return d.secure
}

// HomeID returns the controller's home id, valid once Initialize
// succeeds.
func (d *Driver) HomeID() uint32 { return d.homeID }

// Open starts the transport, the send queue scheduler and the frame
// read loop (spec.md §5, grounded on the teacher's Network.Open
// lifecycle: lazily start background goroutines, then mark the
// controller open).
func (d *Driver) Open(ctx context.Context) error {
	if err := d.tr.Open(ctx); err != nil {
		return zwerror.Wrap(zwerror.KindTransportClosed, "driver: open transport", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancel = cancel

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.queue.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.readLoop(runCtx)
	}()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.forwardValueEvents(runCtx)
	}()

	return nil
}

// Close stops the read loop and scheduler, closes the transport and
// flushes persistence. Close is idempotent.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.closeErr = d.tr.Close()
		if ferr := d.store.Flush(); ferr != nil {
			d.logger.Warn("driver: flush on close failed", zap.Error(ferr))
		}
		close(d.events)
	})
	return d.closeErr
}

// hostRequest serializes fn/payload, enqueues it at priority and waits
// for the matching Response frame. nodeID only tags the transaction for
// scheduling/logging; functions that address a node explicitly (like
// ZWGetNodeProtocolInfo) still carry that node id inside payload.
func (d *Driver) hostRequest(priority sendqueue.Priority, nodeID uint8, fn message.Function, payload interface{}) (*frame.Frame, error) {
	f, err := message.SerializeRequest(fn, payload)
	if err != nil {
		return nil, zwerror.Wrap(zwerror.KindMalformedMessage, "driver: serialize "+fn.String(), err)
	}
	t := sendqueue.NewTransaction(priority, nodeID, fn, f, d.opts.Attempts.Controller).
		WithResponse(func(rf *frame.Frame) bool { return true })
	d.queue.Enqueue(t, false)
	result, err := t.Wait()
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}

// controllerRequest sends a controller-directed (non node-addressed)
// request and waits for its matching response.
func (d *Driver) controllerRequest(fn message.Function, payload interface{}) (*frame.Frame, error) {
	return d.hostRequest(sendqueue.PriorityController, 0, fn, payload)
}

// Initialize runs the controller bootstrap sequence spec.md §4.7 and the
// teacher's Network.Initialize both perform: capabilities, version,
// memory id, then the initial node list, starting one background
// interview per discovered node (spec.md §8 scenario: "new driver
// startup interviews every uninterviewed node").
func (d *Driver) Initialize(ctx context.Context) error {
	capFrame, err := d.controllerRequest(message.FuncSerialAPIGetCapabilities, nil)
	if err != nil {
		return err
	}
	if _, err := message.ParseResponse(message.FuncSerialAPIGetCapabilities, capFrame); err != nil {
		return err
	}

	versionFrame, err := d.controllerRequest(message.FuncZWGetVersion, nil)
	if err != nil {
		return err
	}
	if _, err := message.ParseResponse(message.FuncZWGetVersion, versionFrame); err != nil {
		return err
	}

	memFrame, err := d.controllerRequest(message.FuncMemoryGetID, nil)
	if err != nil {
		return err
	}
	memParsed, err := message.ParseResponse(message.FuncMemoryGetID, memFrame)
	if err != nil {
		return err
	}
	mem := memParsed.(*message.MemoryGetID)
	if mem.NodeID != 0x01 {
		return fmt.Errorf("driver: expected controller node 0x01, got 0x%02x", mem.NodeID)
	}
	d.homeID = mem.HomeID
	d.controllerNode = mem.NodeID

	initFrame, err := d.controllerRequest(message.FuncSerialAPIGetInitData, nil)
	if err != nil {
		return err
	}
	initParsed, err := message.ParseResponse(message.FuncSerialAPIGetInitData, initFrame)
	if err != nil {
		return err
	}
	initData := initParsed.(*message.SerialAPIGetInitData)

	var added []*node.Node
	d.mu.Lock()
	for _, id := range initData.Nodes {
		if id == d.controllerNode {
			continue
		}
		if _, ok := d.nodes[id]; ok {
			continue
		}
		n := node.New(id, d.logger.Named(fmt.Sprintf("node%d", id)))
		d.runner.Resume(n)
		d.nodes[id] = n
		d.asm[id] = cc.NewAssembler()
		added = append(added, n)
	}
	d.mu.Unlock()

	for _, n := range added {
		d.publish(Event{Kind: EventNodeAdded, NodeID: n.ID()})
		go d.runInterview(ctx, n)
	}

	d.publish(Event{Kind: EventDriverReady})
	return nil
}

func (d *Driver) runInterview(ctx context.Context, n *node.Node) {
	if err := d.runner.RunNode(ctx, n); err != nil {
		d.logger.Warn("driver: interview did not complete",
			zap.Uint8("nodeId", n.ID()), zap.Error(err))
		d.publish(Event{Kind: EventDriverError, NodeID: n.ID(), Err: err})
	}
}

// ReinterviewNode forces nodeID back to stage and restarts its interview
// in the background, for an application that wants to re-probe a node
// without waiting for a wake-up or the next restart (spec.md §4.7).
func (d *Driver) ReinterviewNode(ctx context.Context, nodeID uint8, stage node.InterviewStage) error {
	n, ok := d.GetNode(nodeID)
	if !ok {
		return fmt.Errorf("driver: unknown node %d", nodeID)
	}
	n.ResetInterviewStage(stage)
	d.runner.Resume(n)
	go d.runInterview(ctx, n)
	return nil
}

// GetNode returns nodeID's Node and whether it is known.
func (d *Driver) GetNode(nodeID uint8) (*node.Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[nodeID]
	return n, ok
}

// GetNodes returns a snapshot of every known node.
func (d *Driver) GetNodes() []*node.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*node.Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n)
	}
	return out
}

// RemoveNode drops nodeID from the node model and its ValueDB entries,
// and publishes NodeRemoved. Keys already written to the persistence
// store for the node are left in place.
func (d *Driver) RemoveNode(nodeID uint8) {
	d.mu.Lock()
	delete(d.nodes, nodeID)
	delete(d.asm, nodeID)
	d.mu.Unlock()

	d.values.RemoveNode(nodeID)
	d.publish(Event{Kind: EventNodeRemoved, NodeID: nodeID})
}

func (d *Driver) assembler(nodeID uint8) *cc.Assembler {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.asm[nodeID]
	if !ok {
		a = cc.NewAssembler()
		d.asm[nodeID] = a
	}
	return a
}

func (d *Driver) nextCallbackID() uint8 {
	seq := atomic.AddUint32(&d.callbackSeq, 1)
	return uint8(seq%255) + 1
}

func (d *Driver) forwardValueEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.values.Events():
			if !ok {
				return
			}
			kind := EventValueUpdated
			switch ev.Kind {
			case valuedb.ChangeRemoved:
				kind = EventValueRemoved
			case valuedb.ChangeNotification:
				kind = EventValueNotification
			}
			d.publish(Event{Kind: kind, NodeID: ev.ID.NodeID, ValueID: ev.ID, OldValue: ev.OldValue, NewValue: ev.NewValue})
		}
	}
}

func (d *Driver) setMetadata(id valuedb.ID, m *valuedb.Metadata) {
	d.values.SetMetadata(id, m)
	d.publish(Event{Kind: EventMetadataUpdated, NodeID: id.NodeID, ValueID: id})
}

// readLoop feeds every byte the transport delivers into a frame.Parser
// and dispatches each complete frame (spec.md §4.1/§4.5): ACK/NAK/CAN
// preambles and Response-typed DATA frames go to the send queue; the
// three callback-shaped Request functions this core handles
// (SendData completion, ApplicationCommandHandler, ApplicationUpdate)
// are routed to their handlers; every complete DATA frame, whatever its
// function, gets a link-layer ACK written back once parsed.
func (d *Driver) readLoop(ctx context.Context) {
	var parser frame.Parser
	for {
		var frameTimeout <-chan time.Time
		if parser.InProgress() {
			frameTimeout = time.After(frame.ReceiveTimeout)
		}
		select {
		case <-ctx.Done():
			return
		case <-frameTimeout:
			d.logger.Warn("driver: partial frame timed out, discarding")
			parser.Reset()
			_ = d.tr.Write([]byte{frame.NAK})
		case chunk, ok := <-d.tr.Bytes():
			if !ok {
				return
			}
			for _, b := range chunk {
				f, err := parser.Parse(b)
				if err != nil {
					d.logger.Warn("driver: frame parse error, sending NAK", zap.Error(err))
					_ = d.tr.Write([]byte{frame.NAK})
					continue
				}
				if f == nil {
					continue
				}
				d.dispatchFrame(f)
			}
		}
	}
}

func (d *Driver) dispatchFrame(f *frame.Frame) {
	if f.IsShort() {
		d.queue.DeliverACK(f.Preamble)
		return
	}

	if err := d.tr.Write([]byte{frame.ACK}); err != nil {
		d.logger.Warn("driver: failed to ACK frame", zap.Error(err))
	}

	switch {
	case f.Type == frame.TypeResponse:
		d.queue.DeliverResponse(f)

	case f.Function == uint8(message.FuncZWSendData):
		d.queue.DeliverCallback(f)

	case f.Function == uint8(message.FuncApplicationCommandHandler):
		d.handleApplicationCommand(f)

	case f.Function == uint8(message.FuncZWApplicationUpdate):
		d.handleApplicationUpdate(f)

	default:
		d.logger.Info("driver: unhandled request frame", zap.Stringer("function", message.Function(f.Function)))
	}
}

func (d *Driver) handleApplicationCommand(f *frame.Frame) {
	parsed, err := message.ParseRequest(message.FuncApplicationCommandHandler, f)
	if err != nil {
		d.logger.Warn("driver: malformed ApplicationCommandHandler", zap.Error(err))
		return
	}
	ac := parsed.(*message.ApplicationCommand)

	n, ok := d.GetNode(ac.NodeID)
	if !ok {
		d.logger.Info("driver: ApplicationCommand from unknown node", zap.Uint8("nodeId", ac.NodeID))
		return
	}

	enc, err := cc.Decode(ac.NodeID, ac.Body, d.assembler(ac.NodeID), d.secureContext())
	if err != nil {
		d.logger.Warn("driver: failed to decode command class", zap.Uint8("nodeId", ac.NodeID), zap.Error(err))
		return
	}
	if enc == nil {
		return // Transport Service datagram still assembling.
	}

	if nonce, ok := enc.Inner.Parsed.(*cc.SecurityS0NonceReport); ok && d.secure != nil {
		sec := &security.Nonce{Value: nonce.Nonce, IssuedAt: time.Now()}
		sec.ID = nonce.Nonce[0]
		d.secure.RecordPeerNonce(ac.NodeID, sec)
		return
	}
	if _, ok := enc.Inner.Parsed.(*cc.SecurityS0NonceGet); ok && d.secure != nil {
		d.replyNonce(n)
		return
	}
	if report, ok := enc.Inner.Parsed.(*cc.SupervisionReport); ok {
		d.deliverSupervisionReport(ac.NodeID, report)
		return
	}

	d.deliverCCWaiter(ac.NodeID, enc)
	d.applyCC(n, enc)
}

// ccWaitKey identifies an in-flight Get/Report exchange a stage or poll
// is blocked waiting on.
type ccWaitKey struct {
	nodeID uint8
	ccID   uint8
}

// deliverCCWaiter hands enc to a pending requestCC call for the same
// node/CC pair, if one is registered. Delivery never blocks; a stage
// that is not yet waiting (or has already timed out) simply misses it,
// same as a dropped application callback.
func (d *Driver) deliverCCWaiter(nodeID uint8, enc *cc.Encapsulated) {
	key := ccWaitKey{nodeID: nodeID, ccID: enc.Inner.CCID}
	d.mu.RLock()
	ch, ok := d.ccWaiters[key]
	d.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- enc:
	default:
	}
}

// requestCC sends a Get-shaped CC to n and waits for the matching
// Report to arrive via handleApplicationCommand (spec.md §4.2: Get and
// Report are independent frames, not a single call/response).
func (d *Driver) requestCC(ctx context.Context, n *node.Node, endpointIndex, ccID, ccCommand uint8, req interface{}, priority sendqueue.Priority) (*cc.Encapsulated, error) {
	key := ccWaitKey{nodeID: n.ID(), ccID: ccID}
	ch := make(chan *cc.Encapsulated, 1)
	d.mu.Lock()
	d.ccWaiters[key] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.ccWaiters, key)
		d.mu.Unlock()
	}()

	if err := d.sendApplicationCC(ctx, n, endpointIndex, ccID, ccCommand, req, priority); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d.opts.Timeouts.Response)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, zwerror.ErrCancelled
	case enc := <-ch:
		return enc, nil
	case <-timer.C:
		return nil, zwerror.Wrap(zwerror.KindResponseTimeout,
			fmt.Sprintf("node %d: cc 0x%02x: no report within timeout", n.ID(), ccID), nil)
	}
}

func (d *Driver) replyNonce(n *node.Node) {
	nonce, err := d.secure.IssueNonce()
	if err != nil {
		d.logger.Warn("driver: failed to issue nonce", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		return
	}
	report := &cc.SecurityS0NonceReport{Nonce: nonce.Value}
	if err := d.sendApplicationCC(context.Background(), n, 0, device.CommandClassSecurity, securityS0CommandNonceReport, report, sendqueue.PriorityNormal); err != nil {
		d.logger.Warn("driver: failed to send nonce report", zap.Uint8("nodeId", n.ID()), zap.Error(err))
	}
}

func (d *Driver) handleApplicationUpdate(f *frame.Frame) {
	parsed, err := message.ParseRequest(message.FuncZWApplicationUpdate, f)
	if err != nil {
		d.logger.Warn("driver: malformed ZWApplicationUpdate", zap.Error(err))
		return
	}
	update := parsed.(*message.ZWApplicationUpdate)
	if update.Status != message.ApplicationUpdateStateReceived {
		d.logger.Info("driver: ZWApplicationUpdate non state-received",
			zap.Uint8("nodeId", update.NodeID), zap.Uint8("status", update.Status))
		return
	}

	d.mu.RLock()
	ch, ok := d.nifWaiters[update.NodeID]
	d.mu.RUnlock()
	if ok {
		select {
		case ch <- update:
		default:
		}
	}
}

// waitForNIF blocks until a node's NIF arrives via ZWApplicationUpdate,
// the response timeout elapses, or ctx is cancelled.
func (d *Driver) waitForNIF(ctx context.Context, nodeID uint8) (*message.ZWApplicationUpdate, error) {
	ch := make(chan *message.ZWApplicationUpdate, 1)
	d.mu.Lock()
	d.nifWaiters[nodeID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.nifWaiters, nodeID)
		d.mu.Unlock()
	}()

	timer := time.NewTimer(d.opts.Timeouts.Response)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, zwerror.ErrCancelled
	case update := <-ch:
		return update, nil
	case <-timer.C:
		return nil, zwerror.Wrap(zwerror.KindNodeTimeout,
			fmt.Sprintf("node %d: no NIF within timeout", nodeID), nil)
	}
}

// Command values mirrored from their package-private cc counterparts,
// needed here to address a Get/Set at the wire level through
// sendApplicationCC/requestCC.
const (
	versionCommandGet                         uint8 = 0x11
	versionCommandCommandClassGet             uint8 = 0x13
	batteryCommandGet                         uint8 = 0x02
	manufacturerSpecificCommandGet            uint8 = 0x04
	binarySwitchCommandGet                    uint8 = 0x02
	binarySwitchCommandSet                    uint8 = 0x01
	multilevelSwitchCommandGet                uint8 = 0x02
	multilevelSwitchCommandSet                uint8 = 0x01
	multilevelSensorCommandGet                uint8 = 0x04
	multilevelSensorCommandSupportedSensorGet uint8 = 0x01
	multiChannelCommandEndPointGet            uint8 = 0x07
	multiChannelCommandCapabilityGet          uint8 = 0x09
	associationCommandGet                     uint8 = 0x02
	associationCommandGroupingsGet            uint8 = 0x05
)

// sendApplicationCC encodes v as ccID/ccCommand with the encapsulations
// n's security/endpoint state calls for, and sends every resulting wire
// segment in order (spec.md §4.3/§4.6: Transport Service only produces
// more than one segment when the encoded command exceeds a single
// frame's MTU).
func (d *Driver) sendApplicationCC(ctx context.Context, n *node.Node, endpointIndex, ccID, ccCommand uint8, v interface{}, priority sendqueue.Priority) error {
	return d.encodeAndSend(ctx, n, cc.EncodeOptions{
		EndpointIndex: endpointIndex,
		NodeIsSecure:  n.IsSecure(),
		SecurityClass: ccSecurityClass(n.SecurityClass()),
	}, ccID, ccCommand, v, priority)
}

// ccSecurityClass maps a node's granted security class onto
// cc.EncodeOptions.SecurityClass, where 0 selects the S0 envelope and any
// nonzero value an S2 class identifier.
func ccSecurityClass(c security.Class) uint8 {
	if c == security.ClassS0Legacy {
		return 0
	}
	return uint8(c) + 1
}

// encodeAndSend is sendApplicationCC's encode step factored out so a
// caller that needs non-default EncodeOptions (writeSet's
// UseSupervision/SupervisionID) can still reuse the segment-by-segment
// send over sendSegment.
func (d *Driver) encodeAndSend(ctx context.Context, n *node.Node, opts cc.EncodeOptions, ccID, ccCommand uint8, v interface{}, priority sendqueue.Priority) error {
	segments, err := cc.Encode(ccID, ccCommand, v, opts, d.secureContext())
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if err := d.sendSegment(ctx, n, seg, priority, message.TransmitOptionACK|message.TransmitOptionAutoRoute, false); err != nil {
			return err
		}
	}
	return nil
}

// sendSegment sends one already-encoded wire segment via ZWSendData and
// interprets its TransmitStatus callback (spec.md §4.5). A NoAck against
// a listening node is retried once immediately with a route-reset
// transmit option; a NoAck against a node that is not (frequent-)
// listening parks a fresh transaction until the node's next WakeUp
// Notification releases it (retried is set on that second attempt so
// neither path can recurse a second time).
func (d *Driver) sendSegment(ctx context.Context, n *node.Node, payload []uint8, priority sendqueue.Priority, txOptions uint8, retried bool) error {
	callbackID := d.nextCallbackID()
	f, err := message.SerializeRequest(message.FuncZWSendData, &message.ZWSendData{
		NodeID: n.ID(), Payload: payload, TransmitOptions: txOptions, CallbackID: callbackID,
	})
	if err != nil {
		return zwerror.Wrap(zwerror.KindMalformedMessage, "driver: serialize ZWSendData", err)
	}

	parkForWakeup := retried && !n.IsListening() && !n.IsFrequentListening()

	t := sendqueue.NewTransaction(priority, n.ID(), message.FuncZWSendData, f, d.opts.Attempts.SendData).
		WithResponse(func(rf *frame.Frame) bool { return true }).
		WithCallback(callbackID, d.opts.Timeouts.SendDataCallback)
	d.queue.Enqueue(t, parkForWakeup)

	result, err := t.Wait()
	if err != nil {
		return err
	}
	if !result.HasTransmitStatus || result.TransmitStatus == message.TransmitStatusOK {
		return nil
	}
	if result.TransmitStatus != message.TransmitStatusNoAck || retried {
		return zwerror.Wrap(zwerror.KindNodeTimeout,
			fmt.Sprintf("node %d: send failed, transmit status 0x%02x", n.ID(), result.TransmitStatus), nil)
	}

	if n.IsListening() {
		return d.sendSegment(ctx, n, payload, priority, txOptions|message.TransmitOptionExplore, true)
	}
	return d.sendSegment(ctx, n, payload, priority, txOptions, true)
}

// buildStages wires the interview runner's generic stage table to this
// driver's device I/O (spec.md §4.7).
func (d *Driver) buildStages() []interview.StageDef {
	stages := interview.DefaultStages()
	for i := range stages {
		switch stages[i].Stage {
		case node.StageProtocolInfo:
			stages[i].Run = d.stageProtocolInfo
		case node.StageNodeInfo:
			stages[i].Run = d.stageNodeInfo
		case node.StageCommandClasses:
			stages[i].Run = d.stageCommandClasses
		case node.StageEndpoints:
			stages[i].Run = d.stageEndpoints
		case node.StageStatic:
			stages[i].Run = d.stageStatic
		case node.StageCache:
			stages[i].Run = d.stageCache
		case node.StageDynamic:
			stages[i].Run = d.stageDynamic
		}
	}
	return stages
}

func (d *Driver) advanced(n *node.Node, stage node.InterviewStage) {
	d.publish(Event{Kind: EventNodeInterviewStageChanged, NodeID: n.ID(), Stage: stage})
}

// stageProtocolInfo asks the controller what it already knows about the
// node from the network's routing table, without any over-the-air
// traffic to the node itself.
func (d *Driver) stageProtocolInfo(ctx context.Context, n *node.Node) error {
	f, err := d.hostRequest(sendqueue.PriorityNodeQuery, n.ID(), message.FuncZWGetNodeProtocolInfo, n.ID())
	if err != nil {
		return err
	}
	parsed, err := message.ParseResponse(message.FuncZWGetNodeProtocolInfo, f)
	if err != nil {
		return err
	}
	info := parsed.(*message.ZWGetNodeProtocolInfo)
	n.SetProtocolInfo(node.DeviceClass{
		Basic:    info.BasicDeviceClass,
		Generic:  info.GenericDeviceClass,
		Specific: info.SpecificDeviceClass,
	}, info.Listening, info.FrequentListening, info.Routing, info.MaxBaudRate, info.Beaming, 0)
	d.advanced(n, node.StageProtocolInfo)
	return nil
}

// stageNodeInfo requests the node's NIF and waits for it to arrive as a
// ZWApplicationUpdate callback (spec.md §4.7 NodeInfo stage).
func (d *Driver) stageNodeInfo(ctx context.Context, n *node.Node) error {
	f, err := d.hostRequest(sendqueue.PriorityNodeQuery, n.ID(), message.FuncZWRequestNodeInfo, n.ID())
	if err != nil {
		return err
	}
	parsed, err := message.ParseResponse(message.FuncZWRequestNodeInfo, f)
	if err != nil {
		return err
	}
	if !parsed.(*message.ZWRequestNodeInfoResponse).Accepted {
		return zwerror.Wrap(zwerror.KindNodeTimeout,
			fmt.Sprintf("node %d: ZWRequestNodeInfo not accepted", n.ID()), nil)
	}
	update, err := d.waitForNIF(ctx, n.ID())
	if err != nil {
		return err
	}
	n.SetSupportedCCs(update.SupportedCCs, update.ControlledCCs)
	d.advanced(n, node.StageNodeInfo)
	return nil
}

// stageCommandClasses discovers the implemented version of every
// command class the NodeInfo stage found supported (spec.md §4.7).
func (d *Driver) stageCommandClasses(ctx context.Context, n *node.Node) error {
	if !n.SupportsCC(device.CommandClassVersion) {
		d.advanced(n, node.StageCommandClasses)
		return nil
	}
	for _, ccID := range n.SupportedCCs() {
		if ccID == device.CommandClassVersion {
			continue
		}
		enc, err := d.requestCC(ctx, n, 0, device.CommandClassVersion, versionCommandCommandClassGet,
			&cc.VersionCommandClassGet{CCID: ccID}, sendqueue.PriorityNodeQuery)
		if err != nil {
			d.logger.Warn("driver: version query failed", zap.Uint8("nodeId", n.ID()), zap.Uint8("ccId", ccID), zap.Error(err))
			continue
		}
		report, ok := enc.Inner.Parsed.(*cc.VersionCommandClassReport)
		if !ok {
			continue
		}
		id := valuedb.ID{NodeID: n.ID(), CCID: device.CommandClassVersion, Property: "ccVersion", PropertyKey: fmt.Sprintf("0x%02x", ccID)}
		d.values.Set(id, report.Version)
	}
	d.advanced(n, node.StageCommandClasses)
	return nil
}

// stageEndpoints discovers Multi Channel endpoints, when the node
// supports the Multi Channel command class (spec.md §4.7 Endpoints
// stage).
func (d *Driver) stageEndpoints(ctx context.Context, n *node.Node) error {
	if !n.SupportsCC(device.CommandClassMultiChannel) {
		d.advanced(n, node.StageEndpoints)
		return nil
	}
	enc, err := d.requestCC(ctx, n, 0, device.CommandClassMultiChannel, multiChannelCommandEndPointGet,
		&cc.MultiChannelEndPointGet{}, sendqueue.PriorityNodeQuery)
	if err != nil {
		return err
	}
	epReport, ok := enc.Inner.Parsed.(*cc.MultiChannelEndPointReport)
	if !ok {
		return zwerror.New(zwerror.KindMalformedCC, "driver: expected MultiChannel.EndPointReport")
	}

	for i := uint8(1); i <= epReport.IndividualCount; i++ {
		capEnc, err := d.requestCC(ctx, n, 0, device.CommandClassMultiChannel, multiChannelCommandCapabilityGet,
			&cc.MultiChannelCapabilityGet{EndpointIndex: i}, sendqueue.PriorityNodeQuery)
		if err != nil {
			d.logger.Warn("driver: endpoint capability query failed", zap.Uint8("nodeId", n.ID()), zap.Uint8("endpoint", i), zap.Error(err))
			continue
		}
		capReport, ok := capEnc.Inner.Parsed.(*cc.MultiChannelCapabilityReport)
		if !ok {
			continue
		}
		ep := n.Endpoint(i)
		ep.DeviceClass = node.DeviceClass{Basic: n.DeviceClass().Basic, Generic: capReport.Generic, Specific: capReport.Specific}
		ep.SupportedCCs = capReport.SupportedCCs
		ep.ControlledCCs = capReport.ControlledCCs
	}
	d.advanced(n, node.StageEndpoints)
	return nil
}

// stageStatic reads values that never change after inclusion: the
// manufacturer/product identifiers (spec.md §4.7 Static stage).
func (d *Driver) stageStatic(ctx context.Context, n *node.Node) error {
	if n.SupportsCC(device.CommandClassManufacturerSpecific) {
		enc, err := d.requestCC(ctx, n, 0, device.CommandClassManufacturerSpecific, manufacturerSpecificCommandGet,
			&cc.ManufacturerSpecificGet{}, sendqueue.PriorityNodeQuery)
		if err != nil {
			d.logger.Warn("driver: manufacturer specific query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		} else if report, ok := enc.Inner.Parsed.(*cc.ManufacturerSpecificReport); ok {
			d.applyCC(n, &cc.Encapsulated{Inner: &cc.Instance{NodeID: n.ID(), CCID: device.CommandClassManufacturerSpecific, Parsed: report}})
		}
	}
	if n.SupportsCC(device.CommandClassVersion) {
		enc, err := d.requestCC(ctx, n, 0, device.CommandClassVersion, versionCommandGet, &cc.VersionGet{}, sendqueue.PriorityNodeQuery)
		if err != nil {
			d.logger.Warn("driver: version query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		} else if report, ok := enc.Inner.Parsed.(*cc.VersionReport); ok {
			d.applyCC(n, &cc.Encapsulated{Inner: &cc.Instance{NodeID: n.ID(), CCID: device.CommandClassVersion, Parsed: report}})
		}
	}
	if n.SupportsCC(device.CommandClassAssociation) {
		d.stageStaticAssociations(ctx, n)
	}
	d.advanced(n, node.StageStatic)
	return nil
}

// stageStaticAssociations discovers the node's association groupings and
// each group's members, feeding them through applyCC so they land in the
// ValueDB and the persistence store (spec.md §6 persistent state names
// "association groupings" per node).
func (d *Driver) stageStaticAssociations(ctx context.Context, n *node.Node) {
	enc, err := d.requestCC(ctx, n, 0, device.CommandClassAssociation, associationCommandGroupingsGet,
		&cc.AssociationGroupingsGet{}, sendqueue.PriorityNodeQuery)
	if err != nil {
		d.logger.Warn("driver: association groupings query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		return
	}
	report, ok := enc.Inner.Parsed.(*cc.AssociationGroupingsReport)
	if !ok {
		return
	}
	d.applyCC(n, enc)

	for group := uint8(1); group <= report.SupportedGroupings; group++ {
		gEnc, err := d.requestCC(ctx, n, 0, device.CommandClassAssociation, associationCommandGet,
			&cc.AssociationGet{GroupingIdentifier: group}, sendqueue.PriorityNodeQuery)
		if err != nil {
			d.logger.Warn("driver: association group query failed",
				zap.Uint8("nodeId", n.ID()), zap.Uint8("group", group), zap.Error(err))
			continue
		}
		d.applyCC(n, gEnc)
	}
}

// stageCache generates no device traffic and restores nothing: valuedb
// is in memory only and its values are not read back from the
// persistence store, so the stage is a pure checkpoint.
func (d *Driver) stageCache(ctx context.Context, n *node.Node) error {
	d.advanced(n, node.StageCache)
	return nil
}

// stageDynamic polls the values that can change between sessions and
// are not pushed unsolicited (spec.md §4.7 Dynamic stage). Individual
// query failures are logged, not fatal: a sleeping node answering one
// Get but timing out on another shouldn't park the whole interview.
func (d *Driver) stageDynamic(ctx context.Context, n *node.Node) error {
	if n.SupportsCC(device.CommandClassBattery) {
		if enc, err := d.requestCC(ctx, n, 0, device.CommandClassBattery, batteryCommandGet, &cc.BatteryGet{}, sendqueue.PriorityPoll); err != nil {
			d.logger.Warn("driver: battery query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		} else {
			d.applyCC(n, enc)
		}
	}
	if n.SupportsCC(device.CommandClassBinarySwitch) {
		if enc, err := d.requestCC(ctx, n, 0, device.CommandClassBinarySwitch, binarySwitchCommandGet, &cc.BinarySwitchGet{}, sendqueue.PriorityPoll); err != nil {
			d.logger.Warn("driver: binary switch query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		} else {
			d.applyCC(n, enc)
		}
	}
	if n.SupportsCC(device.CommandClassMultilevelSwitch) {
		if enc, err := d.requestCC(ctx, n, 0, device.CommandClassMultilevelSwitch, multilevelSwitchCommandGet, &cc.MultilevelSwitchGet{}, sendqueue.PriorityPoll); err != nil {
			d.logger.Warn("driver: multilevel switch query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		} else {
			d.applyCC(n, enc)
		}
	}
	if n.SupportsCC(device.CommandClassMultilevelSensor) {
		if supEnc, err := d.requestCC(ctx, n, 0, device.CommandClassMultilevelSensor, multilevelSensorCommandSupportedSensorGet,
			&cc.MultilevelSensorSupportedSensorGet{}, sendqueue.PriorityPoll); err != nil {
			d.logger.Warn("driver: multilevel sensor supported query failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		} else if sup, ok := supEnc.Inner.Parsed.(*cc.MultilevelSensorSupportedSensorReport); ok {
			for _, sensorType := range sup.SupportedSensorTypes {
				enc, err := d.requestCC(ctx, n, 0, device.CommandClassMultilevelSensor, multilevelSensorCommandGet,
					&cc.MultilevelSensorGet{SensorType: sensorType}, sendqueue.PriorityPoll)
				if err != nil {
					d.logger.Warn("driver: multilevel sensor query failed", zap.Uint8("nodeId", n.ID()), zap.Uint8("sensorType", sensorType), zap.Error(err))
					continue
				}
				d.applyCC(n, enc)
			}
		}
	}
	d.advanced(n, node.StageDynamic)
	return nil
}

// applyCC folds a decoded application command into the ValueDB and node
// model (spec.md §4.6). Unrecognized commands are dropped unless
// PreserveUnknownValues asks for a raw fallback.
func (d *Driver) applyCC(n *node.Node, enc *cc.Encapsulated) {
	nodeID := n.ID()
	switch v := enc.Inner.Parsed.(type) {
	case *cc.BatteryReport:
		id := valuedb.ID{NodeID: nodeID, CCID: device.CommandClassBattery, Property: "level"}
		d.values.Set(id, v.Level)

	case *cc.ManufacturerSpecificReport:
		ccID := device.CommandClassManufacturerSpecific
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "manufacturerId"}, v.ManufacturerID)
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "productType"}, v.ProductType)
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "productId"}, v.ProductID)

	case *cc.VersionReport:
		id := valuedb.ID{NodeID: nodeID, CCID: device.CommandClassVersion, Property: "firmwareVersion"}
		d.values.Set(id, fmt.Sprintf("%d.%d", v.ApplicationVersion, v.ApplicationSubVersion))

	case *cc.BinarySwitchReport:
		ccID := device.CommandClassBinarySwitch
		id := valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "currentValue"}
		d.values.Set(id, v.CurrentValue)
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "targetValue"}, v.TargetValue)
		// An unsolicited Report is itself confirmation: any verify poll
		// scheduled for the non-supervised write path is now redundant.
		d.cancelVerifyPoll(id)

	case *cc.MultilevelSwitchReport:
		ccID := device.CommandClassMultilevelSwitch
		id := valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "currentValue"}
		d.values.Set(id, v.CurrentValue)
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "targetValue"}, v.TargetValue)
		d.cancelVerifyPoll(id)

	case *cc.MultilevelSensorReport:
		id := valuedb.ID{
			NodeID: nodeID, CCID: device.CommandClassMultilevelSensor,
			Property: "value", PropertyKey: fmt.Sprintf("%d", v.SensorType),
		}
		d.values.Set(id, v.Value)

	case *cc.AssociationGroupingsReport:
		id := valuedb.ID{NodeID: nodeID, CCID: device.CommandClassAssociation, Property: "groupCount"}
		d.values.Set(id, v.SupportedGroupings)

	case *cc.AssociationReport:
		ccID := device.CommandClassAssociation
		key := fmt.Sprintf("%d", v.GroupingIdentifier)
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "maxNodes", PropertyKey: key}, v.MaxNodesSupported)
		d.values.Set(valuedb.ID{NodeID: nodeID, CCID: ccID, Property: "nodeIds", PropertyKey: key}, append([]uint8(nil), v.NodeIDs...))
		d.persistAssociations(nodeID)

	case *cc.WakeUpNotification:
		d.runner.NotifyAwake(nodeID)
		d.queue.Release(nodeID)
		d.values.Notify(valuedb.ID{NodeID: nodeID, CCID: device.CommandClassWakeup, Property: "wakeup"}, true)

	default:
		if d.opts.PreserveUnknownValues {
			id := valuedb.ID{NodeID: nodeID, CCID: enc.Inner.CCID, Property: "raw", PropertyKey: fmt.Sprintf("0x%02x", enc.Inner.CCCommand)}
			d.values.Set(id, enc.Inner.Payload)
		}
	}
}

// persistAssociations mirrors nodeID's association groupings from the
// ValueDB into the persistence store as a JSON object keyed by group id
// (spec.md §6 persistent state). Durability follows the store's flush
// contract: the next stage-completion or Close flushes it to disk.
func (d *Driver) persistAssociations(nodeID uint8) {
	groups := map[string][]uint8{}
	for id, v := range d.values.ForNode(nodeID) {
		if id.CCID != device.CommandClassAssociation || id.Property != "nodeIds" {
			continue
		}
		if nodes, ok := v.([]uint8); ok {
			groups[id.PropertyKey] = nodes
		}
	}
	raw, err := json.Marshal(groups)
	if err != nil {
		d.logger.Warn("driver: failed to encode associations", zap.Uint8("nodeId", nodeID), zap.Error(err))
		return
	}
	d.store.Set(fmt.Sprintf("node-%d-associations", nodeID), raw)
}
