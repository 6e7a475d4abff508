// Package interview drives a node through its staged capability
// discovery, persisting progress so a driver restart resumes at the
// first incomplete stage, and suspending non-listening nodes until they
// wake (spec.md §4.7).
package interview

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
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/internal/zwerror"
	"github.com/zwavelink/corezwave/node"
	"github.com/zwavelink/corezwave/persistence"
)

// StageTimeout is the default per-stage exchange timeout applied while
// waiting on a non-listening node's wake-up (spec.md §4.7).
const StageTimeout = 30 * time.Second

// DeadNodeMaxAttempts is how many backed-off retries a failed stage gets
// across sessions; the failure after the last of them marks the node dead
// (spec.md §4.7).
const DeadNodeMaxAttempts = 5

// backoffSchedule is the exponential 5 min -> 2 h retry schedule
// spec.md §4.7 names, one entry per failed attempt.
var backoffSchedule = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
}

// StageFunc performs one stage's work against n. It must be idempotent:
// re-running an already-completed stage must not corrupt state (spec.md
// §4.7: "each stage is idempotent").
type StageFunc func(ctx context.Context, n *node.Node) error

// StageDef binds a stage to its action and whether its completion is
// recorded to persistence (spec.md §4.7's table: Cache and Dynamic are
// not persisted).
type StageDef struct {
	Stage   node.InterviewStage
	Run     StageFunc
	Persist bool
}

// DefaultStages returns the canonical stage order spec.md §4.7 names,
// in ascending InterviewStage order, with Run left nil. Callers (the
// driver) set Run to the concrete per-stage action before use; keeping
// the table data-only lets this package be exercised with fakes.
func DefaultStages() []StageDef {
	return []StageDef{
		{Stage: node.StageProtocolInfo, Persist: true},
		{Stage: node.StageNodeInfo, Persist: true},
		{Stage: node.StageCommandClasses, Persist: true},
		{Stage: node.StageEndpoints, Persist: true},
		{Stage: node.StageStatic, Persist: true},
		{Stage: node.StageCache, Persist: false},
		{Stage: node.StageDynamic, Persist: false},
	}
}

type attemptKey struct {
	nodeID uint8
	stage  node.InterviewStage
}

type attemptState struct {
	failures  int
	nextRetry time.Time
	dead      bool
}

// ErrNotDueYet is returned by RunNode when a stage's backoff window has
// not elapsed; the caller should reschedule rather than treat this as
// a failure.
var ErrNotDueYet = fmt.Errorf("interview: stage retry not due yet")

// Runner drives nodes through DefaultStages (or a caller-supplied
// stage set), tracking per-node per-stage attempts and wake-up
// suspension.
type Runner struct {
	logger *zap.Logger
	store  persistence.Store
	stages []StageDef

	mu       sync.Mutex
	attempts map[attemptKey]*attemptState
	wake     map[uint8]chan struct{}
}

// NewRunner returns a Runner over stages, persisting stage completion
// via store.
func NewRunner(stages []StageDef, store persistence.Store, logger *zap.Logger) *Runner {
	return &Runner{
		logger:   logger,
		store:    store,
		stages:   stages,
		attempts: map[attemptKey]*attemptState{},
		wake:     map[uint8]chan struct{}{},
	}
}

func stageKey(nodeID uint8) string {
	return fmt.Sprintf("node-%d-interview-stage", nodeID)
}

// Resume reads n's last persisted stage, if any, and forces the node
// to it via ResetInterviewStage so RunNode picks up where a prior
// session left off (spec.md §8 scenario 5: "driver restart resumes at
// the first incomplete stage").
func (r *Runner) Resume(n *node.Node) {
	raw, ok := r.store.Get(stageKey(n.ID()))
	if !ok || len(raw) != 1 {
		return
	}
	n.ResetInterviewStage(node.InterviewStage(raw[0]))
}

// NotifyAwake signals that nodeID has sent a Wake Up Notification,
// releasing any stage currently suspended waiting for it.
func (r *Runner) NotifyAwake(nodeID uint8) {
	ch := r.wakeChan(nodeID)
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (r *Runner) wakeChan(nodeID uint8) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.wake[nodeID]
	if !ok {
		ch = make(chan struct{}, 1)
		r.wake[nodeID] = ch
	}
	return ch
}

// IsDead reports whether any stage for nodeID has exhausted its retry
// budget.
func (r *Runner) IsDead(nodeID uint8) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, st := range r.attempts {
		if key.nodeID == nodeID && st.dead {
			return true
		}
	}
	return false
}

// RunNode advances n through every stage after its current one, in
// order, stopping at the first stage that suspends (non-listening node
// awaiting wake-up), is not yet due for retry, or fails terminally
// (dead node). On success for every stage it advances n to
// node.StageComplete.
func (r *Runner) RunNode(ctx context.Context, n *node.Node) error {
	for _, def := range r.stages {
		if def.Stage <= n.InterviewStage() {
			continue
		}
		if err := r.runStage(ctx, n, def); err != nil {
			return err
		}
	}
	n.AdvanceInterviewStage(node.StageComplete)
	return nil
}

func (r *Runner) runStage(ctx context.Context, n *node.Node, def StageDef) error {
	key := attemptKey{nodeID: n.ID(), stage: def.Stage}

	r.mu.Lock()
	st, ok := r.attempts[key]
	if ok && st.dead {
		r.mu.Unlock()
		return zwerror.Wrap(zwerror.KindNodeTimeout,
			fmt.Sprintf("node %d stage %s dead", n.ID(), def.Stage), nil)
	}
	if ok && time.Now().Before(st.nextRetry) {
		r.mu.Unlock()
		return ErrNotDueYet
	}
	r.mu.Unlock()

	stageCtx, cancel := context.WithTimeout(ctx, StageTimeout)
	defer cancel()

	if !n.IsListening() {
		wake := r.wakeChan(n.ID())
		select {
		case <-wake:
		case <-stageCtx.Done():
			return r.recordFailure(key, zwerror.Wrap(zwerror.KindNodeTimeout,
				fmt.Sprintf("node %d stage %s: no wake-up within timeout", n.ID(), def.Stage),
				stageCtx.Err()))
		}
	}

	if def.Run == nil {
		return zwerror.New(zwerror.KindNodeTimeout, fmt.Sprintf("stage %s has no action configured", def.Stage))
	}

	if err := def.Run(stageCtx, n); err != nil {
		return r.recordFailure(key, err)
	}

	r.mu.Lock()
	delete(r.attempts, key)
	r.mu.Unlock()

	n.AdvanceInterviewStage(def.Stage)
	if def.Persist {
		r.store.Set(stageKey(n.ID()), []byte{byte(def.Stage)})
		if err := r.store.Flush(); err != nil {
			r.logger.Warn("interview: failed to persist stage completion",
				zap.Uint8("nodeId", n.ID()), zap.String("stage", def.Stage.String()), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) recordFailure(key attemptKey, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.attempts[key]
	if !ok {
		st = &attemptState{}
		r.attempts[key] = st
	}
	st.failures++
	if st.failures > DeadNodeMaxAttempts {
		st.dead = true
		r.logger.Error("interview: node marked dead after exhausting retries",
			zap.Uint8("nodeId", key.nodeID), zap.String("stage", key.stage.String()))
		return zwerror.Wrap(zwerror.KindNodeTimeout, "dead node", cause)
	}
	delay := backoffSchedule[len(backoffSchedule)-1]
	if st.failures-1 < len(backoffSchedule) {
		delay = backoffSchedule[st.failures-1]
	}
	st.nextRetry = time.Now().Add(delay)
	r.logger.Warn("interview: stage failed, backing off",
		zap.Uint8("nodeId", key.nodeID), zap.String("stage", key.stage.String()),
		zap.Int("failures", st.failures), zap.Duration("retryIn", delay), zap.Error(cause))
	return cause
}
