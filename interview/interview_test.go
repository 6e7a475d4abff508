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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/node"
)

type memStore struct {
	values map[string][]byte
}

func newMemStore() *memStore { return &memStore{values: map[string][]byte{}} }

func (m *memStore) Get(key string) ([]byte, bool) { v, ok := m.values[key]; return v, ok }
func (m *memStore) Set(key string, value []byte)  { m.values[key] = value }
func (m *memStore) Flush() error                  { return nil }

func okStages() []StageDef {
	stages := DefaultStages()
	for i := range stages {
		stages[i].Run = func(ctx context.Context, n *node.Node) error { return nil }
	}
	return stages
}

func TestRunNodeAdvancesThroughEveryStageToComplete(t *testing.T) {
	store := newMemStore()
	r := NewRunner(okStages(), store, zap.NewNop())
	n := node.New(5, zap.NewNop())
	n.SetProtocolInfo(node.DeviceClass{}, true, false, false, 40000, false, 4)

	err := r.RunNode(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, node.StageComplete, n.InterviewStage())
}

func TestRunNodeSkipsAlreadyCompletedStages(t *testing.T) {
	store := newMemStore()
	ran := map[node.InterviewStage]bool{}
	stages := DefaultStages()
	for i := range stages {
		s := stages[i].Stage
		stages[i].Run = func(ctx context.Context, n *node.Node) error {
			ran[s] = true
			return nil
		}
	}
	r := NewRunner(stages, store, zap.NewNop())
	n := node.New(5, zap.NewNop())
	n.SetProtocolInfo(node.DeviceClass{}, true, false, false, 40000, false, 4)
	n.ResetInterviewStage(node.StageCommandClasses)

	require.NoError(t, r.RunNode(context.Background(), n))
	assert.False(t, ran[node.StageProtocolInfo])
	assert.False(t, ran[node.StageNodeInfo])
	assert.True(t, ran[node.StageEndpoints])
}

func TestResumeRestoresPersistedStage(t *testing.T) {
	store := newMemStore()
	r := NewRunner(okStages(), store, zap.NewNop())
	n := node.New(5, zap.NewNop())
	n.SetProtocolInfo(node.DeviceClass{}, true, false, false, 40000, false, 4)

	require.NoError(t, r.RunNode(context.Background(), n))

	fresh := node.New(5, zap.NewNop())
	r.Resume(fresh)
	assert.Equal(t, node.StageStatic, fresh.InterviewStage())
}

func TestNonListeningNodeSuspendsUntilWakeUp(t *testing.T) {
	store := newMemStore()
	r := NewRunner(okStages(), store, zap.NewNop())
	n := node.New(9, zap.NewNop())
	n.SetProtocolInfo(node.DeviceClass{}, false, true, false, 40000, false, 4)

	done := make(chan error, 1)
	go func() {
		done <- r.RunNode(context.Background(), n)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("RunNode completed before wake-up was signalled")
	default:
	}

	for i := 0; i < len(okStages()); i++ {
		r.NotifyAwake(9)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunNode never completed after wake-up signals")
	}
	assert.Equal(t, node.StageComplete, n.InterviewStage())
}

func TestFailingStageBacksOffAndReportsNotDueYet(t *testing.T) {
	store := newMemStore()
	stages := DefaultStages()
	stages[0].Run = func(ctx context.Context, n *node.Node) error {
		return errors.New("boom")
	}
	r := NewRunner(stages, store, zap.NewNop())
	n := node.New(5, zap.NewNop())
	n.SetProtocolInfo(node.DeviceClass{}, true, false, false, 40000, false, 4)

	err := r.RunNode(context.Background(), n)
	require.Error(t, err)

	err2 := r.RunNode(context.Background(), n)
	assert.ErrorIs(t, err2, ErrNotDueYet)
}

func TestStageDeadAfterExhaustingAttempts(t *testing.T) {
	store := newMemStore()
	stages := DefaultStages()
	stages[0].Run = func(ctx context.Context, n *node.Node) error {
		return errors.New("boom")
	}
	r := NewRunner(stages, store, zap.NewNop())
	n := node.New(5, zap.NewNop())
	n.SetProtocolInfo(node.DeviceClass{}, true, false, false, 40000, false, 4)

	key := attemptKey{nodeID: n.ID(), stage: node.StageProtocolInfo}
	r.attempts[key] = &attemptState{failures: DeadNodeMaxAttempts}

	err := r.RunNode(context.Background(), n)
	require.Error(t, err)
	assert.True(t, r.IsDead(n.ID()))
}
