package transport

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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeWriteRecordsSent(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Open(context.Background()))

	require.NoError(t, f.Write([]byte{0x01, 0x06}))
	require.NoError(t, f.Write([]byte{0x02}))

	assert.Equal(t, [][]byte{{0x01, 0x06}, {0x02}}, f.Sent())
}

func TestFakeWriteBeforeOpenFails(t *testing.T) {
	f := NewFake()
	err := f.Write([]byte{0x06})
	assert.Error(t, err)
}

func TestFakeFeedDeliversBytes(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Open(context.Background()))

	go f.Feed([]byte{0x06})

	select {
	case b := <-f.Bytes():
		assert.Equal(t, []byte{0x06}, b)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fed bytes")
	}
}

func TestFakeCloseClosesChannels(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.Close())

	_, ok := <-f.Bytes()
	assert.False(t, ok)

	select {
	case err := <-f.Closed():
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Closed")
	}
}
