package persistence

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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStoreSetGetBeforeFlush(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, 0x12345678, zap.NewNop())
	require.NoError(t, err)

	fs.Set("node-5", []byte(`{"nodeId":5}`))
	v, ok := fs.Get("node-5")
	require.True(t, ok)
	assert.Equal(t, `{"nodeId":5}`, string(v))
}

func TestFileStoreFlushPersistsToDisk(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, 0x12345678, zap.NewNop())
	require.NoError(t, err)

	fs.Set("node-5", []byte(`{"nodeId":5}`))
	require.NoError(t, fs.Flush())

	path := filepath.Join(dir, "12345678", "node-5.json")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"nodeId":5}`, string(b))
}

func TestFileStoreReloadsExistingFilesOnConstruction(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, 0x12345678, zap.NewNop())
	require.NoError(t, err)
	fs.Set("node-5", []byte(`{"nodeId":5}`))
	require.NoError(t, fs.Flush())

	fs2, err := NewFileStore(dir, 0x12345678, zap.NewNop())
	require.NoError(t, err)
	v, ok := fs2.Get("node-5")
	require.True(t, ok)
	assert.Equal(t, `{"nodeId":5}`, string(v))
}

func TestFileStorePartitionsByHomeID(t *testing.T) {
	dir := t.TempDir()
	fsA, err := NewFileStore(dir, 0x1, zap.NewNop())
	require.NoError(t, err)
	fsB, err := NewFileStore(dir, 0x2, zap.NewNop())
	require.NoError(t, err)

	fsA.Set("node-5", []byte("a"))
	require.NoError(t, fsA.Flush())

	_, ok := fsB.Get("node-5")
	assert.False(t, ok)
}
