package security

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNonceKey = [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

func TestSPANNextNonceRequiresEstablishment(t *testing.T) {
	spans := NewSPANTable()
	_, err := spans.NextNonce(1, 5)
	require.Error(t, err)
}

func TestSPANNextNonceAdvancesDeterministically(t *testing.T) {
	a := NewSPANTable()
	b := NewSPANTable()
	require.NoError(t, a.EstablishS2Nonce(testNonceKey, 1, 5, []byte{0xaa}, []byte{0xbb}))
	require.NoError(t, b.EstablishS2Nonce(testNonceKey, 1, 5, []byte{0xaa}, []byte{0xbb}))

	n1a, err := a.NextNonce(1, 5)
	require.NoError(t, err)
	n1b, err := b.NextNonce(1, 5)
	require.NoError(t, err)
	assert.Equal(t, n1a, n1b, "identically seeded SPANs must stay in step")

	n2a, err := a.NextNonce(1, 5)
	require.NoError(t, err)
	assert.NotEqual(t, n1a, n2a, "consecutive nonces must differ")
}

func TestSPANThreeConsecutiveFailuresAbort(t *testing.T) {
	spans := NewSPANTable()
	require.NoError(t, spans.EstablishS2Nonce(testNonceKey, 1, 5, []byte{0xaa}, []byte{0xbb}))

	assert.False(t, spans.RecordFailure(1, 5))
	assert.False(t, spans.RecordFailure(1, 5))
	assert.True(t, spans.RecordFailure(1, 5))
}

func TestSPANSuccessResetsFailureCount(t *testing.T) {
	spans := NewSPANTable()
	require.NoError(t, spans.EstablishS2Nonce(testNonceKey, 1, 5, []byte{0xaa}, []byte{0xbb}))

	spans.RecordFailure(1, 5)
	spans.RecordFailure(1, 5)
	spans.RecordSuccess(1, 5)
	assert.False(t, spans.RecordFailure(1, 5))
}

func TestMPANNextNonceRequiresEstablishment(t *testing.T) {
	mpans := NewMPANTable()
	_, err := mpans.NextNonce(4, 1)
	require.Error(t, err)
}

func TestMPANNextNonceAdvancesDeterministically(t *testing.T) {
	a := NewMPANTable()
	b := NewMPANTable()
	require.NoError(t, a.Establish(testNonceKey, 4, 1, []byte{0xcc, 0xdd}))
	require.NoError(t, b.Establish(testNonceKey, 4, 1, []byte{0xcc, 0xdd}))

	n1a, err := a.NextNonce(4, 1)
	require.NoError(t, err)
	n1b, err := b.NextNonce(4, 1)
	require.NoError(t, err)
	assert.Equal(t, n1a, n1b, "identically seeded MPANs must stay in step")

	n2a, err := a.NextNonce(4, 1)
	require.NoError(t, err)
	assert.NotEqual(t, n1a, n2a, "consecutive nonces must differ")
}

func TestMPANGroupsAreIndependent(t *testing.T) {
	mpans := NewMPANTable()
	require.NoError(t, mpans.Establish(testNonceKey, 4, 1, []byte{0xcc}))
	require.NoError(t, mpans.Establish(testNonceKey, 4, 2, []byte{0xcc}))

	n1, err := mpans.NextNonce(4, 1)
	require.NoError(t, err)
	n2, err := mpans.NextNonce(4, 2)
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2, "distinct groups must derive distinct chains")
}

func TestMPANThreeConsecutiveFailuresAbort(t *testing.T) {
	mpans := NewMPANTable()
	require.NoError(t, mpans.Establish(testNonceKey, 4, 1, []byte{0xcc}))

	assert.False(t, mpans.RecordFailure(4, 1))
	assert.False(t, mpans.RecordFailure(4, 1))
	assert.True(t, mpans.RecordFailure(4, 1))
}
