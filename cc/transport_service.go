package cc

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

	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/internal/zwerror"
)

// Transport Service segments a datagram that exceeds the single-frame MTU
// (spec.md §4.3) into First/Subsequent segments addressed by a per-
// datagram session id and sequence number, and reassembles them on the
// receive side.
const (
	transportServiceCommandFirstSegment      uint8 = 0xc0
	transportServiceCommandSubsequentSegment uint8 = 0xe0
)

const transportServiceSegmentSize = 39

// segmentDatagram splits data into Transport Service segments addressed
// by sessionID. The first segment carries the total datagram length; each
// segment carries its sequence number so segments may arrive reordered.
// Layout: ccId | cmd | sessionId<<3|seq(first 3 bits reserved) | [totalLen(2 bytes) only on first] | chunk
func segmentDatagram(sessionID uint8, data []uint8) [][]uint8 {
	var segments [][]uint8
	seq := uint8(0)
	for offset := 0; offset < len(data); offset += transportServiceSegmentSize {
		end := offset + transportServiceSegmentSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		header := sessionID<<3 | seq&0x07
		var seg []uint8
		if offset == 0 {
			seg = append(seg, device.CommandClassTransportService, transportServiceCommandFirstSegment, header,
				uint8(len(data)>>8), uint8(len(data)))
		} else {
			seg = append(seg, device.CommandClassTransportService, transportServiceCommandSubsequentSegment, header)
		}
		seg = append(seg, chunk...)
		segments = append(segments, seg)
		seq++
	}
	return segments
}

type reassembly struct {
	sessionID uint8
	totalLen  int
	chunks    map[uint8][]uint8
}

// Assembler reassembles Transport Service segments into complete
// datagrams, one reassembly in flight per session id.
type Assembler struct {
	mu       sync.Mutex
	sessions map[uint8]*reassembly
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{sessions: map[uint8]*reassembly{}}
}

// Accept feeds one Transport Service segment into the assembler. It
// returns the reassembled datagram and true once every segment of that
// session has arrived, or (nil, false) while more are still pending.
func (a *Assembler) Accept(data []uint8) ([]uint8, bool, error) {
	if err := validatePayload(len(data) >= 3, "TransportService: payload too short"); err != nil {
		return nil, false, err
	}
	cmd := data[1]
	header := data[2]
	sessionID := header >> 3
	seq := header & 0x07

	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.sessions[sessionID]
	switch cmd {
	case transportServiceCommandFirstSegment:
		if err := validatePayload(len(data) >= 5, "TransportService: first segment truncated"); err != nil {
			return nil, false, err
		}
		totalLen := int(data[3])<<8 | int(data[4])
		// Keep segments that arrived ahead of the First one; a First
		// segment for a session that already had one starts over.
		if !ok || r.totalLen >= 0 {
			r = &reassembly{sessionID: sessionID, chunks: map[uint8][]uint8{}}
			a.sessions[sessionID] = r
		}
		r.totalLen = totalLen
		r.chunks[seq] = data[5:]
	case transportServiceCommandSubsequentSegment:
		if !ok {
			// Total length is unknown until the First segment arrives.
			r = &reassembly{sessionID: sessionID, totalLen: -1, chunks: map[uint8][]uint8{}}
			a.sessions[sessionID] = r
		}
		r.chunks[seq] = data[3:]
	default:
		return nil, false, zwerror.New(zwerror.KindMalformedCC, "TransportService: unknown command")
	}

	if r.totalLen < 0 {
		return nil, false, nil
	}
	assembled := make([]uint8, 0, r.totalLen)
	for i := uint8(0); len(assembled) < r.totalLen; i++ {
		chunk, have := r.chunks[i]
		if !have {
			return nil, false, nil
		}
		assembled = append(assembled, chunk...)
	}

	delete(a.sessions, sessionID)
	if len(assembled) > r.totalLen {
		assembled = assembled[:r.totalLen]
	}
	return assembled, true, nil
}
