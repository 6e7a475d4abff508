// Package persistence implements the opaque key/value store the driver
// uses to remember node state across restarts: identity, capabilities,
// last interview stage, supported/controlled CCs, security class, last
// known stateful values, and association groupings (spec.md §6).
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

// Store is the contract the core requires of any persistence backend.
// Values are opaque byte blobs; the core only needs get/set/flush, with
// at-least-once durability guaranteed once Flush returns nil (spec.md
// §6: "the core only requires get(key), set(key, value), flush() with
// at-least-once durability on flush()"). Keys must not contain the OS
// path separator; FileStore maps a key directly to a filename.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Flush() error
}
