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
	"fmt"
	"time"
)

// EncodeDuration converts a Go duration to the Z-Wave wire duration byte:
// 0x00 instant, 0x01-0x7F seconds, 0x80-0xFE minutes (1-127), 0xFF unknown.
func EncodeDuration(d time.Duration) (uint8, error) {
	if d < 0 {
		return 0, fmt.Errorf("cc: negative duration")
	}
	if d == 0 {
		return 0x00, nil
	}
	seconds := d / time.Second
	if seconds <= 127 {
		return uint8(seconds), nil
	}
	minutes := seconds / 60
	if minutes <= 127 {
		return uint8(0x7f + minutes), nil
	}
	return 0, fmt.Errorf("cc: duration %v exceeds encodable range", d)
}

// DecodeDuration converts a wire duration byte back to a Go duration.
// 0xFF (unknown) decodes to -1.
func DecodeDuration(b uint8) time.Duration {
	switch {
	case b == 0xff:
		return -1
	case b == 0x00:
		return 0
	case b <= 0x7f:
		return time.Duration(b) * time.Second
	default:
		return time.Duration(b-0x80+1) * time.Minute
	}
}
