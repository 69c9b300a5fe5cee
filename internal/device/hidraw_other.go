// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build !linux

package device

import "fmt"

// OpenHIDRaw is only available on Linux.
func OpenHIDRaw(path string) (Device, error) {
	return nil, fmt.Errorf("device: hidraw %s: %w", path, ErrUnsupported)
}
