// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

//go:build windows

package memory

import (
	"github.com/born-ml/gradtape/internal/memory"
)

// WebGPUDevice is a driver backed by WebGPU storage buffers.
type WebGPUDevice = memory.WebGPUDevice

// NewWebGPUDevice opens the default GPU adapter.
func NewWebGPUDevice(capacity int) (*WebGPUDevice, error) {
	return memory.NewWebGPUDevice(capacity)
}
