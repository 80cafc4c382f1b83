package core

import (
	"errors"
)

var (
	// ErrSwapchainBooting signals a stale or suboptimal swapchain. The frame
	// must be skipped and the swapchain rebuilt; it is not a hard failure.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrUnknown          = errors.New("unknown")
)
