package disk

import "errors"

var (
	// ErrImageTooSmall is returned when the requested size cannot hold the
	// fixed boot partitions plus a viable root filesystem
	ErrImageTooSmall = errors.New("image size too small")

	// ErrDeviceNotReady is returned when partition device nodes never
	// appeared after repeated probing
	ErrDeviceNotReady = errors.New("partition devices not ready")
)
