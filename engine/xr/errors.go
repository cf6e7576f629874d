package xr

import "errors"

var (
	// ErrNotValid is returned by frame operations on a headset whose construction failed.
	ErrNotValid = errors.New("headset is not valid")

	// ErrFormatUnsupported is returned when the runtime does not offer the required swapchain color format.
	ErrFormatUnsupported = errors.New("swapchain color format not supported by runtime")

	// ErrViewCountMismatch is returned when the runtime locates a different number of views than were configured.
	ErrViewCountMismatch = errors.New("located view count does not match eye count")
)
