package admission

import "errors"

var (
	// ErrInvalidAddress is returned by operator operations for strings that
	// do not parse as IP addresses.
	ErrInvalidAddress = errors.New("invalid IP address")

	// ErrInvalidSampleSize is returned for sample sizes below 1.
	ErrInvalidSampleSize = errors.New("sample size must be at least 1")

	// ErrInvalidThreshold is returned for negative time thresholds.
	ErrInvalidThreshold = errors.New("time threshold must not be negative")
)
