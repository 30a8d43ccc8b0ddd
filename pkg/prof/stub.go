//go:build !profile

package prof

import (
	"errors"
	"io"
)

// Profiling errors. Defined in both build modes so callers can reference
// them without the "profile" tag.
var (
	// ErrCPUProfileActive indicates CPU profiling is already active.
	ErrCPUProfileActive = errors.New("cpu profile already active")

	// ErrCPUProfileNotActive indicates CPU profiling is not active.
	ErrCPUProfileNotActive = errors.New("cpu profile not active")

	// ErrInvalidProfile indicates an invalid or unsupported profile type.
	ErrInvalidProfile = errors.New("invalid profile")
)

// Profile represents a pprof profile type.
type Profile string

// Profile type constants.
const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// StartCPU is a no-op without the "profile" build tag.
func StartCPU(path string) error { return nil }

// StopCPU is a no-op without the "profile" build tag.
func StopCPU() error { return nil }

// Write is a no-op without the "profile" build tag.
func Write(profile Profile, path string) error { return nil }

// WriteTo is a no-op without the "profile" build tag.
func WriteTo(profile Profile, w io.Writer) error { return nil }

// SetBlockProfileRate is a no-op without the "profile" build tag.
func SetBlockProfileRate(rate int) {}

// SetMutexProfileFraction is a no-op without the "profile" build tag.
func SetMutexProfileFraction(rate int) {}
