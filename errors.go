// errors.go - Error values shared by the reconstruction engine

package main

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks numeric range violations found while constructing an engine component.
	ErrInvalidConfig = errors.New("apu: invalid configuration")
	// ErrInvalidTimerState marks an externally supplied phase or LFSR register out of range.
	ErrInvalidTimerState = errors.New("apu: invalid timer state")
	// ErrLibraryMissing means no cached library exists for the active fingerprint.
	ErrLibraryMissing = errors.New("apu: no library data for fingerprint")
	// ErrIncompatibleVersion means a library or reconstruction file has a different format version.
	ErrIncompatibleVersion = errors.New("apu: incompatible file version")
	// ErrTaskRunning is returned by Start on a task that has not reached a terminal state.
	ErrTaskRunning = errors.New("apu: task already running")
	// ErrTaskCancelled is returned by Wait when the task ended cancelled.
	ErrTaskCancelled = errors.New("apu: task cancelled")
	// ErrUnsupportedAudio means the audio loader cannot decode the file type.
	ErrUnsupportedAudio = errors.New("apu: unsupported audio format")
	// ErrNoFragments means the input is shorter than one frame.
	ErrNoFragments = errors.New("apu: audio shorter than one frame")
)

// LibraryMissingError names the fingerprint and path that were expected.
type LibraryMissingError struct {
	Key  LibraryKey
	Path string
}

func (e *LibraryMissingError) Error() string {
	return fmt.Sprintf("apu: no library data for fingerprint %s (expected %s); generate it first", e.Key.Hash, e.Path)
}

func (e *LibraryMissingError) Is(target error) bool {
	return target == ErrLibraryMissing
}

// VersionError reports a format version mismatch for a library or reconstruction file.
type VersionError struct {
	Kind     string
	Expected uint32
	Actual   uint32
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("apu: incompatible %s version: expected %d, got %d", e.Kind, e.Expected, e.Actual)
}

func (e *VersionError) Is(target error) bool {
	return target == ErrIncompatibleVersion
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
