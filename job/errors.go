package job

import (
	"errors"
	"fmt"
)

var (
	ErrSpawnFailed   = errors.New("spawn failed")
	ErrProcessFailed = errors.New("process failed")
	// ErrNotIdle is returned by Start when the job has not been reset since
	// its last run, or is still running.
	ErrNotIdle = errors.New("job is not idle")
	// ErrReset fails a pending run whose job was reset underneath it.
	ErrReset = errors.New("job was reset")
)

// SpawnError means the transformation tool could not be launched.
type SpawnError struct {
	Cause error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("%s: unable to start the transformation tool, the installation may be corrupt: %v", ErrSpawnFailed, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawnFailed }

// ProcessError means the tool ran and exited with a failure code. Stderr
// holds everything it wrote to its error stream.
type ProcessError struct {
	Code   int
	Stderr string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit code %d: %s", ErrProcessFailed, e.Code, e.Hint())
	}
	return fmt.Sprintf("%s: exit code %d: %s: %s", ErrProcessFailed, e.Code, e.Hint(), e.Stderr)
}

// Hint lists the usual causes of a failed run for display next to Stderr.
func (e *ProcessError) Hint() string {
	return "the process was interrupted by a tool error, this can be caused by a corrupt installation, " +
		"insufficient RAM, or a custom GPU ID whose NVIDIA card could not be found"
}

func (e *ProcessError) Is(target error) bool { return target == ErrProcessFailed }
