// Package transform launches the external photo transformation tool and
// reports what it does as a stream of events.
package transform

import "context"

type EventKind int

const (
	// EventSpawnError is sent at most once, before any other event, when the
	// tool could not be launched.
	EventSpawnError EventKind = iota
	EventStdout
	EventStderr
	// EventExit is always the last event of a run.
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventSpawnError:
		return "spawn_error"
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventExit:
		return "exit"
	}
	return "unknown"
}

// Event is one thing the supervised process did. Text is set for output
// events, Err for spawn errors and Code for exit. A nil Code on exit means
// the process ended without reporting one.
type Event struct {
	Kind EventKind
	Text string
	Code *int
	Err  error
}

func SpawnError(err error) Event { return Event{Kind: EventSpawnError, Err: err} }

func Stdout(text string) Event { return Event{Kind: EventStdout, Text: text} }

func Stderr(text string) Event { return Event{Kind: EventStderr, Text: text} }

func Exit(code int) Event { return Event{Kind: EventExit, Code: &code} }

// ExitWithoutCode reports a termination that carried no exit status.
func ExitWithoutCode() Event { return Event{Kind: EventExit} }

// Request describes one invocation of the tool.
type Request struct {
	JobID      string
	SourcePath string
	OutputPath string
	// Params fill ${NAME} placeholders of the argument template.
	Params map[string]string
}

// Process is a running invocation. The events channel is closed after the
// final event.
type Process interface {
	Events() <-chan Event
	// Terminate asks the process to stop. It returns immediately.
	Terminate() error
}

// Spawner starts the tool for a request. Cancelling ctx terminates the
// process.
type Spawner interface {
	Spawn(ctx context.Context, req Request) (Process, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context, req Request) (Process, error)

func (f SpawnerFunc) Spawn(ctx context.Context, req Request) (Process, error) {
	return f(ctx, req)
}
