package job

import "time"

type State int

const (
	StateIdle State = iota
	StateRunning
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether only Reset can leave the state.
func (s State) Terminal() bool { return s == StateFinished || s == StateFailed }

// Line is one console log entry.
type Line struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError"`
}

// Snapshot is a copy of the observable job state.
type Snapshot struct {
	ID           string        `json:"id"`
	State        State         `json:"state"`
	IsLoading    bool          `json:"isLoading"`
	HasFailed    bool          `json:"hasFailed"`
	HasFinished  bool          `json:"hasFinished"`
	Lines        []Line        `json:"lines"`
	ErrorText    string        `json:"errorText,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
	OutputPath   string        `json:"outputPath"`
	OutputExists bool          `json:"outputExists"`
	OutputSize   int64         `json:"outputSize,omitempty"`
}
