// Package job supervises one run of the external transformation tool for a
// single photo and keeps the state observers display.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dreamjob/output"
	"dreamjob/timer"
	"dreamjob/transform"

	"github.com/spf13/afero"
)

// Photo is the source descriptor a job reads from.
type Photo interface {
	SourceName() string
	SourcePath() string
	// FolderPath returns where a result named filename should be written.
	FolderPath(filename string) string
}

// Option configures a Job at construction.
type Option func(*Job)

// WithLogger sets the diagnostic sink; slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

// WithFs sets the file system holding the output artifact.
func WithFs(fsys afero.Fs) Option {
	return func(j *Job) { j.fs = fsys }
}

// WithClock sets the clock used to stamp output file names.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// WithParams passes extra template values to the tool on every run.
func WithParams(params map[string]string) Option {
	return func(j *Job) { j.params = params }
}

// Job is one supervised transformation of a photo. A job runs at most one
// process at a time and needs a Reset between runs.
type Job struct {
	id      string
	photo   Photo
	spawner transform.Spawner
	file    *output.Location
	timer   *timer.Timer
	fs      afero.Fs
	now     func() time.Time
	params  map[string]string
	logger  *slog.Logger

	mu            sync.Mutex
	state         State
	lines         []Line // oldest first
	errText       strings.Builder
	proc          transform.Process
	// run identifies the current run; events from older runs are dropped.
	run           uint64
	// cancelPending records a Cancel that arrived before the process handle.
	cancelPending bool
	subs          map[int]chan Snapshot
	nextSub       int
}

// New builds an idle job for photo. The output path is derived once here
// and reused by every run of the job.
func New(id string, photo Photo, spawner transform.Spawner, opts ...Option) *Job {
	j := &Job{
		id:      id,
		photo:   photo,
		spawner: spawner,
		timer:   timer.New(),
		fs:      afero.NewOsFs(),
		now:     time.Now,
		logger:  slog.Default(),
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With("job", id)

	// The name is computed once; every run of this job writes the same path.
	j.file = output.New(j.fs, photo.FolderPath(j.FileName()))
	j.Reset()

	j.logger.Info("job created", "photo", photo.SourcePath(), "file", j.file.Path())
	return j
}

func (j *Job) ID() string { return j.id }

func (j *Job) Photo() Photo { return j.photo }

func (j *Job) File() *output.Location { return j.file }

// FileName derives a fresh output file name. Two calls at different seconds
// give different names.
func (j *Job) FileName() string {
	return output.FileName(j.photo.SourceName(), j.id, j.now())
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) IsLoading() bool { return j.State() == StateRunning }

func (j *Job) HasFailed() bool { return j.State() == StateFailed }

func (j *Job) HasFinished() bool { return j.State() == StateFinished }

// Lines returns the console log, most recent first.
func (j *Job) Lines() []Line {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.linesLocked()
}

// ErrorText returns everything the tool wrote to stderr during the last run.
func (j *Job) ErrorText() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.errText.String()
}

func (j *Job) Elapsed() time.Duration { return j.timer.Elapsed() }

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

// Subscribe delivers a snapshot after every change. Slow readers only see
// the latest one. The returned func stops delivery and closes the channel.
func (j *Job) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	j.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			delete(j.subs, id)
			close(ch)
		})
	}
}

// Reset brings the job back to idle for a new run. A process that is still
// running is terminated and its pending result fails with ErrReset.
func (j *Job) Reset() {
	j.mu.Lock()
	proc := j.proc
	j.proc = nil
	j.run++
	j.cancelPending = false
	j.state = StateIdle
	j.lines = nil
	j.errText.Reset()
	j.timer.Reset()
	err := j.file.Remove()
	j.notifyLocked()
	j.mu.Unlock()

	if err != nil {
		j.logger.Warn("could not remove previous output", "err", err)
	}
	if proc != nil {
		if err := proc.Terminate(); err != nil {
			j.logger.Warn("could not terminate process on reset", "err", err)
		}
	}
}

// Start launches the tool and returns right away. The channel receives
// exactly one value: nil on success, a *SpawnError or *ProcessError on
// failure. Start only works on an idle job.
func (j *Job) Start(ctx context.Context) <-chan error {
	result := make(chan error, 1)

	j.mu.Lock()
	if j.state != StateIdle {
		state := j.state
		j.mu.Unlock()
		result <- fmt.Errorf("%w: job %s is %s", ErrNotIdle, j.id, state)
		return result
	}
	j.lines = nil
	j.errText.Reset()
	if err := j.file.Remove(); err != nil {
		j.logger.Warn("could not remove stale output", "err", err)
	}
	j.timer.Start()
	j.state = StateRunning
	j.cancelPending = false
	j.run++
	run := j.run
	j.notifyLocked()
	j.mu.Unlock()

	j.logger.Info("job started")

	proc, err := j.spawner.Spawn(ctx, transform.Request{
		JobID:      j.id,
		SourcePath: j.photo.SourcePath(),
		OutputPath: j.file.Path(),
		Params:     j.params,
	})
	if err != nil {
		j.fail(run, result, func() error { return &SpawnError{Cause: err} })
		return result
	}

	j.mu.Lock()
	if j.run != run {
		j.mu.Unlock()
		if err := proc.Terminate(); err != nil {
			j.logger.Warn("could not terminate process spawned during reset", "err", err)
		}
		go drain(proc)
		result <- ErrReset
		return result
	}
	j.proc = proc
	cancel := j.cancelPending
	j.cancelPending = false
	j.mu.Unlock()

	if cancel {
		j.terminate(proc)
	}
	go j.supervise(run, proc, result)
	return result
}

// Run starts the job and waits for the outcome.
func (j *Job) Run(ctx context.Context) error {
	return <-j.Start(ctx)
}

// Cancel asks the running process to stop. The job fails once the process
// reports its exit. A Cancel that lands while the process is still being
// spawned is applied as soon as Start gets the handle. Cancel does nothing
// when the job is not running.
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.state != StateRunning {
		j.mu.Unlock()
		return
	}
	proc := j.proc
	if proc == nil {
		// Still spawning; Start terminates the process once it has a handle.
		j.cancelPending = true
		j.mu.Unlock()
		j.logger.Info("cancel requested before the process started")
		return
	}
	j.mu.Unlock()

	j.logger.Info("cancel requested")
	j.terminate(proc)
}

func (j *Job) terminate(proc transform.Process) {
	if err := proc.Terminate(); err != nil {
		j.logger.Warn("could not terminate process", "err", err)
	}
}

func (j *Job) supervise(run uint64, proc transform.Process, result chan<- error) {
	defer drain(proc)

	for ev := range proc.Events() {
		switch ev.Kind {
		case transform.EventStdout:
			j.appendOutput(run, ev.Text, false)
		case transform.EventStderr:
			j.appendOutput(run, ev.Text, true)
		case transform.EventSpawnError:
			j.fail(run, result, func() error { return &SpawnError{Cause: ev.Err} })
			return
		case transform.EventExit:
			// No exit code at all is a normal termination.
			if ev.Code == nil || *ev.Code == 0 {
				j.finish(run, result)
				return
			}
			code := *ev.Code
			j.fail(run, result, func() error {
				return &ProcessError{Code: code, Stderr: j.errText.String()}
			})
			return
		}
	}

	j.fail(run, result, func() error {
		return &ProcessError{Code: -1, Stderr: j.errText.String()}
	})
}

func (j *Job) appendOutput(run uint64, chunk string, isError bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.run != run {
		return
	}

	for _, text := range splitLines(chunk) {
		j.lines = append(j.lines, Line{Text: text, IsError: isError})
		if isError {
			j.errText.WriteString(text)
			j.errText.WriteByte('\n')
		}
	}
	j.notifyLocked()
}

func (j *Job) finish(run uint64, result chan<- error) {
	j.mu.Lock()
	if j.run != run {
		j.mu.Unlock()
		result <- ErrReset
		return
	}
	j.timer.Stop()
	refreshErr := j.file.Refresh()
	j.proc = nil
	j.state = StateFinished
	j.notifyLocked()
	j.mu.Unlock()

	if refreshErr != nil {
		j.logger.Warn("could not read output metadata", "err", refreshErr)
	}
	j.logger.Info("job finished", "elapsed", j.timer.Elapsed(), "file", j.file.Path())
	result <- nil
}

// fail moves the run to Failed. newErr runs with the lock held so it can
// read the error transcript.
func (j *Job) fail(run uint64, result chan<- error, newErr func() error) {
	j.mu.Lock()
	if j.run != run {
		j.mu.Unlock()
		result <- ErrReset
		return
	}
	err := newErr()
	j.timer.Stop()
	j.proc = nil
	j.state = StateFailed
	j.notifyLocked()
	j.mu.Unlock()

	j.logger.Error("job failed", "err", err, "elapsed", j.timer.Elapsed())
	result <- err
}

func (j *Job) linesLocked() []Line {
	out := make([]Line, len(j.lines))
	for i, l := range j.lines {
		out[len(j.lines)-1-i] = l
	}
	return out
}

func (j *Job) snapshotLocked() Snapshot {
	return Snapshot{
		ID:           j.id,
		State:        j.state,
		IsLoading:    j.state == StateRunning,
		HasFailed:    j.state == StateFailed,
		HasFinished:  j.state == StateFinished,
		Lines:        j.linesLocked(),
		ErrorText:    j.errText.String(),
		Elapsed:      j.timer.Elapsed(),
		OutputPath:   j.file.Path(),
		OutputExists: j.file.Exists(),
		OutputSize:   j.file.Size(),
	}
}

func (j *Job) notifyLocked() {
	if len(j.subs) == 0 {
		return
	}
	snap := j.snapshotLocked()
	for _, ch := range j.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func splitLines(chunk string) []string {
	var out []string
	for _, text := range strings.Split(strings.TrimSpace(chunk), "\n") {
		text = strings.TrimRight(text, "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

func drain(proc transform.Process) {
	for range proc.Events() {
	}
}
