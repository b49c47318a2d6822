package transform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dreamjob/config"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Runner spawns the configured transformation executable.
type Runner struct {
	cfg    *config.Config
	args   []string
	logger *slog.Logger
}

func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if _, err := exec.LookPath(cfg.TransformBin); err != nil {
		return nil, fmt.Errorf("transform binary not found or not in PATH: %s", cfg.TransformBin)
	}

	args, err := SplitCommand(cfg.TransformArgs)
	if err != nil {
		return nil, err
	}
	if err := ValidateArgs(args); err != nil {
		return nil, fmt.Errorf("invalid transform arguments: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, args: args, logger: logger}, nil
}

// Spawn returns as soon as the process is being launched. Launch failures
// arrive as an EventSpawnError; only template errors are returned here.
func (r *Runner) Spawn(ctx context.Context, req Request) (Process, error) {
	args, err := ExpandArgs(r.args, req)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if r.cfg.ExecTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ExecTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(ctx, r.cfg.TransformBin, args...)
	if r.cfg.KillGrace > 0 {
		// Ask politely first, exec kills the process once the grace period is over.
		cmd.Cancel = func() error {
			return cmd.Process.Signal(os.Interrupt)
		}
		cmd.WaitDelay = r.cfg.KillGrace
	}

	p := &process{
		cmd:    cmd,
		cancel: cancel,
		events: make(chan Event, 64),
	}

	r.logger.Info("executing transform", "job", req.JobID, "cmd", cmd.Path+" "+strings.Join(args, " "))
	go p.run(func() error { return r.checkResources(req.OutputPath) })
	return p, nil
}

// checkResources verifies that the machine can take another run.
func (r *Runner) checkResources(outputPath string) error {
	if r.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(200*time.Millisecond, false)
		if err != nil {
			r.logger.Warn("could not get CPU usage", "err", err)
		} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], r.cfg.ThrottleCPU)
		}
	}

	if r.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			r.logger.Warn("could not get memory usage", "err", err)
		} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, r.cfg.ThrottleFreeMem)
		}
	}

	if r.cfg.ThrottleFreeDisk > 0 {
		dir := filepath.Dir(outputPath)
		d, err := disk.Usage(dir)
		if err != nil {
			r.logger.Warn("could not get disk usage", "dir", dir, "err", err)
		} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, r.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}

type process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	events chan Event
}

func (p *process) Events() <-chan Event { return p.events }

func (p *process) Terminate() error {
	p.cancel()
	return nil
}

func (p *process) run(precheck func() error) {
	defer close(p.events)
	defer p.cancel()

	if err := precheck(); err != nil {
		p.events <- SpawnError(fmt.Errorf("insufficient system resources: %w", err))
		return
	}

	// exec copies the output into these pipes; with WaitDelay set, Wait
	// stops copying once the grace period is over even if a child of the
	// tool still holds the descriptors.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	p.cmd.Stdout = stdoutW
	p.cmd.Stderr = stderrW

	if err := p.cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		p.events <- SpawnError(err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.pump(&wg, stdoutR, Stdout)
	go p.pump(&wg, stderrR, Stderr)

	waitErr := p.cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	wg.Wait()

	p.events <- Exit(exitCode(waitErr))
}

// pump forwards one stream line by line, keeping the trailing newline.
func (p *process) pump(wg *sync.WaitGroup, r io.Reader, mk func(string) Event) {
	defer wg.Done()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			p.events <- mk(line)
		}
		if err != nil {
			return
		}
	}
}

func exitCode(err error) int {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		// ErrWaitDelay: the tool exited cleanly but left its output open.
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when the process was ended by a signal.
		return exitErr.ExitCode()
	}
	return -1
}
