// dreamjob/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"dreamjob/config"
	"dreamjob/job"
	"dreamjob/photo"
	"dreamjob/transform"

	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/afero"
)

type paramFlags map[string]string

func (p paramFlags) String() string { return fmt.Sprint(map[string]string(p)) }

func (p paramFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected NAME=value, got %q", v)
	}
	p[strings.ToUpper(k)] = val
	return nil
}

func main() {
	id := flag.String("id", "", "job id (generated when empty)")
	outDir := flag.String("out", "", "output directory (overrides OUTPUT_DIR)")
	params := paramFlags{}
	flag.Var(params, "p", "extra template value NAME=value, may be repeated")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dreamjob [-id ID] [-out DIR] [-p NAME=value] <photo>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	if *id == "" {
		*id = shortuuid.New()
	}

	runner, err := transform.NewRunner(cfg, logger)
	if err != nil {
		fatal(logger, "initialize transform runner", err)
	}

	fsys := afero.NewOsFs()
	src, err := photo.Open(fsys, flag.Arg(0), cfg.OutputDir, cfg.MaxInputSize)
	if err != nil {
		fatal(logger, "open photo", err)
	}

	j := job.New(*id, src, runner,
		job.WithFs(fsys),
		job.WithLogger(logger),
		job.WithParams(params),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updates, unsubscribe := j.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printLines(updates)
	}()

	result := j.Start(context.Background())
	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		logger.Info("interrupt received, cancelling job")
		j.Cancel()
		err = <-result
	}
	unsubscribe()
	<-printed

	if err != nil {
		var perr *job.ProcessError
		if errors.As(err, &perr) && perr.Stderr != "" {
			fmt.Fprint(os.Stderr, perr.Stderr)
		}
		fatal(logger, "job failed", err, "elapsed", j.Elapsed())
	}

	fmt.Printf("%s (%d bytes) in %s\n", j.File().Path(), j.File().Size(), j.Elapsed())
}

// printLines writes console lines as they arrive. Snapshots list lines most
// recent first, so new lines sit at the front.
func printLines(updates <-chan job.Snapshot) {
	seen := 0
	for snap := range updates {
		n := len(snap.Lines)
		for i := n - seen - 1; i >= 0; i-- {
			l := snap.Lines[i]
			if l.IsError {
				fmt.Fprintln(os.Stderr, l.Text)
			} else {
				fmt.Println(l.Text)
			}
		}
		if n > seen {
			seen = n
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func fatal(logger *slog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{"err", err}, args...)...)
	os.Exit(1)
}
