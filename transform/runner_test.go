package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dreamjob/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testConfig(bin string) *config.Config {
	return &config.Config{
		TransformBin:  bin,
		TransformArgs: "${INPUT_PHOTO} ${OUTPUT_FILE}",
		KillGrace:     500 * time.Millisecond,
	}
}

func collect(t *testing.T, p Process) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-p.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("process did not finish in time")
		}
	}
}

func TestNewRunner(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		_, err := NewRunner(testConfig("/nonexistent/dreamtime-cli"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transform binary not found")
	})

	t.Run("invalid template", func(t *testing.T) {
		cfg := testConfig(writeScript(t, "exit 0"))
		cfg.TransformArgs = "--input photo.jpg"
		_, err := NewRunner(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid transform arguments")
	})
}

func TestRunnerSpawn(t *testing.T) {
	t.Run("successful run streams stdout then exit", func(t *testing.T) {
		bin := writeScript(t, `echo "loading model"; echo processing; printf png > "$2"`)
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)

		out := filepath.Join(t.TempDir(), "result.png")
		p, err := r.Spawn(context.Background(), Request{JobID: "42", SourcePath: "in.jpg", OutputPath: out})
		require.NoError(t, err)

		events := collect(t, p)
		require.Len(t, events, 3)
		assert.Equal(t, Stdout("loading model\n"), events[0])
		assert.Equal(t, Stdout("processing\n"), events[1])
		assert.Equal(t, EventExit, events[2].Kind)
		require.NotNil(t, events[2].Code)
		assert.Equal(t, 0, *events[2].Code)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "png", string(data))
	})

	t.Run("failing run reports stderr and exit code", func(t *testing.T) {
		bin := writeScript(t, `echo "CUDA out of memory" >&2; exit 3`)
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)

		p, err := r.Spawn(context.Background(), Request{SourcePath: "in.jpg", OutputPath: filepath.Join(t.TempDir(), "o.png")})
		require.NoError(t, err)

		events := collect(t, p)
		require.Len(t, events, 2)
		assert.Equal(t, Stderr("CUDA out of memory\n"), events[0])
		assert.Equal(t, EventExit, events[1].Kind)
		assert.Equal(t, 3, *events[1].Code)
	})

	t.Run("params fill extra placeholders", func(t *testing.T) {
		bin := writeScript(t, `echo "gpu=$3"`)
		cfg := testConfig(bin)
		cfg.TransformArgs = "${INPUT_PHOTO} ${OUTPUT_FILE} ${GPU_ID}"
		r, err := NewRunner(cfg, nil)
		require.NoError(t, err)

		_, err = r.Spawn(context.Background(), Request{SourcePath: "in.jpg", OutputPath: "o.png"})
		require.Error(t, err, "missing param is a template error")

		p, err := r.Spawn(context.Background(), Request{
			SourcePath: "in.jpg",
			OutputPath: filepath.Join(t.TempDir(), "o.png"),
			Params:     map[string]string{"GPU_ID": "1"},
		})
		require.NoError(t, err)
		events := collect(t, p)
		require.NotEmpty(t, events)
		assert.Equal(t, Stdout("gpu=1\n"), events[0])
	})

	t.Run("launch failure is a spawn error event", func(t *testing.T) {
		bin := writeScript(t, "exit 0")
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)
		require.NoError(t, os.Remove(bin))

		p, err := r.Spawn(context.Background(), Request{SourcePath: "in.jpg", OutputPath: filepath.Join(t.TempDir(), "o.png")})
		require.NoError(t, err)

		events := collect(t, p)
		require.Len(t, events, 1)
		assert.Equal(t, EventSpawnError, events[0].Kind)
		assert.Error(t, events[0].Err)
	})

	t.Run("terminate ends the process with a failure code", func(t *testing.T) {
		bin := writeScript(t, "echo started\nexec sleep 30")
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)

		p, err := r.Spawn(context.Background(), Request{SourcePath: "in.jpg", OutputPath: filepath.Join(t.TempDir(), "o.png")})
		require.NoError(t, err)

		first := <-p.Events()
		assert.Equal(t, Stdout("started\n"), first)
		require.NoError(t, p.Terminate())

		events := collect(t, p)
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, EventExit, last.Kind)
		require.NotNil(t, last.Code)
		assert.NotEqual(t, 0, *last.Code)
	})

	t.Run("terminate is not held up by a child keeping stdout open", func(t *testing.T) {
		bin := writeScript(t, "sleep 5 &\necho started\nexec sleep 30")
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)

		p, err := r.Spawn(context.Background(), Request{SourcePath: "in.jpg", OutputPath: filepath.Join(t.TempDir(), "o.png")})
		require.NoError(t, err)
		assert.Equal(t, Stdout("started\n"), <-p.Events())

		begin := time.Now()
		require.NoError(t, p.Terminate())
		events := collect(t, p)

		assert.Less(t, time.Since(begin), 3*time.Second)
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, EventExit, last.Kind)
		require.NotNil(t, last.Code)
		assert.NotEqual(t, 0, *last.Code)
	})

	t.Run("clean exit with a child keeping stdout open is a success", func(t *testing.T) {
		bin := writeScript(t, "sleep 5 &\necho done")
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)

		begin := time.Now()
		p, err := r.Spawn(context.Background(), Request{SourcePath: "in.jpg", OutputPath: filepath.Join(t.TempDir(), "o.png")})
		require.NoError(t, err)
		events := collect(t, p)

		assert.Less(t, time.Since(begin), 3*time.Second)
		require.Len(t, events, 2)
		assert.Equal(t, Stdout("done\n"), events[0])
		require.NotNil(t, events[1].Code)
		assert.Equal(t, 0, *events[1].Code)
	})

	t.Run("context cancellation terminates the process", func(t *testing.T) {
		bin := writeScript(t, "echo started\nexec sleep 30")
		r, err := NewRunner(testConfig(bin), nil)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		p, err := r.Spawn(ctx, Request{SourcePath: "in.jpg", OutputPath: filepath.Join(t.TempDir(), "o.png")})
		require.NoError(t, err)
		<-p.Events()
		cancel()

		events := collect(t, p)
		require.NotEmpty(t, events)
		assert.NotEqual(t, 0, *events[len(events)-1].Code)
	})
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "spawn_error", EventSpawnError.String())
	assert.Equal(t, "stdout", EventStdout.String())
	assert.Equal(t, "stderr", EventStderr.String())
	assert.Equal(t, "exit", EventExit.String())
}
