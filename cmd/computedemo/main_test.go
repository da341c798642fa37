package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newViper(), "", nil)
	require.NoError(t, err)

	want := defaultDemoConfig()
	assert.Equal(t, want.Backend, cfg.Backend)
	assert.Equal(t, want.Goroutines, cfg.Goroutines)
	assert.Equal(t, want.Runtime, cfg.Runtime)
}

func TestLoadConfigFileEnvAndFlags(t *testing.T) {
	file := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
goroutines: 3
dispatches: 7
runtime:
  cmd_submit_frequency: 4
  wait_timeout: 2s
  command_pool:
    batch_size: 2
`), 0o600))

	t.Setenv("COMPUTE_DISPATCHES", "9")

	cmd := newRunCmd(new(string))
	require.NoError(t, cmd.Flags().Parse([]string{"--submit-frequency", "5", "--log-level", "debug"}))

	cfg, err := loadConfig(newViper(), file, cmd.Flags())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Goroutines, "from file")
	assert.Equal(t, 9, cfg.Dispatches, "env beats file")
	assert.Equal(t, uint32(5), cfg.Runtime.CmdSubmitFrequency, "flag beats file")
	assert.Equal(t, 2*time.Second, cfg.Runtime.WaitTimeout)
	assert.Equal(t, 2, cfg.Runtime.CommandPool.BatchSize)
	assert.Equal(t, 32, cfg.Runtime.CommandPool.InitialSize, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"backend", "backend: metal"},
		{"goroutines", "goroutines: 0"},
		{"runtime", "runtime:\n  cmd_submit_frequency: 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(file, []byte(tt.yaml), 0o600))
			_, err := loadConfig(newViper(), file, nil)
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(newViper(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestWriteSettings(t *testing.T) {
	v := newViper()
	_, err := loadConfig(v, "", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSettings(&buf, v))
	out := buf.String()
	assert.Contains(t, out, "backend = noop\n")
	assert.Contains(t, out, "runtime.cmd_submit_frequency = 16\n")
	assert.Less(t, strings.Index(out, "backend"), strings.Index(out, "runtime."), "keys are sorted")
}

func TestRunNoop(t *testing.T) {
	cfg := defaultDemoConfig()
	cfg.Goroutines = 4
	cfg.Dispatches = 10
	cfg.Elements = 256
	cfg.Runtime.CmdSubmitFrequency = 3
	cfg.Verify = true
	cfg.Profile = true
	cfg.LogLevel = "error"

	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), &buf, cfg))

	out := buf.String()
	assert.Contains(t, out, "dispatches          40\n")
	assert.Contains(t, out, "profiling: timestamps not supported")
	assert.Contains(t, out, "verify: skipped")
}

func TestRunCommand(t *testing.T) {
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"run", "--goroutines", "2", "--dispatches", "3", "--elements", "64", "--log-level", "error"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "dispatches          6\n")
}

func TestRunNoopCanceled(t *testing.T) {
	cfg := defaultDemoConfig()
	cfg.Goroutines = 2
	cfg.Dispatches = 5
	cfg.LogLevel = "error"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, &bytes.Buffer{}, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}
