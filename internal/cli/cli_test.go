package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ucdpipe/internal/testutil"
)

const pipelineHCL = `
pipeline "ucd" {
  versions = ["16.0.0"]
  strict   = %s
}

source "inline" {
  backend = "memory"
  files = {
    "16.0.0" = {
      "PropertyValueAliases.txt" = "gc ; Lu ; Uppercase_Letter\n"
      "Scripts.txt"              = "0041..005A ; Latin\n"
      "Unknown.txt"              = "x ; y\n"
    }
  }
}

route "property-aliases" {
  match    = ["PropertyValueAliases.txt"]
  parser   = "semicolon"
  resolver = "aliases"

  artifact "aliases" {
    type = map(list(string))
  }
}

route "scripts" {
  match      = ["Scripts.txt"]
  parser     = "semicolon"
  resolver   = "property-ranges"
  depends_on = ["route:property-aliases"]
}
`

func writePipeline(t *testing.T, strict bool) string {
	t.Helper()
	s := "false"
	if strict {
		s = "true"
	}
	path := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(pipelineHCL, s)), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	err := Execute(context.Background(), args, out, logs)
	if os.Getenv("UCDPIPE_TEST_LOGS") == "true" {
		t.Logf("--- Log Output for %s ---\n%s", t.Name(), logs.String())
	}
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %T", err)
	return exitErr.Code
}

func TestExecute_Run(t *testing.T) {
	t.Parallel()

	t.Run("Success: lenient run prints summary", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "run", writePipeline(t, false), "--cache", "off")
		require.NoError(t, err)
		assert.Contains(t, out, "Run summary")
		assert.Contains(t, out, "no errors")
		assert.Contains(t, out, "skipped")
	})

	t.Run("Success: worker and version flags", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "run", writePipeline(t, false), "--workers", "1", "--versions", "16.0.0", "--no-cache")
		require.NoError(t, err)
		assert.Contains(t, out, "no errors")
	})

	t.Run("Failure: strict run with unmatched file exits 1", func(t *testing.T) {
		t.Parallel()
		out, err := execute(t, "run", writePipeline(t, true))
		require.Error(t, err)
		assert.Equal(t, ExitRunFailed, exitCode(t, err))
		assert.Contains(t, err.Error(), "run finished with 1 error(s)")
		assert.Contains(t, out, "no matching route for file Unknown.txt")
	})

	t.Run("Failure: bad cache spec is a usage error", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "run", writePipeline(t, false), "--cache", "redis")
		require.Error(t, err)
		assert.Equal(t, ExitUsage, exitCode(t, err))
	})

	t.Run("Failure: missing pipeline path", func(t *testing.T) {
		t.Parallel()
		_, err := execute(t, "run")
		require.Error(t, err)
		assert.Equal(t, ExitUsage, exitCode(t, err))
	})

	t.Run("Failure: invalid HCL", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "broken.hcl")
		require.NoError(t, os.WriteFile(path, []byte(`pipeline "x" {`), 0o600))
		_, err := execute(t, "run", path)
		require.Error(t, err)
		assert.Equal(t, ExitRunFailed, exitCode(t, err))
		assert.Contains(t, err.Error(), "failed to parse")
	})
}

func TestExecute_Graph(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "graph", writePipeline(t, false))
	require.NoError(t, err)
	assert.Contains(t, out, "1. property-aliases")
	assert.Contains(t, out, "2. scripts")
	assert.Contains(t, out, "layer 0")
	assert.Contains(t, out, "layer 1")
}

func TestExecute_Validate(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "validate", writePipeline(t, false))
	require.NoError(t, err)
	assert.Contains(t, out, "pipeline 'ucd' is valid: 2 route(s) in 2 layer(s)")
}

func TestExecute_Help(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "graph")
	assert.Contains(t, out, "validate")
}
