package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("UPAGG_POLICY_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	dataset := filepath.Join("..", "..", "testdata", "dataset.yaml")

	t.Run("full rows to stdout", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"run", "--dataset", dataset})
		require.NoError(t, cmd.Execute())

		var body struct {
			RunID   string           `json:"run_id"`
			Results []map[string]any `json:"results"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &body))
		assert.NotEmpty(t, body.RunID)
		require.NotEmpty(t, body.Results)
		assert.Contains(t, body.Results[0], "case_code")
	})

	t.Run("compact rows to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		cmd := newRootCmd()
		cmd.SetArgs([]string{"run", "--dataset", dataset, "--compact", "--output", path})
		require.NoError(t, cmd.Execute())
		assert.FileExists(t, path)
	})

	t.Run("no input configured", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"run"})
		assert.Error(t, cmd.Execute())
	})
}
