package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/blueprint/internal/pipeline"
	"github.com/HendryAvila/blueprint/internal/session"
)

// run executes the CLI in an isolated home and working directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("BLUEPRINT_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("BLUEPRINT_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "blueprint vdev\n", out)
}

func TestPredict_JSON(t *testing.T) {
	out, err := run(t, "predict", "create", "assessment", "module", "--format", "json", "--company", "acme")
	require.NoError(t, err)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.True(t, res.Success)
	assert.Equal(t, "acme", res.TenantID)
	require.NotNil(t, res.Prediction)
}

func TestPredict_Markdown(t *testing.T) {
	out, err := run(t, "predict", "create incident report")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# create incident report"), out)
	assert.Contains(t, out, "## Structure:")
}

func TestPredict_RequiresArgument(t *testing.T) {
	_, err := run(t, "predict")
	assert.Error(t, err)
}

func TestPatterns(t *testing.T) {
	out, err := run(t, "patterns", "--format", "json")
	require.NoError(t, err)
	var list []session.PatternSummary
	require.NoError(t, json.Unmarshal([]byte(out), &list), out)
	assert.Len(t, list, 6)

	out, err = run(t, "patterns")
	require.NoError(t, err)
	assert.Contains(t, out, "# Pattern Catalogue")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("BLUEPRINT_EMBEDDING_PROVIDER", "quantum")
	_, err := run(t, "patterns")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.provider")
}

func TestLogLevelFlag(t *testing.T) {
	_, err := run(t, "patterns", "--log-level", "loud")
	assert.Error(t, err)
}
