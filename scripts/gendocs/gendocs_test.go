package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanExample(t *testing.T) {
	in := "  qmgov check -p A\n    --fail-on-exceed\n  qmgov areas"
	assert.Equal(t, "qmgov check -p A\n  --fail-on-exceed\nqmgov areas", cleanExample(in))
	assert.Equal(t, "qmgov auth", cleanExample("qmgov auth\n"))
}

func TestConfigFields(t *testing.T) {
	byName := map[string]ConfigField{}
	for _, f := range configFields() {
		byName[f.Name] = f
		assert.NotEmpty(t, f.Description, "key %s needs a description", f.Name)
		assert.NotEmpty(t, f.Category, "key %s needs a category", f.Name)
	}

	assert.NotContains(t, byName, "-")
	assert.Equal(t, "duration", byName["timeout"].Type)
	assert.Equal(t, "30s", byName["timeout"].Default)
	assert.Equal(t, "int", byName["data_governance_tp"].Type)
	assert.Empty(t, byName["data_governance_tp"].Default)
	assert.Equal(t, "Reports", byName["report_dir"].Default)
	assert.Equal(t, "--server", byName["server_url"].Flag)
}

func TestGenerateDocs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generateCLIDocs(filepath.Join(dir, "cli")))
	require.NoError(t, generateConfigDocs(dir))

	index, err := os.ReadFile(filepath.Join(dir, "cli", "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "[`check`](/cli/check)")
	assert.Contains(t, string(index), "`QMGOV_SERVER_URL`")
	assert.Contains(t, string(index), "| `4` | A governance limit is exceeded")

	check, err := os.ReadFile(filepath.Join(dir, "cli", "check.md"))
	require.NoError(t, err)
	assert.Contains(t, string(check), "`--fail-on-exceed`")

	cfg, err := os.ReadFile(filepath.Join(dir, "configuration.md"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "| `data_governance_tsuite` | int | - | - | Maximum number of test suites |")
}
