package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOutput(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, checkOutput(""))
	assert.NoError(t, checkOutput(filepath.Join(dir, "report.yaml")))
	assert.NoError(t, checkOutput(filepath.Join(dir, "report.json")))
	assert.Error(t, checkOutput(filepath.Join(dir, "report.txt")))

	t.Run("read only file", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root can write any file")
		}

		path := filepath.Join(dir, "readonly.yml")
		require.NoError(t, os.WriteFile(path, nil, 0444))
		assert.Error(t, checkOutput(path))
	})
}

func TestNoArgs(t *testing.T) {
	assert.NoError(t, noArgs("run")(runCmd, nil))
	assert.Error(t, noArgs("run")(runCmd, []string{"extra"}))
}
