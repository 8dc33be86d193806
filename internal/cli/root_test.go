package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInvalidConfigRejected tests that commands refuse to start with a
// configuration that fails validation instead of failing deep in the
// pipeline.
func TestInvalidConfigRejected(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  backend: faiss\n"), 0o644))

	rootCmd.SetArgs([]string{"version", "--config", path})
	defer rootCmd.SetArgs([]string{})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "index.backend")
}

// TestValidConfigAccepted tests that a well-formed config passes the
// startup validation.
func TestValidConfigAccepted(t *testing.T) {
	viper.Reset()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  threshold: 0.4\n"), 0o644))

	rootCmd.SetArgs([]string{"version", "--config", path})
	defer rootCmd.SetArgs([]string{})

	assert.NoError(t, rootCmd.Execute())
}
