package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botforge/forge3d/internal/config"
)

func TestInitCommand(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("FORGE3D_HOME", filepath.Join(tempDir, "base"))
	t.Setenv("FORGE3D_STORAGE_OUTPUT_DIR", filepath.Join(tempDir, "out"))
	t.Setenv("FORGE3D_SERVER_PORT", "9100")
	require.NoError(t, config.Initialize(""))

	configPath := filepath.Join(tempDir, "conf", "config.yaml")

	run := func(force bool) string {
		var buf bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&buf)
		require.NoError(t, runInit(cmd, configPath, force))
		return buf.String()
	}

	t.Run("basic init", func(t *testing.T) {
		out := run(false)

		assert.DirExists(t, filepath.Join(tempDir, "base"))
		assert.DirExists(t, filepath.Join(tempDir, "base", "daemon"))
		assert.DirExists(t, filepath.Join(tempDir, "out"))
		assert.Contains(t, out, "Wrote configuration: "+configPath)

		data, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "9100")
		assert.Contains(t, string(data), "cors_origins")
	})

	t.Run("existing config kept", func(t *testing.T) {
		require.NoError(t, os.WriteFile(configPath, []byte("server:\n  port: 8200\n"), 0644))

		out := run(false)
		assert.Contains(t, out, "Configuration already exists")

		data, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Equal(t, "server:\n  port: 8200\n", string(data))
	})

	t.Run("force config overwrite", func(t *testing.T) {
		run(true)

		data, err := os.ReadFile(configPath)
		require.NoError(t, err)
		assert.Contains(t, string(data), "9100")
	})

	t.Run("written config loads back", func(t *testing.T) {
		t.Setenv("FORGE3D_SERVER_PORT", "")
		require.NoError(t, config.Initialize(configPath))
		assert.Equal(t, 9100, config.Get().Server.Port)
	})
}
