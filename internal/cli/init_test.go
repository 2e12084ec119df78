package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/forgellm/forge/internal/config"
	"github.com/forgellm/forge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_NonInteractiveDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(InitOptions{Dir: dir, NonInteractive: true}))

	cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "models", "cpt"), cfg.SessionsDir)
	assert.Equal(t, []string{"python", "-m", "mlx_lm", "lora"}, cfg.Trainer.Command)
	assert.Equal(t, []string{"--config", "{config}"}, cfg.Trainer.Args)
}

func TestInit_Flags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(InitOptions{
		Dir:            dir,
		SessionsDir:    "runs",
		Command:        "  python3   -m mlx_lm lora ",
		NonInteractive: true,
	}))

	cfg, err := config.Load(filepath.Join(dir, config.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "runs"), cfg.SessionsDir)
	assert.Equal(t, []string{"python3", "-m", "mlx_lm", "lora"}, cfg.Trainer.Command)
}

func TestInit_ExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("sessions_dir: keep\n"), 0o644))

	err := Init(InitOptions{Dir: dir, NonInteractive: true})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sessions_dir: keep\n", string(data))
}

func TestInit_Overwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("sessions_dir: old\n"), 0o644))

	require.NoError(t, Init(InitOptions{Dir: dir, SessionsDir: "fresh", Overwrite: true, NonInteractive: true}))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fresh"), cfg.SessionsDir)
}
