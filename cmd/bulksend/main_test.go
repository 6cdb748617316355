package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestResolve_NumbersAndSheet(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "contacts.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("phone\n9812345678\n+91 97236 25050\n919723625050\n"), 0o600))

	stdout, stderr, err := execute(t,
		"resolve",
		"--config", filepath.Join(dir, "missing.yaml"),
	)
	require.Error(t, err, "an explicit config path must exist")
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "failed to load config")

	cfgPath := filepath.Join(dir, "bulksend.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("recipients:\n  country_code: \"91\"\n  min_digits: 10\n  sheet_numeric_only: true\n"), 0o600))

	stdout, stderr, err = execute(t,
		"resolve",
		"--config", cfgPath,
		"--numbers", "9723625050, 12345",
		"--file", sheet,
	)
	require.NoError(t, err)
	assert.Equal(t, "+919723625050\n+919812345678\n", stdout)
	assert.Contains(t, stderr, "2 recipient(s)")
}

func TestResolve_NoValidNumbers(t *testing.T) {
	t.Setenv("BULKSEND_CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, stderr, err := execute(t, "resolve", "--numbers", "123,456")
	require.Error(t, err)
	assert.Contains(t, stderr, "no valid numbers found")
}

func TestLoadConfig_DefaultsWhenImplicitFileMissing(t *testing.T) {
	t.Setenv("PORT", "8081")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	assert.Error(t, err)
}
