package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optimaizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func serveFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.IntP("port", "p", 0, "")
	flags.String("cors-origin", "", "")
	flags.String("environment", "", "")
	flags.String("db-path", "", "")
	flags.String("env-file", "", "")
	flags.String("log-level", "", "")
	flags.String("log-format", "", "")
	return flags
}

func TestOverridesEmptyWithoutFileOrFlags(t *testing.T) {
	s := newSettings()
	ov := s.overrides(serveFlagSet())

	assert.Nil(t, ov.Port)
	assert.Nil(t, ov.CORSOrigin)
	assert.Nil(t, ov.Environment)
	assert.Nil(t, ov.DBPath)
	assert.Nil(t, ov.EnvPath)
	assert.Nil(t, ov.LogLevel)
	assert.Nil(t, ov.LogFormat)
}

func TestOverridesFromFlags(t *testing.T) {
	s := newSettings()
	flags := serveFlagSet()
	require.NoError(t, flags.Set("port", "9191"))
	require.NoError(t, flags.Set("db-path", "/var/lib/optimaizer"))
	require.NoError(t, flags.Set("log-level", "debug"))

	ov := s.overrides(flags)

	require.NotNil(t, ov.Port)
	assert.Equal(t, 9191, *ov.Port)
	require.NotNil(t, ov.DBPath)
	assert.Equal(t, "/var/lib/optimaizer", *ov.DBPath)
	require.NotNil(t, ov.LogLevel)
	assert.Equal(t, "debug", *ov.LogLevel)
	assert.Nil(t, ov.CORSOrigin)
}

func TestOverridesFromSettingsFile(t *testing.T) {
	path := writeSettingsFile(t, "port: 7070\ncors_origin: https://app.example.com\nlog_format: json\n")
	s := newSettings()
	require.NoError(t, s.load(path))

	ov := s.overrides(serveFlagSet())

	require.NotNil(t, ov.Port)
	assert.Equal(t, 7070, *ov.Port)
	require.NotNil(t, ov.CORSOrigin)
	assert.Equal(t, "https://app.example.com", *ov.CORSOrigin)
	require.NotNil(t, ov.LogFormat)
	assert.Equal(t, "json", *ov.LogFormat)
	assert.Nil(t, ov.DBPath, "keys absent from the file stay unset")
}

func TestOverridesFlagBeatsSettingsFile(t *testing.T) {
	path := writeSettingsFile(t, "port: 7070\n")
	s := newSettings()
	require.NoError(t, s.load(path))

	flags := serveFlagSet()
	require.NoError(t, flags.Set("port", "9191"))

	ov := s.overrides(flags)
	require.NotNil(t, ov.Port)
	assert.Equal(t, 9191, *ov.Port)
}

func TestOverridesThroughServeCommand(t *testing.T) {
	s := newSettings()
	cmd := newServeCommand(s)
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9292", "--environment", "production"}))

	ov := s.overrides(cmd.Flags())

	require.NotNil(t, ov.Port)
	assert.Equal(t, 9292, *ov.Port)
	require.NotNil(t, ov.Environment)
	assert.Equal(t, "production", *ov.Environment)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	s := newSettings()
	err := s.load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadSearchPathMissingTolerated(t *testing.T) {
	s := newSettings()
	assert.NoError(t, s.load(""))
}
