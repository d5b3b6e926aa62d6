package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, tc := range [...]struct {
		in   string
		want logiface.Level
	}{
		{`debug`, logiface.LevelDebug},
		{`INFO`, logiface.LevelInformational},
		{`informational`, logiface.LevelInformational},
		{`notice`, logiface.LevelNotice},
		{`warn`, logiface.LevelWarning},
		{`Warning`, logiface.LevelWarning},
		{`err`, logiface.LevelError},
		{`error`, logiface.LevelError},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseLevel(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	_, err := parseLevel(`loud`)
	assert.Error(t, err)
}

func newTestViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	cmd := newRootCommand(&bytes.Buffer{})
	require.NoError(t, cmd.Flags().Parse(args))
	// the command's viper is not exported, so rebind a fresh one
	v := viper.New()
	require.NoError(t, v.BindPFlags(cmd.Flags()))
	return v
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t, `--duration=1s`, `--fade=100ms`, `--channels=1`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Duration)
	assert.Equal(t, 100*time.Millisecond, cfg.Fade)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, float64(defaultFrequency), cfg.Frequency)

	for _, args := range [][]string{
		{`--duration=0s`},
		{`--duration=1s`, `--fade=600ms`},
		{`--fade=-1s`},
		{`--log-level=loud`},
		{`--config=` + filepath.Join(t.TempDir(), `missing.yaml`)},
	} {
		_, err := loadConfig(newTestViper(t, args...))
		assert.Error(t, err, args)
	}
}

func TestLoadConfig_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), `graphplay.yaml`)
	require.NoError(t, os.WriteFile(path, []byte("sample-rate: 8000\nfrequency: 220\nduration: 2s\n"), 0o644))
	cfg, err := loadConfig(newTestViper(t, `--config=`+path))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.SampleRate)
	assert.Equal(t, float64(220), cfg.Frequency)
	assert.Equal(t, 2*time.Second, cfg.Duration)
}

func TestRootCommand_headless(t *testing.T) {
	t.Setenv(`AUDIOGRAPH_SAMPLE_RATE`, `8000`)
	var logs, out bytes.Buffer
	cmd := newRootCommand(&logs)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		`--headless`,
		`--duration=100ms`,
		`--fade=20ms`,
		`--quantum=64`,
		`--parallel=2`,
		`--leak-tracking`,
		`--log-level=debug`,
	})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), `quanta=13 `)
	assert.Contains(t, out.String(), `failed=0 `)
	assert.Regexp(t, `"sample_rate":"?8000`, logs.String())
	assert.Contains(t, logs.String(), `playing`)
	assert.Contains(t, logs.String(), `graph disposed`)
	assert.NotContains(t, logs.String(), `allocation outstanding`)
}

func TestRootCommand_invalid(t *testing.T) {
	cmd := newRootCommand(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{`--headless`, `--duration=0s`})
	assert.Error(t, cmd.Execute())
}
