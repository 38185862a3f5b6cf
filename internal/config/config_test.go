package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/connect-clicker/internal/config"
)

func TestLoadInteractiveDefaults(t *testing.T) {
	v := config.NewViper(config.Interactive)
	v.Set(config.KeyStartURL, "https://example.org/people")

	cfg, err := config.Load(v, config.Interactive)
	require.NoError(t, err)
	assert.Equal(t, "Connect", cfg.ButtonLabel)
	assert.Equal(t, "Connected", cfg.ConnectedLabel)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.MinDelay)
	assert.Equal(t, 4*time.Second, cfg.MaxDelay)
	assert.Equal(t, "chromium", cfg.Channel)
	assert.Equal(t, "./user_data", cfg.UserDataDir)
	assert.Equal(t, "./logs/run.log", cfg.LogFile)
}

func TestLoadAttachDefaults(t *testing.T) {
	cfg, err := config.Load(config.NewViper(config.Attach), config.Attach)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9222", cfg.CDPURL)
	assert.Equal(t, "Send Request", cfg.SubmitLabel)
	assert.Equal(t, 8*time.Second, cfg.ModalTimeout)
	assert.Equal(t, 15*time.Second, cfg.NavTimeout)
	assert.Equal(t, 3, cfg.NavRetries)
	assert.Equal(t, 6*time.Second, cfg.PageSettle)
	assert.Equal(t, 2*time.Second, cfg.MinDelay)
	assert.Equal(t, cfg.MinDelay, cfg.MaxDelay)
	assert.Zero(t, cfg.MaxClicks)
	assert.False(t, cfg.NoAutoNextPage)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CLICKER_BUTTON_LABEL", "Follow")
	t.Setenv("CLICKER_MAX_CLICKS", "5")
	t.Setenv("CLICKER_PAGE_SETTLE_SECONDS", "1.5")

	cfg, err := config.Load(config.NewViper(config.Attach), config.Attach)
	require.NoError(t, err)
	assert.Equal(t, "Follow", cfg.ButtonLabel)
	assert.Equal(t, 5, cfg.MaxClicks)
	assert.Equal(t, 1500*time.Millisecond, cfg.PageSettle)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clicker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max-pages: 4\nurl-contains: people\n"), 0o644))

	v := config.NewViper(config.Attach)
	require.NoError(t, config.ReadFile(v, path))
	cfg, err := config.Load(v, config.Attach)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxPages)
	assert.Equal(t, "people", cfg.URLContains)

	assert.Error(t, config.ReadFile(config.NewViper(config.Attach), filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		mode config.Mode
		set  map[string]any
	}{
		{"interactive without start url", config.Interactive, nil},
		{"interactive zero timeout", config.Interactive, map[string]any{config.KeyUseOpenPage: true, config.KeyTimeout: 0}},
		{"negative delay", config.Interactive, map[string]any{config.KeyUseOpenPage: true, config.KeyMinDelay: -1}},
		{"max below min", config.Interactive, map[string]any{config.KeyUseOpenPage: true, config.KeyMinDelay: 5, config.KeyMaxDelay: 1}},
		{"unknown channel", config.Interactive, map[string]any{config.KeyUseOpenPage: true, config.KeyChannel: "firefox"}},
		{"negative max clicks", config.Attach, map[string]any{config.KeyMaxClicks: -1}},
		{"negative max pages", config.Attach, map[string]any{config.KeyMaxPages: -2}},
		{"negative modal timeout", config.Attach, map[string]any{config.KeyModalTimeout: -1}},
		{"zero navigation timeout", config.Attach, map[string]any{config.KeyNavTimeout: 0}},
		{"zero navigation retries", config.Attach, map[string]any{config.KeyNavRetries: 0}},
		{"negative page settle", config.Attach, map[string]any{config.KeyPageSettle: -0.5}},
		{"empty cdp url", config.Attach, map[string]any{config.KeyCDPURL: " "}},
		{"empty label", config.Attach, map[string]any{config.KeyButtonLabel: ""}},
		{"empty submit label", config.Attach, map[string]any{config.KeySubmitLabel: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := config.NewViper(tt.mode)
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := config.Load(v, tt.mode)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestZeroModalTimeoutAllowed(t *testing.T) {
	v := config.NewViper(config.Attach)
	v.Set(config.KeyModalTimeout, 0)
	v.Set(config.KeyPageSettle, 0)
	_, err := config.Load(v, config.Attach)
	assert.NoError(t, err)
}

func TestInOneDrive(t *testing.T) {
	assert.True(t, config.InOneDrive(`C:\Users\me\OneDrive\profile`))
	assert.False(t, config.InOneDrive("/home/me/.profile"))
}
