package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ocrlabel/internal/cursor"
	"github.com/starford/ocrlabel/internal/selector"
	pkgconfig "github.com/starford/ocrlabel/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled"}
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.AuthEnabled())
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "disabled", cfg.Mode)
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.AuthEnabled())

	cfg = AuthConfig{Mode: "token"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is empty")
}

func TestAuthConfig_BasicMode(t *testing.T) {
	cfg := AuthConfig{Mode: "basic", Username: "labeler", PasswordHash: "$2a$10$abc"}
	require.NoError(t, cfg.Validate())
	opts := cfg.Options()
	assert.Equal(t, "labeler", opts.Username)
	assert.Equal(t, "basic", opts.Mode)

	for _, bad := range []AuthConfig{
		{Mode: "basic", Username: "labeler"},
		{Mode: "basic", PasswordHash: "$2a$10$abc"},
	} {
		assert.Error(t, bad.Validate(), "%+v", bad)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	assert.Error(t, cfg.Validate())
}

func TestSelectorConfig(t *testing.T) {
	cfg := SelectorConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, selector.KindSnapshot, cfg.Kind)

	cfg = SelectorConfig{Kind: "random"}
	assert.Error(t, cfg.Validate(), "unknown kind")

	cfg = SelectorConfig{Kind: selector.KindWindowed, CacheTimeout: -time.Second}
	assert.Error(t, cfg.Validate(), "negative cache timeout")
}

func TestCursorConfig(t *testing.T) {
	cfg := CursorConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cursor.OverflowClamp, cfg.Overflow)

	cfg = CursorConfig{Overflow: "bounce"}
	assert.Error(t, cfg.Validate())
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	assert.Error(t, cfg.Validate())
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, NewDefaultConfig().Validate())
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("OCRLABEL_TEST_DATA", "/srv/plates")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  http:
    port: 8081
dataset:
  data_dir: ${OCRLABEL_TEST_DATA}
  labeled_dir: /srv/plates-labeled
cursor:
  overflow: wrap
selector:
  kind: windowed
  cache_timeout: 45s
  watch_labeled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg := NewDefaultConfig()
	require.NoError(t, pkgconfig.Load(path, cfg))
	assert.Equal(t, "/srv/plates", cfg.Dataset.DataDir)
	assert.Equal(t, 8081, cfg.App.HTTP.Port)
	assert.Equal(t, "DEBUG", cfg.App.LogLevel.String())
	assert.Equal(t, cursor.OverflowWrap, cfg.Cursor.Overflow)
	assert.Equal(t, selector.KindWindowed, cfg.Selector.Kind)
	assert.Equal(t, 45*time.Second, cfg.Selector.CacheTimeout)
	assert.True(t, cfg.Selector.WatchLabeled)

	// Untouched sections keep their defaults.
	assert.Equal(t, 15, cfg.Labeling.TextMaxLen)
	assert.Equal(t, "./ocrlabel.db", cfg.Ledger.Path)
}
