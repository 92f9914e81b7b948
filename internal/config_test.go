package internal_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-game-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig_Defaults 測試配置的預設值
func TestConfig_Defaults(t *testing.T) {
	cfg, err := internal.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout.Std())
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout.Std())
	assert.Equal(t, "http://127.0.0.1:5500", cfg.Server.AllowedOrigin)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Addr())
}

// TestConfig_LoadFromFile 測試從 YAML 檔載入
func TestConfig_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
  read_timeout: 5s
  allowed_origin: "https://game.example.com"
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := internal.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Std())
	assert.Equal(t, "https://game.example.com", cfg.Server.AllowedOrigin)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 未指定的欄位保留預設值
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout.Std())
}

// TestConfig_EnvOverride 測試環境變數優先
func TestConfig_EnvOverride(t *testing.T) {
	t.Run("PORT overrides file and defaults", func(t *testing.T) {
		t.Setenv("PORT", "7000")

		cfg, err := internal.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, 7000, cfg.Server.Port)
	})

	t.Run("invalid PORT rejected", func(t *testing.T) {
		t.Setenv("PORT", "not-a-number")

		_, err := internal.LoadConfig("")
		require.Error(t, err)
	})

	t.Run("ALLOWED_ORIGIN empty means allow all", func(t *testing.T) {
		t.Setenv("ALLOWED_ORIGIN", "")

		cfg, err := internal.LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "", cfg.Server.AllowedOrigin)
	})
}

// TestConfig_MissingFile 測試配置檔不存在
func TestConfig_MissingFile(t *testing.T) {
	_, err := internal.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
