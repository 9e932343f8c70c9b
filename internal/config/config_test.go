package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:     AppConfig{Environment: "development"},
		Logger:  LoggerConfig{Level: "info"},
		Storage: StorageConfig{DataPath: "/some/path"},
		Auth:    AuthConfig{AccessTokenDuration: time.Hour},
		Library: LibraryConfig{FavoritesBatchSize: 10, ChapterWordLimit: 300},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_LibraryKnobs(t *testing.T) {
	cfg := validConfig()
	cfg.Library.FavoritesBatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Library.ChapterWordLimit = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_InMemoryAllowsEmptyPath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.DataPath = ""
	assert.Error(t, cfg.Validate())

	cfg.Storage.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	t.Setenv("FAVORITES_BATCH_SIZE", "25")
	t.Setenv("CHAPTER_WORD_LIMIT", "120")
	t.Setenv("SERVER_PORT", "9000")

	dir := t.TempDir()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := Load(fs, []string{
		"-data-path", dir,
		"-port", "7000",
		"-env-file", filepath.Join(dir, "missing.env"),
	})
	require.NoError(t, err)

	// Flag beats env.
	assert.Equal(t, "7000", cfg.Server.Port)
	// Env beats default.
	assert.Equal(t, 25, cfg.Library.FavoritesBatchSize)
	assert.Equal(t, 120, cfg.Library.ChapterWordLimit)
	assert.Equal(t, dir, cfg.Storage.DataPath)
	assert.Equal(t, filepath.Join(dir, "token.key"), cfg.Auth.TokenKeyPath)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidDuration(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	_, err := Load(fs, []string{
		"-data-path", t.TempDir(),
		"-read-timeout", "soon",
		"-env-file", "",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read timeout")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nBOOKNEST_TEST_KEY=\"quoted\"\n\nBOOKNEST_TEST_OTHER=plain\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("BOOKNEST_TEST_OTHER", "from-env")
	t.Setenv("BOOKNEST_TEST_KEY", "")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "quoted", os.Getenv("BOOKNEST_TEST_KEY"))
	// Existing env vars win over the file.
	assert.Equal(t, "from-env", os.Getenv("BOOKNEST_TEST_OTHER"))
}

func TestLoadEnvFile_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOEQUALS\n"), 0o600))
	assert.Error(t, loadEnvFile(path))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}
