package config

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	values map[string]string
	calls  []string
}

func (s *stubStore) GetParameter(_ context.Context, name string) (string, error) {
	s.calls = append(s.calls, name)
	v, ok := s.values[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("rentwatch")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, 15*time.Minute, cfg.SchedulerInitialDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.DispatchDelay)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, DefaultDistricts, cfg.Districts)
	assert.Equal(t, "0-EU-ES-46", cfg.ApifyLocationID)
	assert.Equal(t, "apify", cfg.ListingProvider)
	assert.Equal(t, time.Hour, cfg.AdminTokenTTL)
	assert.Empty(t, cfg.AdminPasswordHash)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("APP_SCHEDULER_INTERVAL", "5m")
	t.Setenv("APP_DISPATCH_DELAY", "1s")
	t.Setenv("APP_DISTRICTS", "Ruzafa, Benimaclet,Ruzafa")

	cfg, err := Load("rentwatch")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, time.Second, cfg.DispatchDelay)
	assert.Equal(t, []string{"Ruzafa", "Benimaclet"}, cfg.Districts)
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
	assert.Contains(t, err.Error(), "DISTRICTS")
	assert.Contains(t, err.Error(), "LISTING_PROVIDER")
}

func TestConfig_ResolveSecrets(t *testing.T) {
	t.Run("fetches missing secrets from the store", func(t *testing.T) {
		store := &stubStore{values: map[string]string{
			"/rentwatch/telegram": "tg-token",
			"/rentwatch/apify":    "apify-key",
		}}
		cfg := &Config{TelegramBotTokenParam: "/rentwatch/telegram", ApifyAPIKeyParam: "/rentwatch/apify"}

		require.True(t, cfg.NeedsParamStore())
		require.NoError(t, cfg.ResolveSecrets(context.Background(), store))
		assert.Equal(t, "tg-token", cfg.TelegramBotToken)
		assert.Equal(t, "apify-key", cfg.ApifyAPIKey)
	})

	t.Run("explicit value wins", func(t *testing.T) {
		store := &stubStore{}
		cfg := &Config{TelegramBotToken: "set", TelegramBotTokenParam: "/rentwatch/telegram"}

		require.False(t, cfg.NeedsParamStore())
		require.NoError(t, cfg.ResolveSecrets(context.Background(), store))
		assert.Equal(t, "set", cfg.TelegramBotToken)
		assert.Empty(t, store.calls)
	})

	t.Run("param without store fails", func(t *testing.T) {
		cfg := &Config{ApifyAPIKeyParam: "/rentwatch/apify"}
		err := cfg.ResolveSecrets(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "APIFY_API_KEY")
	})
}
