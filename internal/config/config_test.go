package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "auth-token", cfg.Auth.CookieName)
	assert.Equal(t, DirectoryPostgres, cfg.Directory.Driver)
	assert.Equal(t, MailLog, cfg.Mail.Driver)
	assert.False(t, cfg.Redis.Enabled)
	assert.Contains(t, cfg.Database.URL, "postgres://passwordless:")
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", testSecret)
	t.Setenv("MAGIC_LINK_TTL", "10m")
	t.Setenv("SESSION_TTL", "3600")
	t.Setenv("DIRECTORY_DRIVER", "Redis")
	t.Setenv("MAIL_DRIVER", "amqp")
	t.Setenv("MAIL_QUEUE", "mail.links")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, DirectoryRedis, cfg.Directory.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, MailAMQP, cfg.Mail.Driver)
	assert.Equal(t, "mail.links", cfg.Mail.AMQP.Queue)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		title string
		env   map[string]string
		exp   error
	}{
		{title: "missing-secret", env: map[string]string{}, exp: ErrWeakSecret},
		{title: "short-secret", env: map[string]string{"AUTH_SIGNING_SECRET": "short"}, exp: ErrWeakSecret},
		{title: "relative-base-url", env: map[string]string{"AUTH_SIGNING_SECRET": testSecret, "APP_BASE_URL": "/app"}, exp: ErrInvalidBaseURL},
		{title: "ftp-base-url", env: map[string]string{"AUTH_SIGNING_SECRET": testSecret, "APP_BASE_URL": "ftp://example.com"}, exp: ErrInvalidBaseURL},
	}

	for _, c := range cases {
		t.Run(c.title, func(t *testing.T) {
			t.Setenv("AUTH_SIGNING_SECRET", "")
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, c.exp)
		})
	}
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("AUTH_SIGNING_SECRET", testSecret)
	t.Setenv("DIRECTORY_DRIVER", "mongo")
	_, err := Load()
	assert.ErrorContains(t, err, "DIRECTORY_DRIVER")

	t.Setenv("DIRECTORY_DRIVER", "memory")
	t.Setenv("MAIL_DRIVER", "pigeon")
	_, err = Load()
	assert.ErrorContains(t, err, "MAIL_DRIVER")
}
