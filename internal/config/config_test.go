package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/foodnudes?parseTime=true")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_PAYMENT_PROVIDER_TOKEN", "provider-token")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.VisionModel)
	assert.Equal(t, 120*time.Second, cfg.VisionTimeout)
	assert.Equal(t, 5, cfg.DefaultFreeCredits)
	assert.False(t, cfg.AllowZeroBalanceDebit)
	assert.Equal(t, 10, cfg.PromoBonusCredits)
	assert.Equal(t, "telegram", cfg.PaymentProvider)
	assert.Equal(t, ":8080", cfg.AdminListenAddr)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestLoadYooKassaProviderRequiresCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PAYMENT_PROVIDER", "yookassa")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YOOKASSA_SHOP_ID")

	t.Setenv("YOOKASSA_SHOP_ID", "shop")
	t.Setenv("YOOKASSA_SECRET_KEY", "secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "yookassa", cfg.PaymentProvider)
}

func TestLoadZeroBalanceDebitFlag(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOW_ZERO_BALANCE_DEBIT", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AllowZeroBalanceDebit)
}

func TestArchiveEnabledRequiresS3Settings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("S3_BUCKET", "meals")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_REGION")

	t.Setenv("S3_REGION", "ru-central1")
	t.Setenv("S3_ACCESS_KEY", "key")
	t.Setenv("S3_SECRET_KEY", "secret")
	t.Setenv("S3_PUBLIC_BASE_URL", "https://cdn.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.ArchiveEnabled())
	assert.Equal(t, "meals", cfg.S3Prefix)
}
