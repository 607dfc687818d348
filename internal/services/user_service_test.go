package services

import (
	"context"
	"testing"
	"time"

	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestUsers(t *testing.T) *UserService {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.BcryptCost = 4 // keep test runs fast
	return NewUserService(setupTestDB(t), cfg, zap.NewNop().Sugar())
}

func registerTestUser(t *testing.T, users *UserService) *models.User {
	t.Helper()
	user, err := users.Register(context.Background(), "trader@example.com", "hunter2hunter2", "Test Trader")
	require.NoError(t, err)
	return user
}

func TestRegisterIssuesWebhookSecret(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)

	assert.Len(t, user.WebhookSecret, 64)
	assert.Equal(t, models.TierFree, user.Tier)
	assert.NotEqual(t, "hunter2hunter2", user.PasswordHash)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	users := newTestUsers(t)
	registerTestUser(t, users)

	_, err := users.Register(context.Background(), "Trader@Example.com", "hunter2hunter2", "")
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	users := newTestUsers(t)
	registerTestUser(t, users)
	ctx := context.Background()

	_, badPass := users.Authenticate(ctx, "trader@example.com", "wrong-password")
	_, unknown := users.Authenticate(ctx, "nobody@example.com", "wrong-password")

	// Wrong password and unknown email are indistinguishable.
	assert.ErrorIs(t, badPass, relay.ErrAuthentication)
	assert.ErrorIs(t, unknown, relay.ErrAuthentication)
	assert.Equal(t, badPass.Error(), unknown.Error())

	user, err := users.Authenticate(ctx, "trader@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", user.Email)
}

func TestWebhookSecretRotation(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)
	ctx := context.Background()

	old := user.WebhookSecret
	found, err := users.GetUserByWebhookSecret(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	rotated, err := users.RegenerateWebhookSecret(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old, rotated)

	_, err = users.GetUserByWebhookSecret(ctx, old)
	assert.ErrorIs(t, err, relay.ErrAuthentication)

	_, err = users.GetUserByWebhookSecret(ctx, rotated)
	assert.NoError(t, err)
}

func TestCreateAccountShowsKeyOnce(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)
	ctx := context.Background()

	account := &models.Account{Name: "Demo", Platform: models.PlatformMT5}
	rawKey, err := users.CreateAccount(ctx, user, account)
	require.NoError(t, err)

	assert.Len(t, rawKey, 64)
	assert.Equal(t, HashAPIKey(rawKey), account.APIKeyHash, "only the hash is stored")

	found, err := users.GetAccountByAPIKey(ctx, rawKey)
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = users.GetAccountByAPIKey(ctx, "not-a-key")
	assert.ErrorIs(t, err, relay.ErrAuthentication)
}

func TestCreateAccountTierLimit(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)
	ctx := context.Background()

	for i := 0; i < user.MaxAccounts; i++ {
		_, err := users.CreateAccount(ctx, user, &models.Account{Name: "Demo", Platform: models.PlatformMT4})
		require.NoError(t, err)
	}

	_, err := users.CreateAccount(ctx, user, &models.Account{Name: "One too many", Platform: models.PlatformMT4})
	assert.ErrorIs(t, err, relay.ErrTierLimitReached)
}

func TestCreateAccountValidatesPlatform(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)

	_, err := users.CreateAccount(context.Background(), user, &models.Account{Name: "Demo", Platform: "ctrader"})
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestRegenerateAPIKeyInvalidatesOldKey(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)
	ctx := context.Background()

	account := &models.Account{Name: "Demo", Platform: models.PlatformMT5}
	oldKey, err := users.CreateAccount(ctx, user, account)
	require.NoError(t, err)

	newKey, err := users.RegenerateAPIKey(ctx, user.ID, account.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)

	_, err = users.GetAccountByAPIKey(ctx, oldKey)
	assert.ErrorIs(t, err, relay.ErrAuthentication)

	found, err := users.GetAccountByAPIKey(ctx, newKey)
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
}

func TestRecordAccountTelemetry(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)
	ctx := context.Background()

	account := &models.Account{Name: "Demo", Platform: models.PlatformMT5}
	_, err := users.CreateAccount(ctx, user, account)
	require.NoError(t, err)

	balance := decimal.RequireFromString("10000")
	equity := decimal.RequireFromString("9950")
	require.NoError(t, users.RecordAccountTelemetry(ctx, account, &balance, &equity))

	stored, err := users.GetUserAccount(ctx, user.ID, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastBalance)
	assert.True(t, stored.LastBalance.Equal(balance))
	require.NotNil(t, stored.LastEquity)
	assert.True(t, stored.LastEquity.Equal(equity))
	require.NotNil(t, stored.DayStartBalance, "first report of the day anchors the drawdown guard")
	assert.True(t, stored.DayStartBalance.Equal(balance))
	assert.NotNil(t, stored.BalanceUpdatedAt)
	assert.NotNil(t, stored.LastConnectedAt)
}

func TestDeleteAccountKeepsSignals(t *testing.T) {
	users := newTestUsers(t)
	user := registerTestUser(t, users)
	ctx := context.Background()

	account := &models.Account{Name: "Demo", Platform: models.PlatformMT5}
	_, err := users.CreateAccount(ctx, user, account)
	require.NoError(t, err)

	signal := makeSignal(t, users.db, account.ID, time.Now().UTC())
	require.NoError(t, users.DeleteAccount(ctx, user.ID, account.ID))

	_, err = users.GetUserAccount(ctx, user.ID, account.ID)
	assert.ErrorIs(t, err, relay.ErrNotFound)

	var count int64
	require.NoError(t, users.db.Model(&models.Signal{}).Where("id = ?", signal.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "signal history survives account deletion")
}
