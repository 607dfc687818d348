package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService owns users, accounts and both credential scopes: the
// per-user webhook secret for inbound alerts and the per-account API key
// for EA polling.
type UserService struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *UserService {
	return &UserService{db: db, cfg: cfg, log: log}
}

// generateToken returns a 64-char hex credential.
func generateToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

// HashAPIKey returns the storage form of an API key. Only the hash is
// persisted; the raw key is shown once.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// constantTimeEquals compares two credentials without a timing
// side-channel.
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Register creates a new user with a fresh webhook secret and free-tier
// limits.
func (s *UserService) Register(ctx context.Context, email, password, fullName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, relay.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return nil, relay.Validation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:            email,
		PasswordHash:     string(hash),
		FullName:         fullName,
		WebhookSecret:    generateToken(),
		IsActive:         true,
		Tier:             models.TierFree,
		MaxAccounts:      2,
		MaxSignalsPerDay: 50,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, relay.Validation("email is already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Infow("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Authenticate verifies email/password for the web API.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a comparison so unknown emails cost the same as bad
		// passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$12$000000000000000000000uGyEkpNUNXsS6n1cCk1eKR6DP9nCGS2i"), []byte(password))
		return nil, relay.Authentication()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, relay.Authentication()
	}
	if !user.IsActive {
		return nil, relay.Authentication()
	}
	return &user, nil
}

// GetUser loads a user by id.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, relay.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// GetUserByWebhookSecret authenticates an inbound webhook. The failure
// path is indistinguishable for unknown secrets and disabled users.
func (s *UserService) GetUserByWebhookSecret(ctx context.Context, secret string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("webhook_secret = ?", secret).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Equalize work between the hit and miss paths.
		constantTimeEquals(secret, strings.Repeat("0", 64))
		return nil, relay.Authentication()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if !constantTimeEquals(user.WebhookSecret, secret) || !user.IsActive {
		return nil, relay.Authentication()
	}
	return &user, nil
}

// RegenerateWebhookSecret rotates the user's webhook secret. The old
// secret stops authenticating the moment the update commits.
func (s *UserService) RegenerateWebhookSecret(ctx context.Context, userID string) (string, error) {
	secret := generateToken()
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("webhook_secret", secret)
	if res.Error != nil {
		return "", fmt.Errorf("failed to rotate webhook secret: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", relay.NotFound("user not found")
	}
	s.log.Infow("webhook secret rotated", "user_id", userID)
	return secret, nil
}

// CreateAccount registers an MT account and returns the raw API key,
// which is not recoverable afterwards.
func (s *UserService) CreateAccount(ctx context.Context, user *models.User, account *models.Account) (string, error) {
	if account.Platform != models.PlatformMT4 && account.Platform != models.PlatformMT5 {
		return "", relay.Validation("platform must be mt4 or mt5")
	}
	if strings.TrimSpace(account.Name) == "" {
		return "", relay.Validation("account name is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to count accounts: %w", err)
	}
	if int(count) >= user.MaxAccounts {
		return "", relay.TierLimit("account limit reached for tier %s (%d)", user.Tier, user.MaxAccounts)
	}

	rawKey := generateToken()
	account.UserID = user.ID
	account.APIKeyHash = HashAPIKey(rawKey)
	account.IsActive = true
	if account.MaxLotSize.IsZero() {
		account.MaxLotSize = decimal.NewFromInt(10)
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return "", fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Infow("account created", "account_id", account.ID, "user_id", user.ID, "platform", account.Platform)
	return rawKey, nil
}

// GetUserAccount loads an account and checks ownership.
func (s *UserService) GetUserAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, relay.NotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &account, nil
}

// ListUserAccounts returns all accounts owned by a user.
func (s *UserService) ListUserAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// ActiveAccounts returns the user's active accounts, the fan-out target
// set for webhooks that carry no account_id.
func (s *UserService) ActiveAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// RegenerateAPIKey rotates an account's API key atomically. The EA using
// the old key fails authentication on its next request.
func (s *UserService) RegenerateAPIKey(ctx context.Context, userID, accountID string) (string, error) {
	rawKey := generateToken()
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND user_id = ?", accountID, userID).
		Update("api_key_hash", HashAPIKey(rawKey))
	if res.Error != nil {
		return "", fmt.Errorf("failed to rotate api key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", relay.NotFound("account not found")
	}
	s.log.Infow("api key rotated", "account_id", accountID)
	return rawKey, nil
}

// GetAccountByAPIKey authenticates an EA request. Lookup is by key hash;
// the final comparison runs in constant time.
func (s *UserService) GetAccountByAPIKey(ctx context.Context, rawKey string) (*models.Account, error) {
	hash := HashAPIKey(rawKey)
	var account models.Account
	err := s.db.WithContext(ctx).Where("api_key_hash = ?", hash).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		constantTimeEquals(hash, strings.Repeat("0", 64))
		return nil, relay.Authentication()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	if !constantTimeEquals(account.APIKeyHash, hash) || !account.IsActive {
		return nil, relay.Authentication()
	}
	return &account, nil
}

// RecordAccountTelemetry stamps the balance cache from an EA request.
// The day-start balance rolls over on the first report of each UTC day
// and anchors the drawdown guard.
func (s *UserService) RecordAccountTelemetry(ctx context.Context, account *models.Account, balance, equity *decimal.Decimal) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"last_connected_at": now}

	if balance != nil {
		updates["last_balance"] = *balance
		updates["balance_updated_at"] = now
		if account.BalanceUpdatedAt == nil || account.BalanceUpdatedAt.UTC().Truncate(24*time.Hour) != now.Truncate(24*time.Hour) {
			updates["day_start_balance"] = *balance
		}
	}
	if equity != nil {
		updates["last_equity"] = *equity
	}

	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to record account telemetry: %w", err)
	}
	return nil
}

// CountSignalsToday returns how many signals the user created since UTC
// midnight, for the per-tier daily quota.
func (s *UserService) CountSignalsToday(ctx context.Context, userID string) (int64, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("user_id = ? AND created_at >= ?", userID, dayStart).
		Count(&count).Error
	return count, err
}

// UpdateAccount applies mutable account settings.
func (s *UserService) UpdateAccount(ctx context.Context, account *models.Account) error {
	return s.db.WithContext(ctx).Save(account).Error
}

// DeleteAccount removes an account and its symbol mappings. Signals are
// kept for audit.
func (s *UserService) DeleteAccount(ctx context.Context, userID, accountID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", accountID, userID).Delete(&models.Account{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return relay.NotFound("account not found")
		}
		return tx.Where("account_id = ?", accountID).Delete(&models.SymbolMapping{}).Error
	})
}
