package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MappingService translates TradingView tickers to broker symbols per
// account. A missing mapping is not an error: the symbol passes through
// unchanged with multiplier 1.
type MappingService struct {
	db *gorm.DB
}

// NewMappingService creates a new mapping service
func NewMappingService(db *gorm.DB) *MappingService {
	return &MappingService{db: db}
}

// Resolve returns the broker symbol and lot multiplier for a TradingView
// ticker on the given account.
func (s *MappingService) Resolve(ctx context.Context, accountID, tvSymbol string) (string, decimal.Decimal, error) {
	var mapping models.SymbolMapping
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND tradingview_symbol = ?", accountID, tvSymbol).
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tvSymbol, decimal.NewFromInt(1), nil
	}
	if err != nil {
		return "", decimal.Decimal{}, fmt.Errorf("failed to query symbol mapping: %w", err)
	}
	return mapping.MTSymbol, mapping.LotMultiplier, nil
}

// CreateMapping adds a symbol mapping for an account.
func (s *MappingService) CreateMapping(ctx context.Context, mapping *models.SymbolMapping) error {
	if strings.TrimSpace(mapping.TradingViewSymbol) == "" || strings.TrimSpace(mapping.MTSymbol) == "" {
		return relay.Validation("tradingview_symbol and mt_symbol are required")
	}
	if mapping.LotMultiplier.IsNegative() {
		return relay.Validation("lot_multiplier must not be negative")
	}
	if mapping.LotMultiplier.IsZero() {
		mapping.LotMultiplier = decimal.NewFromInt(1)
	}
	if err := s.db.WithContext(ctx).Create(mapping).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return relay.Validation("mapping for %s already exists", mapping.TradingViewSymbol)
		}
		return fmt.Errorf("failed to create symbol mapping: %w", err)
	}
	return nil
}

// ListMappings returns all mappings for an account.
func (s *MappingService) ListMappings(ctx context.Context, accountID string) ([]models.SymbolMapping, error) {
	var mappings []models.SymbolMapping
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("tradingview_symbol ASC").Find(&mappings).Error
	return mappings, err
}

// UpdateMapping replaces the target symbol and multiplier of a mapping.
func (s *MappingService) UpdateMapping(ctx context.Context, accountID, mappingID, mtSymbol string, lotMultiplier decimal.Decimal) error {
	if lotMultiplier.IsNegative() {
		return relay.Validation("lot_multiplier must not be negative")
	}
	res := s.db.WithContext(ctx).Model(&models.SymbolMapping{}).
		Where("id = ? AND account_id = ?", mappingID, accountID).
		Updates(map[string]interface{}{"mt_symbol": mtSymbol, "lot_multiplier": lotMultiplier})
	if res.Error != nil {
		return fmt.Errorf("failed to update symbol mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return relay.NotFound("mapping not found")
	}
	return nil
}

// DeleteMapping removes a mapping.
func (s *MappingService) DeleteMapping(ctx context.Context, accountID, mappingID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND account_id = ?", mappingID, accountID).
		Delete(&models.SymbolMapping{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete symbol mapping: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return relay.NotFound("mapping not found")
	}
	return nil
}
