package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/middleware"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/mtbridge/signal-bridge/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountHandler manages MT accounts and their symbol mappings.
type AccountHandler struct {
	users    *services.UserService
	mappings *services.MappingService
	log      *zap.SugaredLogger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(users *services.UserService, mappings *services.MappingService, log *zap.SugaredLogger) *AccountHandler {
	return &AccountHandler{users: users, mappings: mappings, log: log}
}

type accountRequest struct {
	Name                 string           `json:"name"`
	Broker               string           `json:"broker"`
	AccountNumber        string           `json:"account_number"`
	Platform             string           `json:"platform"`
	MaxLotSize           *decimal.Decimal `json:"max_lot_size"`
	SymbolWhitelist      *string          `json:"symbol_whitelist"`
	DrawdownLimitPercent *decimal.Decimal `json:"drawdown_limit_percent"`
	SignalTTLSeconds     *int             `json:"signal_ttl_seconds"`
	IsActive             *bool            `json:"is_active"`
}

// ListAccounts returns the user's accounts.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.users.ListUserAccounts(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.log.Errorw("failed to list accounts", "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "total": len(accounts)})
}

// CreateAccount registers an MT account. The API key appears in this
// response only.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid request body: %v", err)))
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	account := &models.Account{
		Name:          req.Name,
		Broker:        req.Broker,
		AccountNumber: req.AccountNumber,
		Platform:      req.Platform,
	}
	if req.MaxLotSize != nil {
		account.MaxLotSize = *req.MaxLotSize
	}
	if req.SymbolWhitelist != nil {
		account.SymbolWhitelist = *req.SymbolWhitelist
	}
	if req.DrawdownLimitPercent != nil {
		account.DrawdownLimitPercent = *req.DrawdownLimitPercent
	}
	if req.SignalTTLSeconds != nil {
		account.SignalTTLSeconds = *req.SignalTTLSeconds
	}

	rawKey, err := h.users.CreateAccount(c.Request.Context(), user, account)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account, "api_key": rawKey})
}

// GetAccount returns one account owned by the user.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.users.GetUserAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, account)
}

// UpdateAccount applies mutable settings and guardrails.
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	account, err := h.users.GetUserAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid request body: %v", err)))
		return
	}

	if req.Name != "" {
		account.Name = req.Name
	}
	if req.Broker != "" {
		account.Broker = req.Broker
	}
	if req.AccountNumber != "" {
		account.AccountNumber = req.AccountNumber
	}
	if req.MaxLotSize != nil {
		account.MaxLotSize = *req.MaxLotSize
	}
	if req.SymbolWhitelist != nil {
		account.SymbolWhitelist = *req.SymbolWhitelist
	}
	if req.DrawdownLimitPercent != nil {
		account.DrawdownLimitPercent = *req.DrawdownLimitPercent
	}
	if req.SignalTTLSeconds != nil {
		account.SignalTTLSeconds = *req.SignalTTLSeconds
	}
	if req.IsActive != nil {
		account.IsActive = *req.IsActive
	}

	if err := h.users.UpdateAccount(c.Request.Context(), account); err != nil {
		h.log.Errorw("failed to update account", "account_id", account.ID, "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAccount removes an account; its signals remain for audit.
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	err := h.users.DeleteAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// RegenerateAPIKey rotates the account's API key and returns the new
// raw key once. The previous key is invalid immediately.
func (h *AccountHandler) RegenerateAPIKey(c *gin.Context) {
	rawKey, err := h.users.RegenerateAPIKey(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": rawKey})
}

type mappingRequest struct {
	TradingViewSymbol string           `json:"tradingview_symbol"`
	MTSymbol          string           `json:"mt_symbol"`
	LotMultiplier     *decimal.Decimal `json:"lot_multiplier"`
}

// ListMappings returns the account's symbol mappings.
func (h *AccountHandler) ListMappings(c *gin.Context) {
	account, err := h.users.GetUserAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	mappings, err := h.mappings.ListMappings(c.Request.Context(), account.ID)
	if err != nil {
		h.log.Errorw("failed to list mappings", "account_id", account.ID, "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings, "total": len(mappings)})
}

// CreateMapping adds a symbol mapping to the account.
func (h *AccountHandler) CreateMapping(c *gin.Context) {
	account, err := h.users.GetUserAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid request body: %v", err)))
		return
	}

	mapping := &models.SymbolMapping{
		AccountID:         account.ID,
		TradingViewSymbol: req.TradingViewSymbol,
		MTSymbol:          req.MTSymbol,
	}
	if req.LotMultiplier != nil {
		mapping.LotMultiplier = *req.LotMultiplier
	}

	if err := h.mappings.CreateMapping(c.Request.Context(), mapping); err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.JSON(http.StatusCreated, mapping)
}

// UpdateMapping changes a mapping's target symbol or multiplier.
func (h *AccountHandler) UpdateMapping(c *gin.Context) {
	account, err := h.users.GetUserAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	var req mappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid request body: %v", err)))
		return
	}
	multiplier := decimal.NewFromInt(1)
	if req.LotMultiplier != nil {
		multiplier = *req.LotMultiplier
	}

	err = h.mappings.UpdateMapping(c.Request.Context(), account.ID, c.Param("mapping_id"), req.MTSymbol, multiplier)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMapping removes a mapping.
func (h *AccountHandler) DeleteMapping(c *gin.Context) {
	account, err := h.users.GetUserAccount(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	err = h.mappings.DeleteMapping(c.Request.Context(), account.ID, c.Param("mapping_id"))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.Status(http.StatusNoContent)
}
