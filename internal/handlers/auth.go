package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/middleware"
	"github.com/mtbridge/signal-bridge/internal/relay"
	"github.com/mtbridge/signal-bridge/internal/services"
	"go.uber.org/zap"
)

// AuthHandler serves registration, login and webhook secret rotation.
type AuthHandler struct {
	users *services.UserService
	cfg   *config.Config
	log   *zap.SugaredLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users *services.UserService, cfg *config.Config, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{users: users, cfg: cfg, log: log}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a user account. The webhook secret is included in
// the response so the user can configure TradingView immediately.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid request body: %v", err)))
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":           user,
		"webhook_secret": user.WebhookSecret,
	})
}

// Login verifies credentials and issues a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, relay.Body(relay.Validation("invalid request body: %v", err)))
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}

	token, err := middleware.IssueToken(&h.cfg.Auth, user.ID)
	if err != nil {
		h.log.Errorw("failed to issue token", "user_id", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, relay.Body(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer", "user": user})
}

// Me returns the authenticated user's profile, including the current
// webhook secret.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "webhook_secret": user.WebhookSecret})
}

// RegenerateWebhookSecret rotates the user's webhook secret. Alerts
// signed with the old secret fail from this point on.
func (h *AuthHandler) RegenerateWebhookSecret(c *gin.Context) {
	secret, err := h.users.RegenerateWebhookSecret(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.JSON(relay.HTTPStatus(err), relay.Body(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhook_secret": secret})
}
