package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/database"
	"github.com/mtbridge/signal-bridge/internal/handlers"
	"github.com/mtbridge/signal-bridge/internal/models"
	"github.com/mtbridge/signal-bridge/internal/routes"
	"github.com/mtbridge/signal-bridge/internal/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fixture boots the full HTTP stack against a throwaway database with
// one registered user and one MT account.
type fixture struct {
	router *gin.Engine
	users  *services.UserService
	queue  *services.QueueService

	user    *models.User
	account *models.Account
	apiKey  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.InitDatabase(dsn))
	db := database.GetDB()

	cfg := config.Default()
	cfg.Auth.BcryptCost = 4
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Signals.IdempotencyWindowSeconds = 3600
	log := zap.NewNop().Sugar()

	users := services.NewUserService(db, cfg, log)
	mappings := services.NewMappingService(db)
	risk := services.NewRiskResolver(cfg)
	queue := services.NewQueueService(db, cfg, log)
	notify := services.NewNotifyService(cfg, log)
	ingest := services.NewIngestService(users, mappings, risk, queue, notify, cfg, log)

	router := gin.New()
	routes.SetupRoutes(router, cfg, &routes.Handlers{
		Webhook:  handlers.NewWebhookHandler(ingest, log),
		Delivery: handlers.NewDeliveryHandler(users, queue, notify, log),
		Signals:  handlers.NewSignalHandler(queue, log),
		Accounts: handlers.NewAccountHandler(users, mappings, log),
		Auth:     handlers.NewAuthHandler(users, cfg, log),
	})

	ctx := context.Background()
	user, err := users.Register(ctx, "trader@example.com", "hunter2hunter2", "Test Trader")
	require.NoError(t, err)
	account := &models.Account{Name: "Demo", Platform: models.PlatformMT5}
	apiKey, err := users.CreateAccount(ctx, user, account)
	require.NoError(t, err)

	return &fixture{
		router:  router,
		users:   users,
		queue:   queue,
		user:    user,
		account: account,
		apiKey:  apiKey,
	}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) postWebhook(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(http.MethodPost, "/api/v1/webhook/tradingview", body, nil)
}

func (f *fixture) alert(extra string) string {
	body := fmt.Sprintf(`{"secret":%q,"symbol":"EURUSD","action":"buy","quantity":0.1`, f.user.WebhookSecret)
	if extra != "" {
		body += "," + extra
	}
	return body + "}"
}

// login returns a bearer token for the fixture user.
func (f *fixture) login(t *testing.T) string {
	t.Helper()
	w := f.do(http.MethodPost, "/api/v1/auth/login",
		`{"email":"trader@example.com","password":"hunter2hunter2"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
