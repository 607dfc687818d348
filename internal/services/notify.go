package services

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mtbridge/signal-bridge/internal/config"
	"github.com/mtbridge/signal-bridge/internal/models"
	"go.uber.org/zap"
)

// NotifyService pushes signal lifecycle events to configured downstream
// endpoints. Delivery is fire-and-forget; a failed notification never
// affects the signal pipeline.
type NotifyService struct {
	client *resty.Client
	cfg    *config.Config
	log    *zap.SugaredLogger
}

// NewNotifyService creates a new notify service
func NewNotifyService(cfg *config.Config, log *zap.SugaredLogger) *NotifyService {
	return &NotifyService{
		client: resty.New().SetTimeout(10 * time.Second),
		cfg:    cfg,
		log:    log,
	}
}

// SignalCreated announces a newly enqueued signal to all active
// endpoints in the background.
func (s *NotifyService) SignalCreated(signal *models.Signal) {
	s.dispatch("signal.created", signal)
}

// SignalResolved announces a terminal transition.
func (s *NotifyService) SignalResolved(signal *models.Signal) {
	s.dispatch("signal.resolved", signal)
}

func (s *NotifyService) dispatch(event string, signal *models.Signal) {
	for _, endpoint := range s.cfg.Endpoints {
		if !endpoint.IsActive {
			continue
		}
		go func(ep config.EndpointConfig) {
			if err := s.send(event, signal, ep); err != nil {
				s.log.Warnw("notification failed", "endpoint", ep.Name, "type", ep.Type, "error", err)
			}
		}(endpoint)
	}
}

func (s *NotifyService) send(event string, signal *models.Signal, endpoint config.EndpointConfig) error {
	switch endpoint.Type {
	case "telegram":
		return s.sendTelegram(event, signal, endpoint)
	case "webhook":
		return s.sendWebhook(event, signal, endpoint)
	default:
		return fmt.Errorf("unsupported endpoint type: %s", endpoint.Type)
	}
}

func (s *NotifyService) sendTelegram(event string, signal *models.Signal, endpoint config.EndpointConfig) error {
	message := formatSignalMessage(event, signal)

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", endpoint.Token)
	payload := map[string]interface{}{
		"chat_id":    endpoint.ChatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("telegram API request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (s *NotifyService) sendWebhook(event string, signal *models.Signal, endpoint config.EndpointConfig) error {
	payload := map[string]interface{}{
		"event":  event,
		"signal": signal,
	}

	req := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload)
	if endpoint.Token != "" {
		req.SetHeader("Authorization", "Bearer "+endpoint.Token)
	}

	resp, err := req.Post(endpoint.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func formatSignalMessage(event string, signal *models.Signal) string {
	qty := ""
	if signal.Quantity != nil {
		qty = " " + signal.Quantity.String()
	}
	return fmt.Sprintf("[%s] %s %s%s (status: %s)", event, signal.Action, signal.Symbol, qty, signal.Status)
}
