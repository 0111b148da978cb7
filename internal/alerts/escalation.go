package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/internal/models"
	"github.com/davido182/depositdigest/internal/resilience"
	"github.com/davido182/depositdigest/pkg/logger"
)

// WebhookEscalator posts critical alerts to an incoming webhook, retrying
// once through the error handler
type WebhookEscalator struct {
	url        string
	httpClient *http.Client
	handler    *resilience.ErrorHandler
	publisher  events.Publisher
	username   string
}

// NewWebhookEscalator creates a webhook escalator; publisher may be nil
func NewWebhookEscalator(url string, handler *resilience.ErrorHandler, publisher events.Publisher) *WebhookEscalator {
	return &WebhookEscalator{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		handler:   handler,
		publisher: publisher,
		username:  "DepositDigest Monitoring",
	}
}

// Escalate sends the alert and publishes alert.escalated on success
func (e *WebhookEscalator) Escalate(ctx context.Context, alert models.Alert) error {
	payload := models.EscalationPayload{
		Username: e.username,
		Embeds:   []models.EscalationEmbed{buildEmbed(alert)},
		Alert:    alert,
	}

	_, err := resilience.Retry(ctx, e.handler, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.send(ctx, payload)
	}, models.ErrorContext{
		Component: "alerts",
		Action:    "escalate",
		Metadata:  map[string]interface{}{"alert_id": alert.ID},
	}, 1)
	if err != nil {
		return err
	}

	logger.Info("Alert escalated", map[string]interface{}{
		"alert_id": alert.ID,
		"title":    alert.Title,
	})

	if e.publisher != nil {
		e.publisher.Publish(events.Event{
			Type:      events.EventAlertEscalated,
			Source:    "webhook_escalator",
			SubjectID: alert.ID,
			Severity:  string(alert.Severity),
			Data: map[string]interface{}{
				"title": alert.Title,
				"type":  string(alert.Type),
			},
		})
	}
	return nil
}

func (e *WebhookEscalator) send(ctx context.Context, payload models.EscalationPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildEmbed(alert models.Alert) models.EscalationEmbed {
	color := 15105570 // Dark Red
	if alert.Severity != models.SeverityCritical {
		color = 15844367 // Gold
	}

	fields := []models.EscalationEmbedField{
		{Name: "Type", Value: string(alert.Type), Inline: true},
		{Name: "Severity", Value: string(alert.Severity), Inline: true},
		{Name: "Alert ID", Value: alert.ID},
	}

	return models.EscalationEmbed{
		Title:       "🚨 " + alert.Title,
		Description: alert.Description,
		Color:       color,
		Fields:      fields,
		Footer:      &models.EscalationFooter{Text: "DepositDigest Monitoring"},
		Timestamp:   alert.CreatedAt.Format(time.RFC3339),
	}
}
