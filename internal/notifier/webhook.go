package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/opsgrid/opsgrid/internal/config"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
)

// webhookNotifier posts billing events as JSON to a configured endpoint.
// The notification service on the other end fans out to email and in-app
// channels.
type webhookNotifier struct {
	url    string
	client *retryablehttp.Client
	logger *logger.Logger
}

// NewNotifier returns the webhook notifier when an endpoint is configured,
// otherwise a noop notifier.
func NewNotifier(cfg *config.Configuration, log *logger.Logger) Notifier {
	if cfg.Notifications.WebhookURL == "" {
		log.Infow("no notification webhook configured, billing notifications disabled")
		return NewNoopNotifier()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = time.Duration(cfg.Notifications.TimeoutSeconds) * time.Second
	client.Logger = nil

	return &webhookNotifier{
		url:    cfg.Notifications.WebhookURL,
		client: client,
		logger: log,
	}
}

func (n *webhookNotifier) Send(ctx context.Context, event *Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to encode notification payload").
			Mark(ierr.ErrSystem)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to build notification request").
			Mark(ierr.ErrSystem)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Notification delivery failed").
			WithReportableDetails(map[string]any{
				"event_type": event.Type,
				"tenant_id":  event.TenantID,
			}).
			Mark(ierr.ErrIntegration)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return ierr.NewError(fmt.Sprintf("notification endpoint returned %d", resp.StatusCode)).
			WithHint("Notification delivery failed").
			WithReportableDetails(map[string]any{
				"event_type":  event.Type,
				"tenant_id":   event.TenantID,
				"status_code": resp.StatusCode,
			}).
			Mark(ierr.ErrIntegration)
	}

	return nil
}
