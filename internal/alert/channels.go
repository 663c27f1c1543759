package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// Channel delivers fired alert events to an external destination. A failing
// channel is logged and isolated — it never blocks other channels or the
// next rule evaluation.
type Channel interface {
	Name() string
	Send(ctx context.Context, event model.AlertEvent) error
}

// httpChannel is the shared POST machinery behind the webhook-style channels.
type httpChannel struct {
	name   string
	url    string
	client *http.Client
}

func newHTTPChannel(name, url string) httpChannel {
	return httpChannel{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c httpChannel) Name() string { return c.name }

func (c httpChannel) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("alert: marshal %s payload: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert: build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert: send to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert: %s returned status %d", c.name, resp.StatusCode)
	}
	return nil
}

// WebhookChannel POSTs the event as a flat JSON document to a generic
// webhook endpoint.
type WebhookChannel struct{ httpChannel }

// NewWebhookChannel creates a generic webhook channel.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{newHTTPChannel("webhook", url)}
}

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, e model.AlertEvent) error {
	return c.post(ctx, map[string]any{
		"rule":      e.RuleID,
		"severity":  e.Severity,
		"message":   e.Message,
		"metric":    e.MetricName,
		"value":     e.MetricValue,
		"threshold": e.Threshold,
		"module":    e.Module,
		"timestamp": e.FiredAt.Unix(),
	})
}

// SlackChannel formats events as Slack attachment messages.
type SlackChannel struct{ httpChannel }

// NewSlackChannel creates a Slack incoming-webhook channel.
func NewSlackChannel(url string) *SlackChannel {
	return &SlackChannel{newHTTPChannel("slack", url)}
}

// Send implements Channel.
func (c *SlackChannel) Send(ctx context.Context, e model.AlertEvent) error {
	color := "#36a64f"
	switch e.Severity {
	case model.SeverityWarning:
		color = "#ffcc00"
	case model.SeverityCritical:
		color = "#ff0000"
	}
	return c.post(ctx, map[string]any{
		"text": fmt.Sprintf("*%s: %s*", e.Severity, e.RuleID),
		"attachments": []map[string]any{{
			"color": color,
			"fields": []map[string]any{
				{"title": "Message", "value": e.Message, "short": false},
				{"title": "Metric", "value": fmt.Sprintf("%s: %.2f", e.MetricName, e.MetricValue), "short": true},
				{"title": "Threshold", "value": fmt.Sprintf("%.2f", e.Threshold), "short": true},
			},
		}},
	})
}

// TeamsChannel formats events as MessageCard documents.
type TeamsChannel struct{ httpChannel }

// NewTeamsChannel creates a Microsoft Teams webhook channel.
func NewTeamsChannel(url string) *TeamsChannel {
	return &TeamsChannel{newHTTPChannel("teams", url)}
}

// Send implements Channel.
func (c *TeamsChannel) Send(ctx context.Context, e model.AlertEvent) error {
	theme := "00FF00"
	switch e.Severity {
	case model.SeverityWarning:
		theme = "FFFF00"
	case model.SeverityCritical:
		theme = "FF0000"
	}
	title := fmt.Sprintf("%s: %s", e.Severity, e.RuleID)
	return c.post(ctx, map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": theme,
		"summary":    title,
		"sections": []map[string]any{{
			"activityTitle":    title,
			"activitySubtitle": e.Message,
			"facts": []map[string]any{
				{"name": "Metric", "value": e.MetricName},
				{"name": "Value", "value": fmt.Sprintf("%.2f", e.MetricValue)},
				{"name": "Threshold", "value": fmt.Sprintf("%.2f", e.Threshold)},
			},
			"markdown": true,
		}},
	})
}

// AlertmanagerChannel posts events in Alertmanager's v2 label/annotation
// shape.
type AlertmanagerChannel struct{ httpChannel }

// NewAlertmanagerChannel creates an Alertmanager channel. url should point
// at the /api/v2/alerts endpoint.
func NewAlertmanagerChannel(url string) *AlertmanagerChannel {
	return &AlertmanagerChannel{newHTTPChannel("alertmanager", url)}
}

// Send implements Channel.
func (c *AlertmanagerChannel) Send(ctx context.Context, e model.AlertEvent) error {
	labels := map[string]string{
		"alertname": e.RuleID,
		"severity":  string(e.Severity),
		"service":   "pypss",
	}
	if e.Module != "" {
		labels["module"] = e.Module
	}
	return c.post(ctx, []map[string]any{{
		"labels": labels,
		"annotations": map[string]string{
			"summary":   e.Message,
			"value":     fmt.Sprintf("%.2f", e.MetricValue),
			"threshold": fmt.Sprintf("%.2f", e.Threshold),
		},
	}})
}
