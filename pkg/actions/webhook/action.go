// Package webhook provides the http.webhook action: an outbound HTTP call to
// an author-supplied URL.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/helixcrm/automation/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

// Action implements http.webhook.
type Action struct {
	client *resty.Client
	logger *slog.Logger
}

// NewAction creates the http.webhook action with its own HTTP client.
func NewAction(logger *slog.Logger) *Action {
	return &Action{
		client: resty.New().SetTimeout(defaultTimeout),
		logger: logger.With("module", "webhook_action"),
	}
}

// ID returns the action name.
func (a *Action) ID() string {
	return "http.webhook"
}

// Execute performs the outbound call. Method defaults to POST; a body is
// JSON-encoded when present. The raw response status and body become the
// step output.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, input map[string]any) (map[string]any, error) {
	url, _ := input["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http.webhook requires 'url'")
	}

	method, _ := input["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	method = strings.ToUpper(method)

	request := a.client.R().SetContext(ctx)

	if headers, ok := input["headers"].(map[string]any); ok {
		for key, value := range headers {
			if text, ok := value.(string); ok {
				request.SetHeader(key, text)
			}
		}
	}

	if body, ok := input["body"]; ok && body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode webhook body: %w", err)
		}

		request.SetHeader("Content-Type", "application/json")
		request.SetBody(encoded)
	}

	a.logger.InfoContext(ctx, "Calling webhook",
		"run_id", actionCtx.RunID, "method", method, "url", url)

	response, err := request.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	var responseBody any

	raw := response.Body()
	if err := json.Unmarshal(raw, &responseBody); err != nil {
		responseBody = string(raw)
	}

	return map[string]any{
		"status": response.StatusCode(),
		"body":   responseBody,
	}, nil
}
