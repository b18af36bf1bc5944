// AngelaMos | 2026
// client.go

package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
)

const maxResponseBytes = 256 * 1024

var ErrEmptyInterpretation = errors.New("model returned no interpretation")

type Interpreter interface {
	Interpret(ctx context.Context, dreamText string) (string, error)
}

// Client calls a hosted model endpoint that accepts
// {"model","dream_text"} and answers {"interpretation"}.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
	model    string
}

func NewClient(cfg config.InterpretConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}
}

type interpretRequest struct {
	Model     string `json:"model,omitempty"`
	DreamText string `json:"dream_text"`
}

type interpretResponse struct {
	Interpretation string `json:"interpretation"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Interpret(ctx context.Context, dreamText string) (string, error) {
	ctx, span := core.StartSpan(ctx, "interpret.request",
		attribute.String("model", c.model),
		attribute.Int("dream_chars", len(dreamText)),
	)

	text, err := c.do(ctx, dreamText)
	core.EndSpan(span, err)
	return text, err
}

func (c *Client) do(ctx context.Context, dreamText string) (string, error) {
	body, err := json.Marshal(interpretRequest{Model: c.model, DreamText: dreamText})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out interpretResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("%w: model endpoint returned %d: %s",
			core.ErrUnavailable, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	if out.Interpretation == "" {
		return "", ErrEmptyInterpretation
	}

	return out.Interpretation, nil
}
