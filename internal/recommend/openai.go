package recommend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/moovies/internal/metrics"
)

const (
	// DefaultBaseURL はOpenAI APIのベースURL。
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel はおすすめ生成に使うモデル。
	DefaultModel = "gpt-4o-mini"

	maxResponseSize = 1 << 20
)

// ErrMissingAPIKey はOpenAI APIキーが未設定であることを表す。
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set. Export it before starting the server.")

// OpenAIConfig はOpenAIClientの設定。
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// APIError はOpenAIが200以外を返したことを表す。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("Error code: %d", e.StatusCode)
	}
	return fmt.Sprintf("Error code: %d - %s", e.StatusCode, e.Message)
}

// OpenAIClient はChat Completions APIのクライアント。
// JSONモードで呼び出し、返却されたメッセージ本文をそのまま返す。
type OpenAIClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector

	apiKey  string
	model   string
	baseURL string

	breaker *gobreaker.CircuitBreaker[string]
}

// NewOpenAIClient はOpenAIClientの新しいインスタンスを生成する。
func NewOpenAIClient(httpClient *http.Client, logger *slog.Logger, cfg OpenAIConfig, mc metrics.MetricsCollector) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &OpenAIClient{
		httpClient: httpClient,
		logger:     logger,
		metrics:    mc,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "openai",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			// 401/400等は設定やリクエストの問題なのでブレーカーの対象外
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("サーキットブレーカーの状態が変化しました",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// Complete はsystem/userの2メッセージでChat Completionsを呼び出し、
// 先頭の選択肢のメッセージ本文を返す。
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	start := time.Now()
	content, err := c.breaker.Execute(func() (string, error) {
		return c.complete(ctx, system, user)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.RecordUpstreamRequest(metrics.ServiceOpenAI, metrics.OutcomeCircuitOpen)
		return "", fmt.Errorf("OpenAI unavailable: %w", err)
	case err != nil:
		c.metrics.RecordUpstreamRequest(metrics.ServiceOpenAI, metrics.OutcomeError)
		c.metrics.RecordUpstreamLatency(metrics.ServiceOpenAI, time.Since(start))
		return "", err
	}
	c.metrics.RecordUpstreamRequest(metrics.ServiceOpenAI, metrics.OutcomeSuccess)
	c.metrics.RecordUpstreamLatency(metrics.ServiceOpenAI, time.Since(start))
	return content, nil
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("OpenAI APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		c.logger.Error("OpenAI APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_type", errResp.Error.Type),
		)
		return "", &APIError{StatusCode: resp.StatusCode, Message: errResp.Error.Message}
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return "", fmt.Errorf("failed to parse chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("chat response contained no choices")
	}
	return chat.Choices[0].Message.Content, nil
}
