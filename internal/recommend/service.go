// Package recommend は自然言語の説明文から映画タイトルを推薦する機能を提供する。
// 推薦ロジック自体は言語モデルに委譲し、このパッケージはプロンプト構築と
// レスポンスの正規化のみを行う。
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hitoshi/moovies/internal/metrics"
	"github.com/hitoshi/moovies/internal/model"
)

// SystemPrompt は言語モデルに与えるシステムメッセージ。
const SystemPrompt = "You are a movie recommendation engine."

// Completer はチャット補完のインターフェース。
// テスタビリティのためOpenAIClientを抽象化する。
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Service はおすすめ取得のサービス層。
type Service struct {
	completer Completer
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(completer Completer, logger *slog.Logger, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{completer: completer, logger: logger, metrics: mc}
}

// Recommend は説明文に合う映画タイトルを、合致度の高い順に最大5件返す。
func (s *Service) Recommend(ctx context.Context, description string) ([]string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, model.NewDescriptionRequiredError()
	}

	content, err := s.completer.Complete(ctx, SystemPrompt, BuildPrompt(description))
	if err != nil {
		if errors.Is(err, ErrMissingAPIKey) {
			return nil, model.NewUpstreamMisconfiguredError(err.Error())
		}
		s.logger.Error("おすすめの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewRecommendFailedError(fmt.Sprintf("OpenAI request failed: %v", err), "")
	}

	titles := ExtractRecommendations(content)
	if len(titles) == 0 {
		s.logger.Warn("言語モデルの応答におすすめが含まれていませんでした",
			slog.Int("content_length", len(content)),
		)
		return nil, model.NewRecommendFailedError("OpenAI response did not contain recommendations.", content)
	}

	s.metrics.RecordRecommendations(len(titles))
	return titles, nil
}

// BuildPrompt は説明文からユーザーメッセージを組み立てる。
func BuildPrompt(description string) string {
	return "Return up to five movie titles that best match the following description, " +
		"ranked from best to least likely match. Respond with JSON in the form " +
		`{"recommendations": ["Title 1", "Title 2"]}. ` +
		`Description: "` + description + `"`
}

// ExtractRecommendations は言語モデルのJSON応答からタイトル一覧を取り出す。
// recommendations配列のうち空白以外を含む文字列だけを前後の空白を除いて残す。
// JSONとして解釈できない場合は空スライスを返す。
func ExtractRecommendations(content string) []string {
	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return []string{}
	}

	items, ok := data["recommendations"].([]any)
	if !ok {
		return []string{}
	}

	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			cleaned = append(cleaned, text)
		}
	}
	return cleaned
}
