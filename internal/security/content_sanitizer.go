package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はTMDB由来のユーザー投稿テキスト（レビュー等）を
// プレーンテキストに正規化するインターフェース。
type ContentSanitizerService interface {
	// PlainText はHTMLタグをすべて除去し、文字参照を復元したテキストを返す。
	PlainText(raw string) string
}

// contentSanitizer はbluemondayのStrictPolicyを使用したサニタイザー。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// レビュー本文はフロントエンドでテキストとして表示されるため、タグは一切許可しない。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.StrictPolicy()
	p.SkipElementsContent("script", "style", "iframe", "object", "embed")

	return &contentSanitizer{
		policy: p,
	}
}

// PlainText はHTMLタグを除去したプレーンテキストを返す。
// bluemondayがエスケープした文字参照（&amp;等）は元の文字に戻す。
func (s *contentSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	// <br>は改行として扱う
	raw = brReplacer.Replace(raw)
	return html.UnescapeString(s.policy.Sanitize(raw))
}

var brReplacer = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "<BR>", "\n")
