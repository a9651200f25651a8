// Package web はサーバーが配信するHTMLページシェルを埋め込む。
package web

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed pages/*.html
var pages embed.FS

// ページ名
const (
	PageLogin     = "login"
	PageApp       = "app"
	PageWatchlist = "watchlist"
)

// Page は名前に対応するページシェルのHTMLを返す。
func Page(name string) ([]byte, error) {
	body, err := fs.ReadFile(pages, "pages/"+name+".html")
	if err != nil {
		return nil, fmt.Errorf("page %q: %w", name, err)
	}
	return body, nil
}
