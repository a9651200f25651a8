package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全てのログ行にservice属性として付く。
// APIサーバー、ワーカー、CLIのログを集約先で見分けるためのもの。
const ServiceName = "moovies"

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// ログレベルは環境変数LOG_LEVELから決定する（未設定時はinfo）。
// attrsは全ての行に付く（CLIのcomponentなど）。
func Setup(w io.Writer, attrs ...slog.Attr) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
	})
	handler = handler.WithAttrs(append([]slog.Attr{slog.String("service", ServiceName)}, attrs...))
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡す。nilの場合もos.Stdout。
func SetupDefault(w io.Writer, attrs ...slog.Attr) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, attrs...))
}

// ParseLevel はdebug/info/warn/errorの文字列をslog.Levelに変換する。
// 不明な値はinfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
