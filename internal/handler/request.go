package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

// loginRequest は POST /api/login のリクエストボディ。
type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

// recommendRequest は POST /api/recommend のリクエストボディ。
// 空の説明文はサービス層でDESCRIPTION_REQUIREDとして扱うため、ここでは長さのみ検証する。
type recommendRequest struct {
	Description string `json:"description" validate:"max=2000"`
}

// decodeJSON はリクエストボディをvにデコードする。
// 空のボディはエラーにせず、vをゼロ値のまま返す。
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// isFormRequest はフォーム送信（application/x-www-form-urlencoded）かどうかを判定する。
func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// firstValidationField は検証エラーの最初のフィールド名（JSON名ではなく構造体名）を返す。
func firstValidationField(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field()
	}
	return ""
}
