package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/internal/checkout"
	"github.com/nao1215/storefront/internal/logging"
	"github.com/nao1215/storefront/pkg/envelope"
	"github.com/nao1215/storefront/pkg/httpclient"
)

const (
	msgUnauthenticated = "ログインが必要です"
	msgProtocol        = "バックエンドから想定外の応答がありました"
	msgTransport       = "バックエンドに接続できませんでした"
	msgInternal        = "内部サーバーエラーが発生しました"
)

// statusOf はエラーをHTTPステータスとブラウザ向けメッセージに変換する。
//
//	ValidationError    → 400
//	ErrUnauthenticated → 401
//	UpstreamError      → バックエンドのステータス（400未満は400）
//	ProtocolError      → 500
//	TransportError     → 500
func statusOf(err error) (int, string) {
	var (
		validation *checkout.ValidationError
		upstream   *httpclient.UpstreamError
		protocol   *httpclient.ProtocolError
		transport  *httpclient.TransportError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Field + ": " + validation.Message
	case errors.Is(err, httpclient.ErrUnauthenticated):
		return http.StatusUnauthorized, msgUnauthenticated
	case errors.As(err, &upstream):
		status := upstream.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		return status, upstream.Message
	case errors.As(err, &protocol):
		return http.StatusInternalServerError, msgProtocol
	case errors.As(err, &transport):
		return http.StatusInternalServerError, msgTransport
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// respondError はエラーをエンベロープ形式で返す。
// 5xxはエラー、それ以外は警告としてログに残す。
func respondError(c *gin.Context, err error) {
	status, msg := statusOf(err)
	l := logging.From(c)
	if status >= http.StatusInternalServerError {
		l.Error("リクエストの処理に失敗しました", "status", status, "error", err)
	} else {
		l.Warn("リクエストが拒否されました", "status", status, "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, envelope.Fail(msg))
}

// respondData はペイロードを成功エンベロープで返す。
func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope.Wrap(data))
}

// bindError はShouldBindJSONのエラーを入力エラーに変換する。
// bindingタグの違反はフィールド名付き、それ以外はボディ不正として扱う。
func bindError(err error) error {
	var ve *checkout.ValidationError
	if errors.As(checkout.AsValidationError(err), &ve) {
		return ve
	}
	return invalidBody()
}

// invalidBody はリクエストボディのJSONが読めない場合のエラーを返す。
func invalidBody() error {
	return &checkout.ValidationError{Field: "body", Message: "リクエストボディのJSONが不正です"}
}
