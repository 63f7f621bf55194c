package httpclient

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// excerptLimit はエラーに含める生ボディの最大バイト数。
const excerptLimit = 256

// ErrUnauthenticated は認証必須の呼び出しでセッションが無い場合のエラー。
// バックエンドには一切接続しない。
var ErrUnauthenticated = errors.New("認証が必要です")

// UpstreamError はバックエンドが到達可能で、リクエストを拒否した場合のエラー。
type UpstreamError struct {
	// StatusCode はバックエンドが返したHTTPステータスコード。
	StatusCode int
	// Message はバックエンドのerrorまたはmessageフィールドの値。空にはならない。
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("バックエンドエラー: status=%d, message=%s", e.StatusCode, e.Message)
}

// ProtocolError はバックエンドが取り決めに無い形式で応答した場合のエラー。
type ProtocolError struct {
	// StatusCode はバックエンドが返したHTTPステータスコード。
	StatusCode int
	// Reason は違反の内容。
	Reason string
	// Excerpt は生ボディの先頭部分。ログやエラーの肥大化を避けるため切り詰める。
	Excerpt string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("バックエンドのプロトコル違反: status=%d, reason=%s, body=%q", e.StatusCode, e.Reason, e.Excerpt)
}

// TransportError はバックエンドに到達できなかった場合のエラー。
type TransportError struct {
	// Method はHTTPメソッド。
	Method string
	// URL は送信先URL。
	URL string
	// Err は下位のエラー。
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("バックエンドとの通信に失敗: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// excerpt はボディを excerptLimit バイトまでに切り詰める。
// マルチバイト文字の途中では切らない。
func excerpt(body []byte) string {
	if len(body) <= excerptLimit {
		return string(body)
	}
	cut := excerptLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "...(truncated)"
}

// NewProtocolError はボディの抜粋付きでProtocolErrorを生成する。
// レスポンス自体はJSONだが必要なフィールドが欠けている場合など、
// 呼び出し元で契約違反を検出したときに使う。
func NewProtocolError(status int, reason string, body []byte) *ProtocolError {
	return &ProtocolError{StatusCode: status, Reason: reason, Excerpt: excerpt(body)}
}
