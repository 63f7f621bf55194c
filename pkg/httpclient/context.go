package httpclient

import "context"

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダーキー。
const HeaderRequestID = "X-Request-ID"

// contextKey はコンテキストキーの型。
type contextKey string

const (
	// contextKeyToken はコンテキストにセッショントークンを格納するためのキー。
	contextKeyToken contextKey = "token"
	// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
	contextKeyRequestID contextKey = "request_id"
)

// WithToken はコンテキストにセッショントークンを設定する。
// 認証必須の呼び出しでBearerトークンとして送信される。
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}

// TokenFrom はコンテキストからセッショントークンを取得する。
// 空文字列は未設定として扱う。
func TokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(contextKeyToken).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// WithRequestID はコンテキストにリクエストIDを設定する。
// バックエンドへの呼び出しに X-Request-ID として伝播される。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
