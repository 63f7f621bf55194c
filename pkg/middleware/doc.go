// Package middleware はゲートウェイのHTTP APIで使用する共通ミドルウェアを提供する。
//
// セッションCookieの確認、リクエストログ、メトリクス、パニックリカバリ、
// CORS設定など、全ルートで共通して使用するミドルウェアを含む。
// エラー応答はすべて {success:false, error} のエンベロープ形式で返す。
package middleware
