// Package envelope はバックエンドの不揃いなレスポンスを、ブラウザへ返す
// 統一形式 {success, data|error} に正規化する。
package envelope
