// Package httpclient はコマースバックエンドへのHTTP転送を行うクライアントを提供する。
//
// セッショントークンをBearerとして付与し、バックエンドごとに異なる
// 成功・エラーの形を一つの契約（Response または型付きエラー）にまとめる。
// 自動リトライは行わない。
package httpclient
