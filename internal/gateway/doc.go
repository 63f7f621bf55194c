// Package gateway はストアフロントのHTTPゲートウェイを提供する。
//
// ブラウザからのリクエストを受け、セッションCookieのトークンを
// Bearerトークンに載せ替えてコマースバックエンドへ転送する。
// ゲートウェイ自身は状態を持たず、セッションはブラウザのCookieに、
// 注文と決済の状態はバックエンドにのみ存在する。
// レスポンスはすべて {success, data|error} のエンベロープ形式に正規化する。
package gateway
