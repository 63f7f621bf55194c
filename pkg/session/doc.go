// Package session はブラウザ側に保持されるセッションCookieを扱う。
//
// バックエンドの認証レスポンスからトークンを取り出し（ExtractToken）、
// httpOnlyのCookieとして発行・読み取り・破棄する（Store）。
// ゲートウェイはセッションをサーバー側に保存しない。権限の根拠は
// トークンとバックエンドにのみ存在する。
package session
