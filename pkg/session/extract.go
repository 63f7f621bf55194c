package session

import (
	"net/http"
	"strings"
)

// TokenKey はバックエンドがセッショントークンを格納するCookie属性のキー。
const TokenKey = "jwt"

// ExtractToken はセッション設定ヘッダーの文字列から jwt キーの値を取り出す。
// 属性は ";" 区切り。複数のSet-Cookie行が "," で折り畳まれている場合も
// 先頭セグメントに限らず全体から探す。キーの比較は大文字小文字を区別する。
// 見つからない場合や値が空の場合は ok=false を返す。
func ExtractToken(header string) (token string, ok bool) {
	for _, segment := range strings.FieldsFunc(header, isAttributeSeparator) {
		key, value, found := strings.Cut(strings.TrimSpace(segment), "=")
		if !found || strings.TrimSpace(key) != TokenKey {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if value == "" {
			continue
		}
		return value, true
	}
	return "", false
}

// ExtractTokenFromHeader はレスポンスヘッダーの全Set-Cookie行を順に走査し、
// 最初に見つかった jwt の値を返す。
func ExtractTokenFromHeader(h http.Header) (token string, ok bool) {
	for _, line := range h.Values("Set-Cookie") {
		if token, ok := ExtractToken(line); ok {
			return token, true
		}
	}
	return "", false
}

// isAttributeSeparator はCookie属性の区切り文字かどうかを判定する。
// Cookie値に "," は含まれないため、折り畳まれたヘッダーの区切りとして扱える。
func isAttributeSeparator(r rune) bool {
	return r == ';' || r == ','
}
