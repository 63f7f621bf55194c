package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL はセッションCookieの既定の有効期間（7日）。
// ログイン・サインアップのどちらの経路でも同じ値を使う。
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidToken はCookieに保存できないトークンが渡された場合のエラー。
	ErrInvalidToken = errors.New("セッショントークンが不正です")
	// ErrExpiredToken は既に有効期限切れのトークンが渡された場合のエラー。
	ErrExpiredToken = errors.New("セッショントークンの有効期限が切れています")
)

// Session はブラウザが保持する認証済みセッションを表す。
type Session struct {
	// Token はバックエンド呼び出し時にBearerとして提示する不透明な文字列。
	Token string
	// Expiry はセッションの失効日時。
	// 読み取り時はトークンがJWTでexpクレームを持つ場合のみ設定される。
	Expiry time.Time
}

// Config はセッションCookieの設定。
type Config struct {
	// CookieName はCookie名。空の場合は "jwt"。
	CookieName string
	// TTL は発行時点からの有効期間。0以下の場合は DefaultTTL。
	TTL time.Duration
	// Secure はCookieにSecure属性を付けるかどうか。
	Secure bool
}

// Store はセッションCookieの発行・読み取り・破棄を行う。
// レスポンス/リクエストのCookieにのみ触れ、バックエンドは呼び出さない。
type Store struct {
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(cfg Config) *Store {
	name := cfg.CookieName
	if name == "" {
		name = TokenKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cookieName: name,
		ttl:        ttl,
		secure:     cfg.Secure,
		now:        time.Now,
	}
}

// CookieName はStoreが扱うCookie名を返す。
func (s *Store) CookieName() string {
	return s.cookieName
}

// Issue はトークンをhttpOnlyのセッションCookieとしてレスポンスに設定する。
// トークンがJWTでexpがTTLより早い場合は、exp をCookieの失効日時にする。
func (s *Store) Issue(w http.ResponseWriter, token string) (*Session, error) {
	if !validTokenValue(token) {
		return nil, ErrInvalidToken
	}

	now := s.now()
	expiry := now.Add(s.ttl)
	if exp, ok := tokenExpiry(token); ok {
		if !exp.After(now) {
			return nil, ErrExpiredToken
		}
		if exp.Before(expiry) {
			expiry = exp
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiry.UTC(),
		MaxAge:   int(expiry.Sub(now).Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return &Session{Token: token, Expiry: expiry}, nil
}

// Read はリクエストのCookieからセッションを読み取る。
// Cookieが無い・値が不正・JWTの有効期限切れの場合は ok=false を返す。
// 匿名の訪問者は正常な状態なのでエラーにはしない。
func (s *Store) Read(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(s.cookieName)
	if err != nil || !validTokenValue(c.Value) {
		return nil, false
	}

	sess := &Session{Token: c.Value}
	if exp, ok := tokenExpiry(c.Value); ok {
		if !exp.After(s.now()) {
			return nil, false
		}
		sess.Expiry = exp
	}
	return sess, true
}

// Revoke は同じ名前・パスの失効済みCookieを設定し、ブラウザに破棄させる。
func (s *Store) Revoke(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenExpiry はトークンがJWTの場合にexpクレームを返す。
// 署名は検証しない。権限の判定はバックエンドが行う。
func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// validTokenValue はトークンがCookie値として安全に保存できるかを判定する。
// 空白・制御文字・引用符・区切り文字を含む値は途中で壊れるため拒否する。
func validTokenValue(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b <= 0x20 || b >= 0x7f || b == '"' || b == ';' || b == ',' || b == '\\' {
			return false
		}
	}
	return true
}

// String はログ出力用にトークンを伏せた表現を返す。
func (s *Session) String() string {
	return fmt.Sprintf("Session{expiry=%s}", s.Expiry.Format(time.RFC3339))
}
