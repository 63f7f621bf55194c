package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/pkg/envelope"
	"github.com/nao1215/storefront/pkg/httpclient"
	"github.com/nao1215/storefront/pkg/session"
)

// contextKeySession はgin.Contextにセッションを格納するキー。
const contextKeySession = "session"

// RequireSession はセッションCookieを必須とするGinミドルウェアを返す。
// セッションがあればトークンをリクエストのコンテキストに載せ、
// バックエンド呼び出しでBearerトークンとして送信されるようにする。
// セッションが無い場合はバックエンドに接続せず401を返す。
func RequireSession(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := store.Read(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope.Fail("ログインが必要です"))
			return
		}
		attach(c, sess)
		c.Next()
	}
}

// OptionalSession はセッションCookieがあればコンテキストに載せるGinミドルウェアを返す。
// 匿名の訪問者もそのまま通す。
func OptionalSession(store *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, ok := store.Read(c.Request); ok {
			attach(c, sess)
		}
		c.Next()
	}
}

// SessionFrom はGinコンテキストからセッションを取得する。
// RequireSession または OptionalSession が事前に適用されている必要がある。
func SessionFrom(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(contextKeySession)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*session.Session)
	return sess, ok && sess != nil
}

func attach(c *gin.Context, sess *session.Session) {
	c.Set(contextKeySession, sess)
	c.Request = c.Request.WithContext(httpclient.WithToken(c.Request.Context(), sess.Token))
}
