package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/internal/logging"
	"github.com/nao1215/storefront/pkg/envelope"
	"github.com/nao1215/storefront/pkg/httpclient"
	"github.com/nao1215/storefront/pkg/middleware"
	"github.com/nao1215/storefront/pkg/session"
	"github.com/tidwall/gjson"
)

// loginRequest はログインのリクエストボディ。
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// signupRequest は新規登録のリクエストボディ。
type signupRequest struct {
	Username string `json:"username" binding:"notblank"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// User はブラウザに返すログインユーザーの情報。
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
}

// authResponse はログイン・新規登録のレスポンス。
type authResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

// sessionStatus はセッション状態のレスポンスデータ。
type sessionStatus struct {
	Authenticated bool       `json:"authenticated"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// handleLogin はログインを処理するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err))
			return
		}

		s.authenticate(c, "users/auth", req, http.StatusOK)
	}
}

// handleSignup は新規登録を処理するハンドラを返す。
func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err))
			return
		}
		req.Username = strings.TrimSpace(req.Username)

		s.authenticate(c, "users", req, http.StatusCreated)
	}
}

// authenticate は認証系のバックエンド呼び出しを行い、成功すればセッションを発行する。
// バックエンドの応答にセッションCookieが無い場合は不正な認証応答として扱い、
// セッションは発行しない。
func (s *Server) authenticate(c *gin.Context, path string, body any, status int) {
	resp, err := s.backend.Forward(c.Request.Context(), http.MethodPost, path, body, false)
	if err != nil {
		respondError(c, err)
		return
	}

	token, ok := session.ExtractTokenFromHeader(resp.Header)
	if !ok {
		respondError(c, httpclient.NewProtocolError(resp.StatusCode, "認証レスポンスにセッショントークンがありません", resp.Body))
		return
	}

	user, ok := userFrom(resp.Body)
	if !ok {
		respondError(c, httpclient.NewProtocolError(resp.StatusCode, "認証レスポンスにユーザー情報がありません", resp.Body))
		return
	}

	sess, err := s.sessions.Issue(c.Writer, token)
	if err != nil {
		respondError(c, httpclient.NewProtocolError(resp.StatusCode, "認証レスポンスのトークンを保存できません: "+err.Error(), nil))
		return
	}

	logging.From(c).Info("セッションを発行しました", "user_id", user.ID, "expires_at", sess.Expiry)
	c.JSON(status, authResponse{Success: true, User: user})
}

// handleLogout はログアウトを処理するハンドラを返す。
// バックエンドへのログアウト通知はベストエフォートで、失敗してもCookieは必ず破棄する。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.backend.Forward(c.Request.Context(), http.MethodPost, "users/logout", nil, true); err != nil {
			logging.From(c).Warn("バックエンドへのログアウト通知に失敗しました", "error", err)
		}
		s.sessions.Revoke(c.Writer)
		c.JSON(http.StatusOK, envelope.Envelope{Success: true})
	}
}

// handleSessionStatus はバックエンドに問い合わせずにセッションの有無を返すハンドラを返す。
func (s *Server) handleSessionStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := sessionStatus{}
		if sess, ok := middleware.SessionFrom(c); ok {
			status.Authenticated = true
			if !sess.Expiry.IsZero() {
				exp := sess.Expiry.UTC()
				status.ExpiresAt = &exp
			}
		}
		respondData(c, http.StatusOK, status)
	}
}

// userFrom は認証レスポンスのボディからユーザー情報を取り出す。
// {user:{...}}、{success, data:{...}}、素のオブジェクトのいずれも受け付ける。
func userFrom(body []byte) (User, bool) {
	doc := gjson.ParseBytes(envelope.Unwrap(body))
	if u := doc.Get("user"); u.IsObject() {
		doc = u
	}
	if !doc.IsObject() {
		return User{}, false
	}

	user := User{
		ID:       firstNonEmpty(doc.Get("id").String(), doc.Get("_id").String()),
		Username: firstNonEmpty(doc.Get("username").String(), doc.Get("name").String()),
		Email:    doc.Get("email").String(),
		IsAdmin:  doc.Get("isAdmin").Bool(),
	}
	if user.ID == "" {
		return User{}, false
	}
	return user, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
