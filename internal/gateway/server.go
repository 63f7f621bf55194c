package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/storefront/internal/checkout"
	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/internal/logging"
	"github.com/nao1215/storefront/pkg/httpclient"
	"github.com/nao1215/storefront/pkg/middleware"
	"github.com/nao1215/storefront/pkg/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// bindingOnce はginのバリデータへの独自タグ登録を一度だけ行う。
var bindingOnce sync.Once

// registerBindingValidations はShouldBindJSONの検証にcheckoutの独自タグとJSON名のフィールド名を登録する。
func registerBindingValidations() {
	bindingOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			checkout.RegisterValidations(v)
		}
	})
}

// Server はストアフロントゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はゲートウェイの設定。
	cfg config.Config
	// backend はコマースバックエンドへの転送クライアント。
	backend *httpclient.Client
	// sessions はセッションCookieの発行と読み取りを行う。
	sessions *session.Store
	// checkout は注文と決済の操作を中継する。
	checkout *checkout.Orchestrator
}

// NewServer は新しいゲートウェイサーバーを生成する。
func NewServer(cfg config.Config) (*Server, error) {
	backend, err := httpclient.New(cfg.Backend.BaseURL, httpclient.WithTimeout(cfg.Backend.Timeout))
	if err != nil {
		return nil, fmt.Errorf("バックエンドクライアントの初期化に失敗: %w", err)
	}

	orch, err := checkout.NewOrchestrator(backend, cfg.CallbackURL())
	if err != nil {
		return nil, fmt.Errorf("オーケストレータの初期化に失敗: %w", err)
	}

	sessions := session.NewStore(session.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	})

	registerBindingValidations()

	router := gin.New()
	router.Use(middleware.RequestLogger(logging.New("gateway")))
	router.Use(middleware.Recovery())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.CORSOrigins()))

	s := &Server{
		router:   router,
		cfg:      cfg,
		backend:  backend,
		sessions: sessions,
		checkout: orch,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるまで待ち受ける。
// キャンセル後は処理中のリクエストの完了を待ってから終了する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.App.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Base().Info("ゲートウェイを起動します", "addr", srv.Addr, "backend", s.cfg.Backend.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	logging.Base().Info("ゲートウェイを停止します")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証（ログイン・新規登録はセッション不要）
	auth := s.router.Group("/api/auth")
	{
		auth.POST("/login", s.handleLogin())
		auth.POST("/signup", s.handleSignup())
		auth.POST("/logout", middleware.RequireSession(s.sessions), s.handleLogout())
		auth.GET("/session", middleware.OptionalSession(s.sessions), s.handleSessionStatus())
	}

	// 注文と決済（セッション必須）
	orders := s.router.Group("/api/orders")
	orders.Use(middleware.RequireSession(s.sessions))
	{
		orders.GET("", s.handleListOrders())
		orders.POST("", s.handleCreateOrder())
		orders.POST("/pay", s.handleInitPayment())
		orders.GET("/verify-payment", s.handleVerifyPayment())
		orders.POST("/track", s.handleTrackOrder())
		orders.GET("/:id", s.handleGetOrder())
		orders.PUT("/:id/deliver", s.handleMarkDelivered())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "storefront"})
	})

	// メトリクス
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
