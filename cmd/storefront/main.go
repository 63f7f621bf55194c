// ストアフロントゲートウェイのエントリポイント。
// ブラウザのセッションCookieをBearerトークンに載せ替えてコマースバックエンドへ転送し、
// 注文作成から決済、配送完了までの流れを中継する。
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nao1215/storefront/internal/config"
	"github.com/nao1215/storefront/internal/gateway"
	"github.com/nao1215/storefront/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "YAML設定ファイルのパス")
	envFile := flag.String("env-file", ".env", "読み込む.envファイルのパス")
	flag.Parse()

	// .envはローカル開発用。無ければ環境変数だけで動かす
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf(".envファイルの読み込みに失敗: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger := logging.Init(logging.Options{
		Component:  cfg.App.Name,
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	gin.SetMode(cfg.App.Mode)

	server, err := gateway.NewServer(cfg)
	if err != nil {
		logger.Error("ゲートウェイの初期化に失敗", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Error("ゲートウェイが異常終了しました", "error", err)
		os.Exit(1)
	}
}
