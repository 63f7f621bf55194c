// Package logging はslogベースの構造化ロガーを提供する。
// 標準出力へのJSON出力に加え、ファイルパスが指定された場合は
// lumberjackでローテーションされるファイルにも書き込む。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ginKey はgin.Contextにロガーを格納するキー。
const ginKey = "logger"

// ctxKey は標準コンテキストにロガーを格納するキーの型。
type ctxKey struct{}

var (
	once sync.Once
	base *slog.Logger
)

// Options はロガーの初期化設定。
type Options struct {
	// Component はすべてのログに付与するコンポーネント名。
	Component string
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// FilePath はログファイルのパス。空の場合は標準出力のみ。
	FilePath string
	// MaxSizeMB はローテーションするファイルサイズ（MB）。
	MaxSizeMB int
	// MaxBackups は保持する古いファイル数。
	MaxBackups int
	// MaxAgeDays は古いファイルを保持する日数。
	MaxAgeDays int
}

// Init はグローバルロガーを一度だけ初期化する。
// main()で呼び出すことを想定している。
func Init(opts Options) *slog.Logger {
	once.Do(func() {
		var w io.Writer = os.Stdout
		if opts.FilePath != "" {
			_ = os.MkdirAll(filepath.Dir(opts.FilePath), 0o755)
			rot := &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    orDefault(opts.MaxSizeMB, 50),
				MaxBackups: orDefault(opts.MaxBackups, 3),
				MaxAge:     orDefault(opts.MaxAgeDays, 7),
			}
			w = io.MultiWriter(os.Stdout, rot)
		}

		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
		base = slog.New(h)
		if opts.Component != "" {
			base = base.With("component", opts.Component)
		}
		slog.SetDefault(base)
	})
	return base
}

// Base はグローバルロガーを返す。未初期化の場合は標準出力のみで初期化する。
// Init は一度しか実行されないため、初期化済みなら引数は無視される。
func Base() *slog.Logger {
	return Init(Options{Component: "storefront"})
}

// New はグローバルロガーから派生した子ロガーを返す。
// ハンドラーと出力先はグローバルロガーのものを共有する。
func New(component string) *slog.Logger {
	return Base().With("module", component)
}

// WithContext は標準コンテキストにロガーを格納する。
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext はコンテキストのロガーを返す。無ければグローバルロガーを返す。
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Base()
}

// With はgin.Contextにリクエストスコープのロガーを格納する。
// 下流のハンドラーが c.Request.Context() 経由でも取得できるよう、
// リクエストのコンテキストにも格納する。
func With(c *gin.Context, l *slog.Logger) {
	c.Set(ginKey, l)
	c.Request = c.Request.WithContext(WithContext(c.Request.Context(), l))
}

// From はgin.Contextのロガーを返す。無ければグローバルロガーを返す。
func From(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

// ParseLevel はログレベル文字列をslog.Levelに変換する。不明な値はinfoになる。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
