// Package config はゲートウェイの設定を読み込む。
// 既定値、YAMLファイル、環境変数の順に上書きする。
// 環境変数は STOREFRONT_ を接頭辞とし、階層は __ で区切る
// （例: STOREFRONT_BACKEND__BASE_URL）。
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix は設定を上書きする環境変数の接頭辞。
const EnvPrefix = "STOREFRONT_"

// Config はゲートウェイ全体の設定。
type Config struct {
	App struct {
		// Name はログに付与するコンポーネント名。
		Name string `koanf:"name"`
		// HTTPAddr はHTTPサーバーの待ち受けアドレス。
		HTTPAddr string `koanf:"http_addr"`
		// Mode はginの動作モード（debug, release, test）。
		Mode string `koanf:"mode"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Log struct {
		Level      string `koanf:"level"`
		File       string `koanf:"file"`
		MaxSizeMB  int    `koanf:"max_size_mb"`
		MaxBackups int    `koanf:"max_backups"`
		MaxAgeDays int    `koanf:"max_age_days"`
	} `koanf:"log"`

	Backend struct {
		// BaseURL はコマースバックエンドAPIのベースURL。
		BaseURL string `koanf:"base_url"`
		// Timeout はバックエンド呼び出し1回あたりのタイムアウト。
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"backend"`

	Public struct {
		// Origin はブラウザから見たストアフロントのオリジン。決済コールバックURLの組み立てに使う。
		Origin string `koanf:"origin"`
		// AllowedOrigins はCORSで許可するオリジン。空の場合は Origin のみ。
		AllowedOrigins []string `koanf:"allowed_origins"`
	} `koanf:"public"`

	Session struct {
		CookieName string        `koanf:"cookie_name"`
		TTL        time.Duration `koanf:"ttl"`
		Secure     bool          `koanf:"secure"`
	} `koanf:"session"`

	Payment struct {
		// CallbackPath は決済完了後にブラウザが戻るパス。
		CallbackPath string `koanf:"callback_path"`
	} `koanf:"payment"`
}

// Default は既定値を設定したConfigを返す。
func Default() Config {
	var c Config
	c.App.Name = "storefront"
	c.App.HTTPAddr = ":8080"
	c.App.Mode = "release"
	c.HTTP.ReadTimeout = 15 * time.Second
	c.HTTP.WriteTimeout = 45 * time.Second
	c.HTTP.IdleTimeout = 60 * time.Second
	c.HTTP.ShutdownTimeout = 10 * time.Second
	c.Log.Level = "info"
	c.Backend.Timeout = 30 * time.Second
	c.Session.CookieName = "jwt"
	c.Session.TTL = 7 * 24 * time.Hour
	c.Session.Secure = true
	c.Payment.CallbackPath = "/order/confirm"
	return c
}

// Load は設定を読み込んで検証する。
// path が空でなければYAMLファイルを読み込む。ファイルが存在しない場合はエラーになる。
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("設定ファイルが見つかりません: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("設定の変換に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c Config) Validate() error {
	var errs []error
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr は必須です"))
	}
	if err := requireAbsoluteURL("backend.base_url", c.Backend.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := requireAbsoluteURL("public.origin", c.Public.Origin); err != nil {
		errs = append(errs, err)
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name は必須です"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl は正の値である必要があります"))
	}
	if !strings.HasPrefix(c.Payment.CallbackPath, "/") {
		errs = append(errs, errors.New("payment.callback_path は / で始まる必要があります"))
	}
	return errors.Join(errs...)
}

// CallbackURL は決済ゲートウェイがブラウザを戻す絶対URLを返す。
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.Public.Origin, "/") + c.Payment.CallbackPath
}

// CORSOrigins はCORSで許可するオリジンの一覧を返す。
func (c Config) CORSOrigins() []string {
	if len(c.Public.AllowedOrigins) > 0 {
		return c.Public.AllowedOrigins
	}
	return []string{strings.TrimRight(c.Public.Origin, "/")}
}

func requireAbsoluteURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s は必須です", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s は絶対URLである必要があります: %q", key, raw)
	}
	return nil
}
