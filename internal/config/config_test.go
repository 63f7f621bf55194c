package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeYAML はテスト用の設定ファイルを一時ディレクトリに書き出す。
func writeYAML(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
	}
	return path
}

// TestDefault は既定値を検証する。
func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Session.TTL != 7*24*time.Hour {
		t.Errorf("Session.TTL = %v, want 168h", c.Session.TTL)
	}
	if c.Session.CookieName != "jwt" {
		t.Errorf("Session.CookieName = %q, want %q", c.Session.CookieName, "jwt")
	}
	if !c.Session.Secure {
		t.Error("Session.Secure の既定値がfalseになっている")
	}
	if err := c.Validate(); err == nil {
		t.Error("URL未設定の既定値でValidate()がnilを返した")
	}
}

// TestLoad_File はYAMLファイルからの読み込みを検証する。
func TestLoad_File(t *testing.T) {
	path := writeYAML(t, `
app:
  http_addr: ":9000"
backend:
  base_url: "http://backend:5000/api/"
  timeout: 5s
public:
  origin: "https://shop.example/"
session:
  ttl: 24h
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load()でエラーが発生: %v", err)
	}
	if c.App.HTTPAddr != ":9000" {
		t.Errorf("App.HTTPAddr = %q", c.App.HTTPAddr)
	}
	if c.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v", c.Backend.Timeout)
	}
	if c.Session.TTL != 24*time.Hour {
		t.Errorf("Session.TTL = %v", c.Session.TTL)
	}
	if c.Session.CookieName != "jwt" {
		t.Errorf("ファイルに無い項目の既定値が失われた: CookieName = %q", c.Session.CookieName)
	}
	if got := c.CallbackURL(); got != "https://shop.example/order/confirm" {
		t.Errorf("CallbackURL() = %q", got)
	}
	if got := c.CORSOrigins(); len(got) != 1 || got[0] != "https://shop.example" {
		t.Errorf("CORSOrigins() = %v", got)
	}
}

// TestLoad_Env は環境変数による上書きを検証する。
func TestLoad_Env(t *testing.T) {
	path := writeYAML(t, `
backend:
  base_url: "http://backend:5000/api/"
public:
  origin: "https://shop.example"
`)
	t.Setenv("STOREFRONT_BACKEND__BASE_URL", "http://override:7000/api/")
	t.Setenv("STOREFRONT_SESSION__SECURE", "false")
	t.Setenv("STOREFRONT_PAYMENT__CALLBACK_PATH", "/checkout/return")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load()でエラーが発生: %v", err)
	}
	if c.Backend.BaseURL != "http://override:7000/api/" {
		t.Errorf("Backend.BaseURL = %q", c.Backend.BaseURL)
	}
	if c.Session.Secure {
		t.Error("Session.Secure が環境変数で上書きされていない")
	}
	if got := c.CallbackURL(); got != "https://shop.example/checkout/return" {
		t.Errorf("CallbackURL() = %q", got)
	}
}

// TestLoad_EnvOnly は設定ファイル無しで環境変数だけから読み込めることを検証する。
func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("STOREFRONT_BACKEND__BASE_URL", "http://backend:5000/api/")
	t.Setenv("STOREFRONT_PUBLIC__ORIGIN", "http://localhost:3000")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load()でエラーが発生: %v", err)
	}
	if c.Public.Origin != "http://localhost:3000" {
		t.Errorf("Public.Origin = %q", c.Public.Origin)
	}
}

// TestLoad_Errors は読み込みエラーを検証する。
func TestLoad_Errors(t *testing.T) {
	t.Run("存在しないファイルはエラーになること", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatal("Load()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("相対URLのバックエンドはエラーになること", func(t *testing.T) {
		path := writeYAML(t, `
backend:
  base_url: "/api"
public:
  origin: "https://shop.example"
`)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "backend.base_url") {
			t.Fatalf("err = %v, want backend.base_url のエラー", err)
		}
	})
}

// TestValidate はValidateが全ての問題をまとめて返すことを検証する。
func TestValidate(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Session.TTL = 0
	c.Payment.CallbackPath = "order/confirm"

	err := c.Validate()
	if err == nil {
		t.Fatal("Validate()がエラーを返すべきだが、nilが返った")
	}
	for _, key := range []string{"backend.base_url", "public.origin", "session.ttl", "payment.callback_path"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("エラーに %s が含まれていない: %v", key, err)
		}
	}
}
