package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestParseLevel はParseLevel関数を検証する。
func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: " WARN ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// TestContextLogger はコンテキスト経由のロガー受け渡しを検証する。
func TestContextLogger(t *testing.T) {
	t.Parallel()

	t.Run("格納したロガーを取得できること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := slog.New(slog.NewJSONHandler(&buf, nil))
		ctx := WithContext(context.Background(), l)

		FromContext(ctx).Info("hello")
		if !bytes.Contains(buf.Bytes(), []byte("hello")) {
			t.Errorf("格納したロガーに出力されていない: %s", buf.String())
		}
	})

	t.Run("未格納の場合はグローバルロガーを返すこと", func(t *testing.T) {
		t.Parallel()

		if FromContext(context.Background()) == nil {
			t.Error("FromContext()がnilを返した")
		}
	})
}

// TestGinLogger はgin.Context経由のロガー受け渡しを検証する。
func TestGinLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	With(c, l)

	if From(c) != l {
		t.Error("From()が格納したロガーを返さない")
	}
	if FromContext(c.Request.Context()) != l {
		t.Error("リクエストのコンテキストにロガーが格納されていない")
	}
}
