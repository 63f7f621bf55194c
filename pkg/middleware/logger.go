package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/storefront/internal/logging"
	"github.com/nao1215/storefront/pkg/httpclient"
)

const (
	// bodyLogLimit はログに含めるボディの最大バイト数。
	bodyLogLimit = 8 * 1024
	// redacted は秘匿項目の置換文字列。
	redacted = "***redacted***"
)

// sensitiveKeys はログ出力前に伏せるJSONキー（小文字）。
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"jwt":           {},
	"authorization": {},
	"secret":        {},
}

// replayBody はログ用に読み取った先頭部分を戻したリクエストボディ。
// 残りは元のボディからそのまま読み出す。
type replayBody struct {
	io.Reader
	io.Closer
}

// bodyLogWriter はレスポンスボディを上限付きで複製するResponseWriter。
type bodyLogWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	if remain := bodyLogLimit - w.buf.Len(); remain > 0 {
		if len(b) > remain {
			w.buf.Write(b[:remain])
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger はリクエストとレスポンスをslogで記録するGinミドルウェアを返す。
// X-Request-ID が無ければUUIDを採番し、レスポンスヘッダーとバックエンド呼び出しに伝播する。
// リクエストスコープのロガーはgin.Contextとリクエストのコンテキストに格納する。
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(httpclient.HeaderRequestID)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		c.Header(httpclient.HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(httpclient.WithRequestID(c.Request.Context(), reqID))

		l := base.With(
			"req_id", reqID,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"remote", c.ClientIP(),
		)
		logging.With(c, l)

		var reqBody string
		if isJSON(c.GetHeader("Content-Type")) && c.Request.Body != nil {
			head, err := io.ReadAll(io.LimitReader(c.Request.Body, bodyLogLimit+1))
			if err == nil {
				reqBody = loggableBody(head)
			}
			c.Request.Body = &replayBody{
				Reader: io.MultiReader(bytes.NewReader(head), c.Request.Body),
				Closer: c.Request.Body,
			}
		}

		blw := &bodyLogWriter{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = blw

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"dur_ms", time.Since(start).Milliseconds(),
			"resp_bytes", c.Writer.Size(),
		}
		if reqBody != "" {
			attrs = append(attrs, "req_body", reqBody)
		}
		if isJSON(c.Writer.Header().Get("Content-Type")) && blw.buf.Len() > 0 {
			attrs = append(attrs, "resp_body", loggableBody(blw.buf.Bytes()))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("http_request", attrs...)
		case status >= http.StatusBadRequest:
			l.Warn("http_request", attrs...)
		default:
			l.Info("http_request", attrs...)
		}
	}
}

// loggableBody は秘匿項目を伏せたボディを返す。
// 上限を超えたボディはJSONとして解釈できず秘匿項目を伏せられないため、中身を出力しない。
func loggableBody(raw []byte) string {
	if len(raw) > bodyLogLimit {
		return "...truncated..."
	}
	return string(redactJSON(raw))
}

// redactJSON はJSON中の秘匿項目を伏せる。JSONでなければ入力をそのまま返す。
func redactJSON(raw []byte) []byte {
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	b, err := json.Marshal(scrub(m))
	if err != nil {
		return raw
	}
	return b
}

func scrub(x any) any {
	switch v := x.(type) {
	case map[string]any:
		for k, val := range v {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				v[k] = redacted
				continue
			}
			v[k] = scrub(val)
		}
		return v
	case []any:
		for i := range v {
			v[i] = scrub(v[i])
		}
		return v
	default:
		return v
	}
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}
