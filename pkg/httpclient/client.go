package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"
)

const (
	// defaultTimeout はバックエンド呼び出しの既定タイムアウト。
	defaultTimeout = 30 * time.Second
	// maxBodyBytes はレスポンスボディとして読み込む最大バイト数。
	maxBodyBytes = 8 << 20
)

var backendRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_backend_requests_total",
		Help: "Total number of requests forwarded to the commerce backend",
	},
	[]string{"method", "outcome"},
)

// Client はコマースバックエンドへリクエストを転送するHTTPクライアント。
// リトライは行わない。注文作成や決済初期化は冪等ではないため、
// 失敗は即座に呼び出し元へ返す。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL はバックエンドのベースURL。
	baseURL *url.URL
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout はバックエンド呼び出しのタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient は内部で使用するHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New は新しいバックエンド転送用HTTPクライアントを生成する。
// baseURLにはバックエンドAPIのベースURL（例: "http://backend:5000/api/"）を指定する。
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("バックエンドURLの解析に失敗: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("バックエンドURLは絶対URLである必要があります: %q", baseURL)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: u,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Response はバックエンドからの成功レスポンス。
type Response struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Header はレスポンスヘッダー。認証系ではSet-Cookieを含む。
	Header http.Header
	// Body はJSONのレスポンスボディ。2xxで空ボディの場合はnil。
	Body []byte
}

// JSON はボディをgjsonの値として返す。
func (r *Response) JSON() gjson.Result {
	return gjson.ParseBytes(r.Body)
}

// Forward はバックエンドの path にリクエストを送信する。
// requireAuth が true の場合、コンテキストのトークンを Authorization: Bearer として付与する。
// トークンが無ければネットワークに触れずに ErrUnauthenticated を返す。
// body が nil でなければJSONにシリアライズして送信する。
func (c *Client) Forward(ctx context.Context, method, path string, body any, requireAuth bool) (*Response, error) {
	token, hasToken := TokenFrom(ctx)
	if requireAuth && !hasToken {
		backendRequests.WithLabelValues(method, "unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	endpoint, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requireAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok && requestID != "" {
		req.Header.Set(HeaderRequestID, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		backendRequests.WithLabelValues(method, "transport_error").Inc()
		return nil, &TransportError{Method: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		backendRequests.WithLabelValues(method, "transport_error").Inc()
		return nil, &TransportError{Method: method, URL: endpoint, Err: fmt.Errorf("レスポンスの読み取りに失敗: %w", err)}
	}

	out, err := interpret(resp, raw)
	if err != nil {
		backendRequests.WithLabelValues(method, outcomeOf(err)).Inc()
		return nil, err
	}
	backendRequests.WithLabelValues(method, "ok").Inc()
	return out, nil
}

// resolve はベースURLに相対パスを連結する。
// クエリ文字列はそのまま引き継ぐ。ベースURLの外へ出る . と .. のセグメントは拒否する。
func (c *Client) resolve(path string) (string, error) {
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("リクエストパスの解析に失敗: %w", err)
	}
	for _, seg := range strings.Split(rel.Path, "/") {
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("リクエストパスに相対セグメントは使用できません: %q", path)
		}
	}
	u := c.baseURL.JoinPath(rel.EscapedPath())
	u.RawQuery = rel.RawQuery
	return u.String(), nil
}

// interpret はバックエンドのレスポンスを成功か、対応するエラー種別に振り分ける。
func interpret(resp *http.Response, raw []byte) (*Response, error) {
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	if success && len(bytes.TrimSpace(raw)) == 0 {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
	}

	if !isJSONContentType(resp.Header.Get("Content-Type")) {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Reason: "JSON以外のレスポンス", Excerpt: excerpt(raw)}
	}
	if !gjson.ValidBytes(raw) {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Reason: "不正なJSONレスポンス", Excerpt: excerpt(raw)}
	}

	doc := gjson.ParseBytes(raw)
	if flag := doc.Get("success"); !success || (flag.Exists() && flag.Type == gjson.False) {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(doc, resp.StatusCode)}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// upstreamMessage はバックエンドのエラーメッセージを取り出す。
// error を message より優先し、どちらも無ければステータスの説明文を使う。
func upstreamMessage(doc gjson.Result, status int) string {
	e := doc.Get("error")
	if e.IsObject() {
		e = e.Get("message")
	}
	if e.Type == gjson.String {
		if m := strings.TrimSpace(e.String()); m != "" {
			return m
		}
	}
	if m := strings.TrimSpace(doc.Get("message").String()); m != "" {
		return m
	}
	if status >= 400 && http.StatusText(status) != "" {
		return http.StatusText(status)
	}
	return fmt.Sprintf("バックエンドがリクエストを拒否しました (status=%d)", status)
}

// isJSONContentType はContent-TypeがJSONかどうかを判定する。
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// outcomeOf はメトリクス用にエラー種別のラベルを返す。
func outcomeOf(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return "upstream_error"
	}
	return "protocol_error"
}
