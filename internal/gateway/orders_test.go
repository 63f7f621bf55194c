package gateway

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

// TestOrders_RequireSession は注文系のエンドポイントがセッションを必須とすることを検証する。
func TestOrders_RequireSession(t *testing.T) {
	t.Parallel()

	s, mb := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	endpoints := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/orders", ""},
		{http.MethodPost, "/api/orders", `{"orderItems":[{"sku":"A","qty":1}]}`},
		{http.MethodGet, "/api/orders/ord_1", ""},
		{http.MethodPost, "/api/orders/pay", `{"orderId":"ord_1"}`},
		{http.MethodGet, "/api/orders/verify-payment?reference=ref_1&order_id=ord_1", ""},
		{http.MethodPut, "/api/orders/ord_1/deliver", ""},
		{http.MethodPost, "/api/orders/track", `{"orderId":"ord_1","billingEmail":"a@example.com"}`},
	}

	for _, e := range endpoints {
		w := doRequest(s, e.method, e.path, e.body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: ステータスコード = %d, want %d", e.method, e.path, w.Code, http.StatusUnauthorized)
		}
		if body := decode(t, w); body["success"] != false || body["error"] == "" {
			t.Errorf("%s %s: body = %v", e.method, e.path, body)
		}
	}
	if n := len(mb.Calls()); n != 0 {
		t.Errorf("セッション無しでバックエンドを %d 回呼び出した", n)
	}
}

// TestCheckoutFlow は注文作成から配送完了までの一連の流れを検証する。
func TestCheckoutFlow(t *testing.T) {
	t.Parallel()

	s, mb := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/orders":
			writeJSON(w, http.StatusCreated, `{"_id":"ord_1","isPaid":false,"isDelivered":false}`)
		case "POST /api/orders/pay":
			writeJSON(w, http.StatusOK, `{"reference":"ref_1","redirectUrl":"https://pay.example/ref_1"}`)
		case "GET /api/orders/verify-payment":
			writeJSON(w, http.StatusOK, `{"status":"success"}`)
		case "PUT /api/orders/ord_1/deliver":
			writeJSON(w, http.StatusOK, `{"_id":"ord_1","isPaid":true,"isDelivered":true}`)
		default:
			writeJSON(w, http.StatusNotFound, `{"message":"not found"}`)
		}
	})

	// 注文作成
	w := doRequest(s, http.MethodPost, "/api/orders",
		`{"orderItems":[{"sku":"A","qty":1}],"shippingAddress":{"address":"1-2-3","city":"Tokyo","postalCode":"100-0001","country":"JP"},"paymentMethod":"card"}`,
		sessionCookie())
	if w.Code != http.StatusCreated {
		t.Fatalf("注文作成: ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	body := decode(t, w)
	data, _ := body["data"].(map[string]any)
	if body["success"] != true || data["id"] != "ord_1" || data["paymentStatus"] != "unpaid" || data["deliveryStatus"] != "pending" {
		t.Errorf("注文作成: body = %v", body)
	}

	// 決済初期化
	w = doRequest(s, http.MethodPost, "/api/orders/pay", `{"orderId":"ord_1"}`, sessionCookie())
	if w.Code != http.StatusOK {
		t.Fatalf("決済初期化: ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	data, _ = decode(t, w)["data"].(map[string]any)
	if data["reference"] != "ref_1" || data["redirectUrl"] != "https://pay.example/ref_1" {
		t.Errorf("決済初期化: data = %v", data)
	}

	// 決済検証
	w = doRequest(s, http.MethodGet, "/api/orders/verify-payment?reference=ref_1&order_id=ord_1", "", sessionCookie())
	if w.Code != http.StatusOK {
		t.Fatalf("決済検証: ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	body = decode(t, w)
	if body["success"] != true || body["status"] != "success" {
		t.Errorf("決済検証: body = %v", body)
	}

	// 配送完了
	w = doRequest(s, http.MethodPut, "/api/orders/ord_1/deliver", "", sessionCookie())
	if w.Code != http.StatusOK {
		t.Fatalf("配送完了: ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	data, _ = decode(t, w)["data"].(map[string]any)
	if data["deliveryStatus"] != "delivered" || data["paymentStatus"] != "paid" {
		t.Errorf("配送完了: data = %v", data)
	}

	calls := mb.Calls()
	if len(calls) != 4 {
		t.Fatalf("バックエンド呼び出し回数 = %d, want 4", len(calls))
	}
	for _, c := range calls {
		if c.Auth != "Bearer token-abc" {
			t.Errorf("%s %s: Authorization = %q", c.Method, c.Path, c.Auth)
		}
		if c.RequestID == "" {
			t.Errorf("%s %s: X-Request-IDが伝播していない", c.Method, c.Path)
		}
	}
	q, _ := url.ParseQuery(calls[2].RawQuery)
	if q.Get("reference") != "ref_1" || q.Get("orderId") != "ord_1" {
		t.Errorf("検証クエリ = %q", calls[2].RawQuery)
	}
	if calls[1].Body["callbackUrl"] != "https://shop.example/order/confirm?order_id=ord_1" {
		t.Errorf("callbackUrl = %v", calls[1].Body["callbackUrl"])
	}
}

// TestCreateOrder_Validation は注文作成の入力エラーを検証する。
func TestCreateOrder_Validation(t *testing.T) {
	t.Parallel()

	s, mb := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, `{"_id":"ord_1"}`)
	})

	for _, body := range []string{
		`{invalid`,
		`{"orderItems":[],"shippingAddress":{"address":"a","city":"c","postalCode":"p","country":"JP"},"paymentMethod":"card"}`,
		`{"orderItems":[{"sku":"A","qty":1}],"paymentMethod":"card"}`,
		`{"orderItems":[{"sku":"A","qty":1}],"shippingAddress":{"address":"a","city":"c","postalCode":"p","country":"JP"}}`,
	} {
		w := doRequest(s, http.MethodPost, "/api/orders", body, sessionCookie())
		if w.Code != http.StatusBadRequest {
			t.Errorf("body=%s: ステータスコード = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
	if n := len(mb.Calls()); n != 0 {
		t.Errorf("入力エラーでバックエンドを %d 回呼び出した", n)
	}
}

// TestMarkDelivered_NotAdmin は管理者でない場合にバックエンドの拒否がそのまま返ることを検証する。
func TestMarkDelivered_NotAdmin(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"message":"Not authorized as an admin"}`)
	})

	w := doRequest(s, http.MethodPut, "/api/orders/ord_1/deliver", "", sessionCookie())
	if w.Code != http.StatusForbidden {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decode(t, w); body["success"] != false || body["error"] != "Not authorized as an admin" {
		t.Errorf("body = %v", body)
	}
}

// TestVerifyPayment_Outcomes は検証結果ごとのHTTPレスポンスを検証する。
func TestVerifyPayment_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		query      string
		wantCode   int
		wantStatus string
	}{
		{
			name:       "決済失敗は402でfailedを返すこと",
			status:     http.StatusOK,
			body:       `{"status":"failed","message":"Card declined"}`,
			query:      "reference=ref_1&order_id=ord_1",
			wantCode:   http.StatusPaymentRequired,
			wantStatus: "failed",
		},
		{
			name:       "バックエンドの400はそのステータスでfailedを返すこと",
			status:     http.StatusBadRequest,
			body:       `{"message":"Payment verification failed"}`,
			query:      "reference=ref_1&order_id=ord_1",
			wantCode:   http.StatusBadRequest,
			wantStatus: "failed",
		},
		{
			name:       "バックエンドの500は結果不明のerrorを返すこと",
			status:     http.StatusInternalServerError,
			body:       `{"message":"gateway timeout"}`,
			query:      "reference=ref_1&order_id=ord_1",
			wantCode:   http.StatusInternalServerError,
			wantStatus: "error",
		},
		{
			name:       "決済ゲートウェイのtrxrefとorderIdも受け付けること",
			status:     http.StatusOK,
			body:       `{"status":"success"}`,
			query:      "trxref=ref_1&orderId=ord_1",
			wantCode:   http.StatusOK,
			wantStatus: "success",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			w := doRequest(s, http.MethodGet, "/api/orders/verify-payment?"+tt.query, "", sessionCookie())
			if w.Code != tt.wantCode {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantCode)
			}
			body := decode(t, w)
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
			if tt.wantStatus != "success" && body["error"] == nil {
				t.Errorf("errorが無い: %v", body)
			}
		})
	}

	t.Run("referenceが無ければ400を返すこと", func(t *testing.T) {
		t.Parallel()

		s, mb := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})

		w := doRequest(s, http.MethodGet, "/api/orders/verify-payment?order_id=ord_1", "", sessionCookie())
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if n := len(mb.Calls()); n != 0 {
			t.Errorf("バックエンド呼び出し回数 = %d, want 0", n)
		}
	})
}

// TestListOrders は注文一覧を検証する。
func TestListOrders(t *testing.T) {
	t.Parallel()

	for name, payload := range map[string]string{
		"素の配列":      `[{"_id":"a"},{"_id":"b"}]`,
		"ordersで包む": `{"orders":[{"_id":"a"},{"_id":"b"}]}`,
	} {
		payload := payload
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, payload)
			})

			w := doRequest(s, http.MethodGet, "/api/orders", "", sessionCookie())
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
			}
			data, ok := decode(t, w)["data"].([]any)
			if !ok || len(data) != 2 {
				t.Fatalf("data = %v", data)
			}
			if first, _ := data[0].(map[string]any); first["id"] != "a" {
				t.Errorf("data[0] = %v", data[0])
			}
		})
	}
}

// TestGetOrder は注文詳細を検証する。
func TestGetOrder(t *testing.T) {
	t.Parallel()

	s, mb := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"_id":"ord_1","isPaid":true,"totalPrice":42}`)
	})

	w := doRequest(s, http.MethodGet, "/api/orders/ord_1", "", sessionCookie())
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	data, _ := decode(t, w)["data"].(map[string]any)
	if data["id"] != "ord_1" || data["paymentStatus"] != "paid" || data["totalPrice"] != float64(42) {
		t.Errorf("data = %v", data)
	}
	if calls := mb.Calls(); calls[0].Path != "/api/orders/ord_1" {
		t.Errorf("Path = %q", calls[0].Path)
	}
}

// TestTrackOrder は注文追跡を検証する。
func TestTrackOrder(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"shipped"}`)
	})

	w := doRequest(s, http.MethodPost, "/api/orders/track", `{"orderId":"ord_1","billingEmail":"a@example.com"}`, sessionCookie())
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	data, _ := decode(t, w)["data"].(map[string]any)
	if data["status"] != "shipped" {
		t.Errorf("data = %v", data)
	}
}

// TestUpstreamProtocolError はバックエンドがJSON以外を返した場合を検証する。
func TestUpstreamProtocolError(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	w := doRequest(s, http.MethodGet, "/api/orders/ord_1", "", sessionCookie())
	if w.Code != http.StatusInternalServerError {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decode(t, w)
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if msg, _ := body["error"].(string); msg == "" || msg == "<html>maintenance</html>" {
		t.Errorf("error = %q", msg)
	}
}

// TestOrders_RelativeOrderID は相対セグメントの注文IDを転送しないことを検証する。
func TestOrders_RelativeOrderID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{name: "配送済み更新", method: http.MethodPut, path: "/api/orders/../deliver"},
		{name: "注文詳細", method: http.MethodGet, path: "/api/orders/.."},
		{name: "決済初期化", method: http.MethodPost, path: "/api/orders/pay", body: `{"orderId":".."}`},
		{name: "注文追跡", method: http.MethodPost, path: "/api/orders/track", body: `{"orderId":"..","billingEmail":"a@example.com"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, mb := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, `{"_id":"x","isDelivered":true}`)
			})

			w := doRequest(s, tt.method, tt.path, tt.body, sessionCookie())
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
			if n := len(mb.Calls()); n != 0 {
				t.Errorf("バックエンドを %d 回呼び出した: %+v", n, mb.Calls())
			}
		})
	}
}

// TestCreateOrder_ValidationField は入力エラーのメッセージにJSON名のフィールドが含まれることを検証する。
func TestCreateOrder_ValidationField(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})

	body := `{"orderItems":[{"sku":"A","qty":0}],"shippingAddress":{"address":"a","city":"c","postalCode":"p","country":"JP"},"paymentMethod":"card"}`
	w := doRequest(s, http.MethodPost, "/api/orders", body, sessionCookie())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
	}
	msg, _ := decode(t, w)["error"].(string)
	if !strings.HasPrefix(msg, "orderItems[0].qty: ") {
		t.Errorf("error = %q", msg)
	}
}
