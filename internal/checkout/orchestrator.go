package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/storefront/internal/logging"
	"github.com/nao1215/storefront/pkg/envelope"
	"github.com/nao1215/storefront/pkg/httpclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"
)

var verifications = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_payment_verifications_total",
		Help: "Payment verification results by status",
	},
	[]string{"status"},
)

// 決済状態の文字列表現。バックエンドや決済ゲートウェイによって語彙が異なる。
var (
	successStates = map[string]bool{"success": true, "successful": true, "paid": true, "completed": true}
	failedStates  = map[string]bool{"failed": true, "abandoned": true, "reversed": true, "cancelled": true, "canceled": true, "declined": true}
)

// Orchestrator は注文と決済の操作をバックエンドへ中継する。
// 状態を持たないため、複数のgoroutineから同時に使用できる。
type Orchestrator struct {
	// backend はコマースバックエンドへの転送クライアント。
	backend Backend
	// callbackURL は決済ゲートウェイがブラウザを戻す先のURL。
	callbackURL *url.URL
}

// NewOrchestrator は新しいOrchestratorを生成する。
// callbackURL は決済完了後にブラウザが戻る絶対URL。order_id クエリが付与される。
func NewOrchestrator(backend Backend, callbackURL string) (*Orchestrator, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("コールバックURLの解析に失敗: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("コールバックURLは絶対URLである必要があります: %q", callbackURL)
	}
	return &Orchestrator{backend: backend, callbackURL: u}, nil
}

// CreateOrder は注文を作成する。
// 支払い状態や配送状態はバックエンドが決める。決済の成否は注文作成に影響しない。
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)

	resp, err := o.backend.Forward(ctx, http.MethodPost, "orders", in, true)
	if err != nil {
		return nil, err
	}
	order, err := decodeOrder(resp)
	if err != nil {
		return nil, err
	}

	// バックエンドが省略したフィールドは送信内容で補う
	if len(order.OrderItems) == 0 {
		order.OrderItems = in.OrderItems
	}
	if order.ShippingAddress == nil {
		order.ShippingAddress = in.ShippingAddress
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = in.PaymentMethod
	}

	logging.FromContext(ctx).Info("注文を作成しました", "order_id", order.ID, "items", len(order.OrderItems))
	return order, nil
}

// GetOrder は注文を1件取得する。
func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	id, err := requireID("orderId", orderID)
	if err != nil {
		return nil, err
	}
	resp, err := o.backend.Forward(ctx, http.MethodGet, "orders/"+id, nil, true)
	if err != nil {
		return nil, err
	}
	return decodeOrder(resp)
}

// ListOrders はログイン中のユーザーの注文一覧を取得する。
// 素の配列と {orders:[...]} のどちらの形でも同じ順序の一覧を返す。
func (o *Orchestrator) ListOrders(ctx context.Context) ([]Order, error) {
	resp, err := o.backend.Forward(ctx, http.MethodGet, "orders/mine", nil, true)
	if err != nil {
		return nil, err
	}

	items := envelope.List(resp.Body, "orders", "data")
	orders := make([]Order, 0, len(items))
	for _, raw := range items {
		order, err := parseOrder(gjson.ParseBytes(raw))
		if err != nil {
			return nil, httpclient.NewProtocolError(resp.StatusCode, err.Error(), raw)
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// InitPayment は注文の決済を初期化し、決済ページへのリダイレクト先を返す。
// 注文IDはコールバックURLのクエリとトランザクションのメタデータの両方に埋め込む。
// クエリが改ざんされても検証時にメタデータから注文を特定できる。
func (o *Orchestrator) InitPayment(ctx context.Context, orderID string) (*PaymentInit, error) {
	id, err := requireID("orderId", orderID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"orderId":     id,
		"callbackUrl": o.callbackFor(id),
		"metadata": map[string]string{
			"orderId": id,
		},
	}
	resp, err := o.backend.Forward(ctx, http.MethodPost, "orders/pay", body, true)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(resp.Body)
	result := &PaymentInit{
		Reference:   firstString(doc, "reference", "data.reference"),
		RedirectURL: firstString(doc, "redirectUrl", "authorization_url", "data.redirectUrl", "data.authorization_url"),
	}
	if result.Reference == "" || result.RedirectURL == "" {
		return nil, httpclient.NewProtocolError(resp.StatusCode, "決済初期化レスポンスにreferenceまたはredirectUrlがありません", resp.Body)
	}

	logging.FromContext(ctx).Info("決済を初期化しました", "order_id", id, "reference", result.Reference)
	return result, nil
}

// VerifyPayment はバックエンドに決済結果を問い合わせる。
// 結果の正はバックエンドであり、ゲートウェイは署名検証などを行わない。
// 問い合わせはGETのみで、同じ引数で何度呼び出しても副作用は無い。
//
// 認証の問題（セッション無し、バックエンドの401/403）はエラーとして返す。
// それ以外の失敗は Verification の status に畳み込む。
func (o *Orchestrator) VerifyPayment(ctx context.Context, reference, orderID string) (*Verification, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return nil, invalid("reference", "決済参照が指定されていません")
	}
	id, err := requireID("orderId", orderID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("reference", ref)
	query.Set("orderId", id)

	logger := logging.FromContext(ctx).With("order_id", id, "reference", ref)

	resp, err := o.backend.Forward(ctx, http.MethodGet, "orders/verify-payment?"+query.Encode(), nil, true)
	if err != nil {
		v, err := classifyVerifyError(err)
		if err != nil {
			return nil, err
		}
		logger.Warn("決済の検証に失敗しました", "status", v.Status, "upstream_status", v.UpstreamStatus, "message", v.Message)
		verifications.WithLabelValues(string(v.Status)).Inc()
		return v, nil
	}

	v := classifyVerifyBody(resp)
	logger.Info("決済を検証しました", "status", v.Status)
	verifications.WithLabelValues(string(v.Status)).Inc()
	return v, nil
}

// MarkDelivered は注文を配送済みにする。
// 管理者権限の確認はバックエンドに委ねる。拒否された場合は
// バックエンドのステータスとメッセージをそのまま返す。
func (o *Orchestrator) MarkDelivered(ctx context.Context, orderID string) (*Order, error) {
	id, err := requireID("orderId", orderID)
	if err != nil {
		return nil, err
	}
	resp, err := o.backend.Forward(ctx, http.MethodPut, "orders/"+id+"/deliver", nil, true)
	if err != nil {
		return nil, err
	}
	order, err := decodeOrder(resp)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("注文を配送済みにしました", "order_id", order.ID)
	return order, nil
}

// TrackOrder は注文IDと請求先メールアドレスで配送状況を問い合わせる。
// 追跡情報の形はバックエンドに任せ、そのまま返す。
func (o *Orchestrator) TrackOrder(ctx context.Context, in TrackInput) (json.RawMessage, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.BillingEmail = strings.TrimSpace(in.BillingEmail)
	if err := Validate(in); err != nil {
		return nil, err
	}

	resp, err := o.backend.Forward(ctx, http.MethodPost, "orders/track", in, true)
	if err != nil {
		return nil, err
	}
	return envelope.Unwrap(resp.Body), nil
}

// callbackFor は注文IDをクエリに付与したコールバックURLを返す。
func (o *Orchestrator) callbackFor(orderID string) string {
	u := *o.callbackURL
	q := u.Query()
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

// decodeOrder はバックエンドのレスポンスから注文を取り出す。
func decodeOrder(resp *httpclient.Response) (*Order, error) {
	raw := envelope.Unwrap(resp.Body)
	if len(raw) == 0 {
		return nil, httpclient.NewProtocolError(resp.StatusCode, "注文データがありません", resp.Body)
	}
	doc := gjson.ParseBytes(raw)
	if nested := doc.Get("order"); nested.IsObject() {
		doc = nested
	}
	order, err := parseOrder(doc)
	if err != nil {
		return nil, httpclient.NewProtocolError(resp.StatusCode, err.Error(), resp.Body)
	}
	return order, nil
}

// parseOrder はJSONオブジェクトを Order に変換する。
// id/_id、paymentStatus/isPaid、deliveryStatus/isDelivered のどちらの表現も受け付ける。
func parseOrder(doc gjson.Result) (*Order, error) {
	if !doc.IsObject() {
		return nil, errors.New("注文データがオブジェクトではありません")
	}
	id := firstString(doc, "id", "_id")
	if id == "" {
		return nil, errors.New("注文データにIDがありません")
	}

	order := &Order{
		ID:             id,
		PaymentMethod:  doc.Get("paymentMethod").String(),
		ItemsPrice:     doc.Get("itemsPrice").Float(),
		TaxPrice:       doc.Get("taxPrice").Float(),
		ShippingPrice:  doc.Get("shippingPrice").Float(),
		TotalPrice:     doc.Get("totalPrice").Float(),
		PaymentStatus:  paymentStatusOf(doc),
		DeliveryStatus: deliveryStatusOf(doc),
		PaidAt:         doc.Get("paidAt").String(),
		DeliveredAt:    doc.Get("deliveredAt").String(),
		CreatedAt:      doc.Get("createdAt").String(),
	}

	if items := doc.Get("orderItems"); items.IsArray() {
		items.ForEach(func(_, item gjson.Result) bool {
			order.OrderItems = append(order.OrderItems, LineItem{
				SKU:     item.Get("sku").String(),
				Product: firstString(item, "product", "product._id", "product.id"),
				Name:    item.Get("name").String(),
				Qty:     int(firstInt(item, "qty", "quantity")),
				Price:   item.Get("price").Float(),
				Image:   item.Get("image").String(),
			})
			return true
		})
	}
	if addr := doc.Get("shippingAddress"); addr.IsObject() {
		order.ShippingAddress = &ShippingAddress{
			Address:    addr.Get("address").String(),
			City:       addr.Get("city").String(),
			PostalCode: addr.Get("postalCode").String(),
			Country:    addr.Get("country").String(),
		}
	}
	return order, nil
}

func paymentStatusOf(doc gjson.Result) PaymentStatus {
	if s := strings.ToLower(doc.Get("paymentStatus").String()); s != "" {
		if s == string(PaymentPaid) || successStates[s] {
			return PaymentPaid
		}
		return PaymentUnpaid
	}
	if doc.Get("isPaid").Bool() {
		return PaymentPaid
	}
	return PaymentUnpaid
}

func deliveryStatusOf(doc gjson.Result) DeliveryStatus {
	if s := strings.ToLower(doc.Get("deliveryStatus").String()); s != "" {
		if s == string(DeliveryDelivered) {
			return DeliveryDelivered
		}
		return DeliveryPending
	}
	if doc.Get("isDelivered").Bool() {
		return DeliveryDelivered
	}
	return DeliveryPending
}

// classifyVerifyBody は成功レスポンスのボディから検証結果を判定する。
func classifyVerifyBody(resp *httpclient.Response) *Verification {
	doc := gjson.ParseBytes(resp.Body)
	status := strings.ToLower(firstString(doc, "status", "data.status", "paymentStatus", "data.paymentStatus"))

	switch {
	case successStates[status]:
		return &Verification{Status: VerificationSuccess, UpstreamStatus: resp.StatusCode}
	case failedStates[status]:
		return &Verification{
			Status:         VerificationFailed,
			Message:        orDefault(firstString(doc, "data.gateway_response", "gateway_response", "message"), "決済が完了しませんでした"),
			UpstreamStatus: resp.StatusCode,
		}
	case firstBool(doc, "isPaid", "data.isPaid", "order.isPaid", "data.order.isPaid"):
		return &Verification{Status: VerificationSuccess, UpstreamStatus: resp.StatusCode}
	default:
		return &Verification{
			Status:         VerificationError,
			Message:        "決済結果がまだ確定していません",
			UpstreamStatus: resp.StatusCode,
		}
	}
}

// classifyVerifyError は検証呼び出しのエラーを検証結果に畳み込む。
// 認証の問題と未知のエラーはそのまま返す。
func classifyVerifyError(err error) (*Verification, error) {
	var (
		upstream  *httpclient.UpstreamError
		protocol  *httpclient.ProtocolError
		transport *httpclient.TransportError
	)
	switch {
	case errors.As(err, &upstream):
		switch {
		case upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden:
			return nil, err
		case upstream.StatusCode >= 500:
			return &Verification{Status: VerificationError, Message: upstream.Message, UpstreamStatus: upstream.StatusCode}, nil
		default:
			return &Verification{Status: VerificationFailed, Message: upstream.Message, UpstreamStatus: upstream.StatusCode}, nil
		}
	case errors.As(err, &protocol):
		return &Verification{Status: VerificationError, Message: "決済結果を判定できませんでした", UpstreamStatus: protocol.StatusCode}, nil
	case errors.As(err, &transport):
		return &Verification{Status: VerificationError, Message: "決済結果を判定できませんでした"}, nil
	default:
		return nil, err
	}
}

// firstString は paths のうち最初に見つかった空でない文字列を返す。
func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstInt(doc gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func firstBool(doc gjson.Result, paths ...string) bool {
	for _, p := range paths {
		if doc.Get(p).Type == gjson.True {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
