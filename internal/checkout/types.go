package checkout

import (
	"context"
	"fmt"

	"github.com/nao1215/storefront/pkg/httpclient"
)

// Backend はコマースバックエンドへの転送を抽象化するインターフェース。
// *httpclient.Client が実装する。
type Backend interface {
	Forward(ctx context.Context, method, path string, body any, requireAuth bool) (*httpclient.Response, error)
}

// PaymentStatus は注文の支払い状態。
type PaymentStatus string

const (
	// PaymentUnpaid は未払い。
	PaymentUnpaid PaymentStatus = "unpaid"
	// PaymentPaid は支払い済み。
	PaymentPaid PaymentStatus = "paid"
)

// DeliveryStatus は注文の配送状態。
type DeliveryStatus string

const (
	// DeliveryPending は未配送。
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryDelivered は配送済み。
	DeliveryDelivered DeliveryStatus = "delivered"
)

// LineItem は注文の明細行。
type LineItem struct {
	// SKU は商品の在庫管理コード。
	SKU string `json:"sku,omitempty" binding:"required_without=Product"`
	// Product はバックエンドの商品ID。
	Product string `json:"product,omitempty" binding:"required_without=SKU"`
	// Name は商品名。
	Name string `json:"name,omitempty"`
	// Qty は数量。
	Qty int `json:"qty" binding:"gt=0"`
	// Price は単価。
	Price float64 `json:"price,omitempty"`
	// Image は商品画像のURL。
	Image string `json:"image,omitempty"`
}

// ShippingAddress は配送先住所。
type ShippingAddress struct {
	Address    string `json:"address" binding:"notblank"`
	City       string `json:"city" binding:"notblank"`
	PostalCode string `json:"postalCode" binding:"notblank"`
	Country    string `json:"country" binding:"notblank"`
}

// CreateOrderInput は注文作成の入力。
type CreateOrderInput struct {
	// OrderItems は注文明細。1件以上必要。
	OrderItems []LineItem `json:"orderItems" binding:"required,min=1,dive"`
	// ShippingAddress は配送先住所。
	ShippingAddress *ShippingAddress `json:"shippingAddress" binding:"required"`
	// PaymentMethod は支払い方法。
	PaymentMethod string `json:"paymentMethod" binding:"notblank"`
}

// Order はバックエンドが所有する注文をゲートウェイ向けに正規化したもの。
type Order struct {
	ID              string           `json:"id"`
	OrderItems      []LineItem       `json:"orderItems,omitempty"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	ItemsPrice      float64          `json:"itemsPrice,omitempty"`
	TaxPrice        float64          `json:"taxPrice,omitempty"`
	ShippingPrice   float64          `json:"shippingPrice,omitempty"`
	TotalPrice      float64          `json:"totalPrice,omitempty"`
	PaymentStatus   PaymentStatus    `json:"paymentStatus"`
	DeliveryStatus  DeliveryStatus   `json:"deliveryStatus"`
	PaidAt          string           `json:"paidAt,omitempty"`
	DeliveredAt     string           `json:"deliveredAt,omitempty"`
	CreatedAt       string           `json:"createdAt,omitempty"`
}

// PaymentInit は決済初期化の結果。
type PaymentInit struct {
	// Reference は外部決済ゲートウェイが採番したトランザクション参照。
	Reference string `json:"reference"`
	// RedirectURL はブラウザを遷移させる決済ページのURL。
	RedirectURL string `json:"redirectUrl"`
}

// VerificationStatus は決済検証の三値の結果。
type VerificationStatus string

const (
	// VerificationSuccess はバックエンドが支払い完了を確認した状態。
	VerificationSuccess VerificationStatus = "success"
	// VerificationFailed はバックエンドが支払い失敗を確認した状態。注文は未払いのまま。
	VerificationFailed VerificationStatus = "failed"
	// VerificationError は通信やプロトコルの問題で結果を判定できなかった状態。
	VerificationError VerificationStatus = "error"
)

// Verification は決済検証の結果。
type Verification struct {
	// Status は検証結果。
	Status VerificationStatus `json:"status"`
	// Message は failed/error の場合の説明。
	Message string `json:"message,omitempty"`
	// UpstreamStatus はバックエンドが返したHTTPステータス。判定できない場合は0。
	UpstreamStatus int `json:"-"`
}

// TrackInput は注文追跡の入力。
type TrackInput struct {
	OrderID      string `json:"orderId" binding:"required,resourceid"`
	BillingEmail string `json:"billingEmail" binding:"required,email"`
}

// ValidationError は呼び出し元の入力が不足または不正な場合のエラー。
// このエラーの場合、バックエンドには一切接続しない。
type ValidationError struct {
	// Field は問題のあるフィールド名。
	Field string
	// Message は人が読める説明。
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("入力エラー: %s: %s", e.Field, e.Message)
}

// invalid はValidationErrorを生成する。
func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
