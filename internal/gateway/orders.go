package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/storefront/internal/checkout"
)

// payRequest は決済初期化のリクエストボディ。
type payRequest struct {
	OrderID string `json:"orderId" binding:"required,resourceid"`
}

// verifyResponse は決済検証のレスポンス。
// ブラウザは status で「決済失敗」と「結果不明」を出し分ける。
type verifyResponse struct {
	Success bool                        `json:"success"`
	Status  checkout.VerificationStatus `json:"status"`
	Error   string                      `json:"error,omitempty"`
}

// handleListOrders はログイン中のユーザーの注文一覧を返すハンドラを返す。
func (s *Server) handleListOrders() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := s.checkout.ListOrders(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, http.StatusOK, orders)
	}
}

// handleCreateOrder は注文を作成するハンドラを返す。
func (s *Server) handleCreateOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in checkout.CreateOrderInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respondError(c, bindError(err))
			return
		}

		order, err := s.checkout.CreateOrder(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, http.StatusCreated, order)
	}
}

// handleGetOrder は注文を1件返すハンドラを返す。
func (s *Server) handleGetOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := s.checkout.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, http.StatusOK, order)
	}
}

// handleInitPayment は決済を初期化するハンドラを返す。
func (s *Server) handleInitPayment() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindError(err))
			return
		}

		result, err := s.checkout.InitPayment(c.Request.Context(), req.OrderID)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, http.StatusOK, result)
	}
}

// handleVerifyPayment は決済結果を検証するハンドラを返す。
// 決済ゲートウェイからの戻り遷移で呼ばれるため、reference と order_id はクエリで受け取る。
// 決済ゲートウェイが付与する trxref と、orderId の表記も受け付ける。
func (s *Server) handleVerifyPayment() gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := firstNonEmpty(c.Query("reference"), c.Query("trxref"))
		orderID := firstNonEmpty(c.Query("order_id"), c.Query("orderId"))

		v, err := s.checkout.VerifyPayment(c.Request.Context(), reference, orderID)
		if err != nil {
			respondError(c, err)
			return
		}

		switch v.Status {
		case checkout.VerificationSuccess:
			c.JSON(http.StatusOK, verifyResponse{Success: true, Status: v.Status})
		case checkout.VerificationFailed:
			status := v.UpstreamStatus
			if status < http.StatusBadRequest {
				status = http.StatusPaymentRequired
			}
			c.JSON(status, verifyResponse{Success: false, Status: v.Status, Error: v.Message})
		default:
			c.JSON(http.StatusInternalServerError, verifyResponse{Success: false, Status: v.Status, Error: v.Message})
		}
	}
}

// handleMarkDelivered は注文を配送済みにするハンドラを返す。
// 管理者権限の確認はバックエンドが行う。
func (s *Server) handleMarkDelivered() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := s.checkout.MarkDelivered(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, http.StatusOK, order)
	}
}

// handleTrackOrder は注文の配送状況を返すハンドラを返す。
func (s *Server) handleTrackOrder() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in checkout.TrackInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respondError(c, bindError(err))
			return
		}

		info, err := s.checkout.TrackOrder(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, http.StatusOK, info)
	}
}
