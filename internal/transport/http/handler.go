// Package http — тонкий HTTP-слой над сервисами. Ошибки применимости и
// валидации транслируются в 422, отсутствие сущностей — в 404.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"boxshop/internal/discount"
	"boxshop/internal/models"
	"boxshop/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	orders       *service.OrderService
	subs         *service.SubscriptionService
	installments *service.InstallmentService
	boxrun       *service.BoxRunService
}

func NewHandler(orders *service.OrderService, subs *service.SubscriptionService, installments *service.InstallmentService, boxrun *service.BoxRunService) *Handler {
	return &Handler{orders: orders, subs: subs, installments: installments, boxrun: boxrun}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api/v1")

	api.POST("/orders/checkout", h.checkout)
	api.GET("/orders/:id", h.getOrder)
	api.POST("/orders/:id/pay", h.payOrder)
	api.POST("/orders/:id/approve", h.approveOrder)
	api.POST("/orders/:id/complete", h.completeOrder)
	api.POST("/orders/:id/cancel", h.cancelOrder)
	api.POST("/orders/:id/refund", h.refundOrder)
	api.POST("/orders/:id/fail", h.failOrder)
	api.POST("/orders/:id/recalculate", h.recalculateOrder)

	api.POST("/discounts/preview", h.previewDiscount)

	api.GET("/boxes", h.listBoxes)
	api.GET("/boxes/:slug", h.getBox)

	api.GET("/subscriptions/:id/months", h.futureMonths)
	api.POST("/subscriptions/:id/skip", h.skipMonth)
	api.POST("/subscriptions/:id/unskip", h.unskipMonth)
	api.POST("/subscriptions/:id/gift", h.giftMonth)
	api.POST("/subscriptions/:id/addons", h.addAddon)
	api.POST("/subscriptions/:id/exchange", h.exchangeMonth)
	api.POST("/subscriptions/:id/pause", h.pauseSubscription)
	api.POST("/subscriptions/:id/continue", h.continueSubscription)
	api.POST("/subscriptions/:id/stop", h.stopSubscription)
	api.PUT("/subscriptions/:id/schedule", h.updateSchedule)

	api.POST("/installments/:id/charge", h.chargeInstallment)
	api.GET("/installments/:id/history", h.installmentHistory)

	api.POST("/customers/:id/share-code", h.shareCode)
	api.PUT("/customers/:id/payment-method", h.updatePaymentMethod)
}

type lineItemRequest struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int    `json:"quantity"`
}

type checkoutRequest struct {
	CustomerID      uuid.UUID         `json:"customer_id" binding:"required"`
	Items           []lineItemRequest `json:"items" binding:"required"`
	DiscountCode    string            `json:"discount_code"`
	GiftCardCode    string            `json:"gift_card_code"`
	Notes           string            `json:"notes"`
	Keep            bool              `json:"keep"`
	Campaign        string            `json:"campaign"`
	ShippingRate    float64           `json:"shipping_rate"`
	ShippingAddress models.Address    `json:"shipping_address" binding:"required"`
	BillingAddress  *models.Address   `json:"billing_address"`
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := toCartInput(req)
	in.BuyerIP = c.ClientIP()
	ct, err := h.orders.BuildCart(c.Request.Context(), req.CustomerID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.orders.Checkout(c.Request.Context(), service.CheckoutInput{
		CustomerID:      req.CustomerID,
		Cart:            ct,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingRate:    req.ShippingRate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func toCartInput(req checkoutRequest) service.CartInput {
	in := service.CartInput{
		DiscountCode: req.DiscountCode,
		GiftCardCode: req.GiftCardCode,
		Notes:        req.Notes,
		Keep:         req.Keep,
		Campaign:     req.Campaign,
		Country:      req.ShippingAddress.Country,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.CartInputItem{SKU: it.SKU, Quantity: it.Quantity})
	}
	return in
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) payOrder(c *gin.Context)      { h.orderTransition(c, h.orders.MarkPaid) }
func (h *Handler) approveOrder(c *gin.Context)  { h.orderTransition(c, h.orders.Approve) }
func (h *Handler) completeOrder(c *gin.Context) { h.orderTransition(c, h.orders.Complete) }
func (h *Handler) cancelOrder(c *gin.Context)   { h.orderTransition(c, h.orders.Cancel) }
func (h *Handler) refundOrder(c *gin.Context)   { h.orderTransition(c, h.orders.Refund) }
func (h *Handler) failOrder(c *gin.Context)     { h.orderTransition(c, h.orders.MarkFailed) }

func (h *Handler) orderTransition(c *gin.Context, fn func(ctxArg context.Context, id uuid.UUID) (*models.Order, error)) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	order, err := fn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) recalculateOrder(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		TaxRate *float64 `json:"tax_rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := h.orders.Recalculate(c.Request.Context(), id, req.TaxRate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type previewRequest struct {
	CustomerID   uuid.UUID         `json:"customer_id" binding:"required"`
	Items        []lineItemRequest `json:"items" binding:"required"`
	DiscountCode string            `json:"discount_code" binding:"required"`
}

// previewDiscount проверяет код на корзине и возвращает размер скидки,
// не оформляя заказ.
func (h *Handler) previewDiscount(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, freeSKUs, err := h.orders.PreviewDiscount(c.Request.Context(), req.CustomerID, service.CartInput{
		DiscountCode: req.DiscountCode,
		Items:        toInputItems(req.Items),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount, "free_addons": freeSKUs})
}

func toInputItems(items []lineItemRequest) []service.CartInputItem {
	out := make([]service.CartInputItem, 0, len(items))
	for _, it := range items {
		out = append(out, service.CartInputItem{SKU: it.SKU, Quantity: it.Quantity})
	}
	return out
}

func (h *Handler) listBoxes(c *gin.Context) {
	boxes, err := h.subs.SellableBoxes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, boxes)
}

func (h *Handler) getBox(c *gin.Context) {
	box, err := h.subs.BoxBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, box)
}

func (h *Handler) futureMonths(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	months, err := h.subs.FutureMonths(c.Request.Context(), id, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, months)
}

type boxKeyRequest struct {
	BoxKey string `json:"box_key" binding:"required"`
}

func (h *Handler) skipMonth(c *gin.Context) {
	h.subscriptionBoxOp(c, h.subs.Skip)
}

func (h *Handler) unskipMonth(c *gin.Context) {
	h.subscriptionBoxOp(c, h.subs.Unskip)
}

func (h *Handler) subscriptionBoxOp(c *gin.Context, fn func(ctxArg context.Context, id uuid.UUID, boxKey string) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req boxKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := fn(c.Request.Context(), id, req.BoxKey); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) giftMonth(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req models.SubscriptionGift
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.subs.GiftMonth(c.Request.Context(), id, req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addAddon(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		BoxKey   string `json:"box_key" binding:"required"`
		SKU      string `json:"sku" binding:"required"`
		Quantity int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.subs.AddAddon(c.Request.Context(), id, req.BoxKey, req.SKU, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exchangeMonth(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		BoxKey string `json:"box_key" binding:"required"`
		SKU    string `json:"sku" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.subs.ExchangeMonth(c.Request.Context(), id, req.BoxKey, req.SKU); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) pauseSubscription(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Until time.Time `json:"until" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.subs.Pause(c.Request.Context(), id, req.Until); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) continueSubscription(c *gin.Context) {
	h.subscriptionOp(c, h.subs.Continue)
}

func (h *Handler) stopSubscription(c *gin.Context) {
	h.subscriptionOp(c, h.subs.Stop)
}

func (h *Handler) subscriptionOp(c *gin.Context, fn func(ctxArg context.Context, id uuid.UUID) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateSchedule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		Day int `json:"day" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.subs.UpdateSchedule(c.Request.Context(), id, req.Day); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) chargeInstallment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	plan, err := h.installments.Charge(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) installmentHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	history, err := h.orders.InstallmentHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) shareCode(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	code, err := h.orders.EnsureShareCode(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"share_code": code})
}

type paymentMethodRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) updatePaymentMethod(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req paymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.boxrun.UpdatePaymentMethod(c.Request.Context(), id, req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

var notFoundErrs = []error{
	service.ErrOrderNotFound,
	service.ErrCustomerNotFound,
	service.ErrProductNotFound,
	service.ErrDiscountNotFound,
	service.ErrGiftCardNotFound,
	service.ErrSubscriptionNotFound,
	service.ErrInstallmentNotFound,
	service.ErrBoxNotFound,
}

func respondError(c *gin.Context, err error) {
	for _, nf := range notFoundErrs {
		if errors.Is(err, nf) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
	}

	if isEligibility(err) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func isEligibility(err error) bool {
	for _, e := range []error{
		service.ErrEmptyCart,
		service.ErrNoCustomer,
		service.ErrGiftCardEmpty,
		service.ErrSubscriptionStopped,
		service.ErrSkipPastCommitment,
		service.ErrSkipLimitReached,
		service.ErrMonthAlreadySkipped,
		service.ErrPauseTooLong,
		service.ErrInstallmentFinished,
		service.ErrOrderNotRecalculable,
		service.ErrOrderNotRefundable,
		service.ErrOrderNotFailable,
		service.ErrAlreadyCancelled,
		service.ErrWholesaleMinimum,
		discount.ErrInactive,
		discount.ErrNotStarted,
		discount.ErrExpired,
		discount.ErrUsageLimit,
		discount.ErrAlreadyRedeemed,
		discount.ErrWrongCustomer,
		discount.ErrIPLimitReached,
		discount.ErrReactivationOnly,
		discount.ErrTagRequired,
		discount.ErrFirstOrderOnly,
		discount.ErrSubscribersOnly,
		discount.ErrMinimumNotMet,
		discount.ErrRequiredSKUMissing,
		discount.ErrSubscriptionRequired,
		discount.ErrCommitmentRequired,
		discount.ErrHasActiveSubscription,
		discount.ErrReferralSelfUse,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
