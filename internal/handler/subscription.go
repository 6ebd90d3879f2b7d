package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78"
	checkoutsession "github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/subscription"
	"github.com/stripe/stripe-go/v78/webhook"

	"greenly-backend/internal/config"
	"greenly-backend/internal/model"
	"greenly-backend/internal/service"
	"greenly-backend/pkg/logger"
)

// webhook 请求体上限，Stripe 官方建议值
const maxWebhookBody = 65536

type SubscriptionHandler struct {
	auth *service.AuthService
	cfg  config.StripeConfig
}

func NewSubscriptionHandler(auth *service.AuthService, cfg config.StripeConfig) *SubscriptionHandler {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &SubscriptionHandler{
		auth: auth,
		cfg:  cfg,
	}
}

func (h *SubscriptionHandler) configured() bool {
	return h.cfg.SecretKey != "" && h.cfg.PriceID != ""
}

// CreateCheckout 创建订阅的 Checkout 会话，返回跳转地址
func (h *SubscriptionHandler) CreateCheckout(c *gin.Context) {
	if !h.configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscriptions are not configured"})
		return
	}

	user := currentUser(c)

	var req model.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = model.CheckoutSessionRequest{}
	}
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.cfg.SuccessURL
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.cfg.CancelURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(h.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(user.ID),
		CustomerEmail:     stripe.String(user.Email),
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		logger.Errorf("Create checkout session failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

// Webhook Stripe 回调。签名校验失败一律 400，
// 订阅的开通与取消在这里落到用户会话上
func (h *SubscriptionHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.cfg.WebhookSecret)
	if err != nil {
		logger.Warnf("Webhook signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			logger.Errorf("Unmarshal checkout session failed: %v", err)
			break
		}
		if sess.ClientReferenceID != "" {
			h.auth.SetPremium(sess.ClientReferenceID, true)
			logger.Infof("Subscription activated for user %s", sess.ClientReferenceID)
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			logger.Errorf("Unmarshal subscription failed: %v", err)
			break
		}
		if ref, ok := sub.Metadata["user_id"]; ok {
			h.auth.SetPremium(ref, false)
		}

	default:
		logger.Debugf("Ignoring webhook event %s", event.Type)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// CancelSubscription 立即取消订阅
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	if !h.configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscriptions are not configured"})
		return
	}

	var req model.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := subscription.Cancel(req.SubscriptionID, nil); err != nil {
		logger.Errorf("Cancel subscription %s failed: %v", req.SubscriptionID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to cancel subscription"})
		return
	}

	user := currentUser(c)
	h.auth.SetPremium(user.ID, false)

	c.JSON(http.StatusOK, gin.H{"message": "Subscription cancelled successfully"})
}
