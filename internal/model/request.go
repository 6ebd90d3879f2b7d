package model

import "github.com/shopspring/decimal"

type CreateChatRequest struct {
	MainImage  string `json:"main_image"`
	ObjectName string `json:"object_name"`
}

type SwitchChatRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
}

type SendMessageRequest struct {
	ChatID  string `json:"chat_id" binding:"required"`
	Content string `json:"content"`
	Image   string `json:"image"`
}

type UpdateTitleRequest struct {
	Content string `json:"content" binding:"required"`
}

type ToggleSelectionRequest struct {
	Item SelectedItem `json:"item" binding:"required"`
}

type PricingSchemaRequest struct {
	OriginalImage       string `json:"original_image"`
	ResourceName        string `json:"resource_name" binding:"required"`
	ResourceDescription string `json:"resource_description"`
	UserID              string `json:"user_id"`
}

// CalculateRequest 定价计算器的一次提交：行项数量/单价由前端编辑
type CalculateRequest struct {
	Elements []ElementInput `json:"elements" binding:"required"`
}

type ElementInput struct {
	ID           string          `json:"id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

type GenerateReportRequest struct {
	ResourceName        string            `json:"resource_name" binding:"required"`
	ResourceDescription string            `json:"resource_description"`
	SelectedItems       []SelectedItem    `json:"selected_items"`
	Elements            []GreeningElement `json:"elements"`
	SimplePricing       string            `json:"simple_pricing"`
}

type ShareImageRequest struct {
	Image      string `json:"image" binding:"required"`
	ObjectName string `json:"object_name"`
}

type CheckoutSessionRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type CancelSubscriptionRequest struct {
	SubscriptionID string `json:"subscription_id" binding:"required"`
}
