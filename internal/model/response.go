package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChatResponse struct {
	ChatID       string    `json:"chat_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	Messages     []Message `json:"messages"`
	State        SyncState `json:"state"`
	MessageCount int       `json:"message_count"`
}

type ChatSummary struct {
	ChatID       string    `json:"chat_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
	// 发送失败时 Message 为空，Error 携带给用户看的提示
	Error string `json:"error,omitempty"`
}

type SelectionResponse struct {
	Items []SelectedItem `json:"items"`
	Count int            `json:"count"`
}

type CalculateResponse struct {
	Elements   []GreeningElement `json:"elements"`
	GrandTotal decimal.Decimal   `json:"grand_total"`
	Active     int               `json:"active_count"`
}

type PricingSchemaResponse struct {
	Success       bool          `json:"success"`
	PricingSchema PricingSchema `json:"pricing_schema"`
	SimplePricing string        `json:"simple_pricing,omitempty"`
	Error         string        `json:"error,omitempty"`
}

type ShareImageResponse struct {
	ShareID string `json:"share_id"`
	URL     string `json:"url"`
}

type ReportMetaResponse struct {
	Filename       string `json:"filename"`
	EstimatedPages int    `json:"estimated_pages"`
	ActualPages    int    `json:"actual_pages"`
	Degraded       bool   `json:"degraded"`
}
