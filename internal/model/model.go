package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SyncState 表示会话与远端后端的同步状态
// pending: 仅有本地乐观写入的数据；synced: 服务端历史已至少整体覆盖过一次
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
)

// Message 单条聊天消息
// Content 允许为空，但此时必须携带 Image 或 ResponseImage
type Message struct {
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Image         string    `json:"image,omitempty"`          // 用户上传的图片（data-URI 或 URL）
	ResponseImage string    `json:"response_image,omitempty"` // 助手返回的图片
	ObjectName    string    `json:"object_name,omitempty"`    // 图片中对象的名称
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// HasImage 消息是否携带任意图片
func (m *Message) HasImage() bool {
	return m.Image != "" || m.ResponseImage != ""
}

// Chat 一次对话会话，消息按时间顺序追加
type Chat struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	Messages   []Message `json:"messages"`
	MainImage  string    `json:"main_image,omitempty"`  // 会话创建时设置，之后不可变
	ObjectName string    `json:"object_name,omitempty"` // 主图对象名称，同样创建时一次性设置
	State      SyncState `json:"state"`
}

// ServerMessage 远端聊天后端的线上消息格式
type ServerMessage struct {
	ChatID     string `json:"chat_id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	ObjectName string `json:"object_name,omitempty"`
	Image      string `json:"image,omitempty"`
}

// ParsedTime 解析服务端时间戳，解析失败时返回零值
func (s *ServerMessage) ParsedTime() time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ToMessage 转换为本地消息格式
func (s *ServerMessage) ToMessage() Message {
	return Message{
		Role:          s.Role,
		Content:       s.Content,
		ResponseImage: s.Image,
		ObjectName:    s.ObjectName,
		Timestamp:     s.ParsedTime(),
	}
}

// SelectedItem 报告选择项，ID 必须能稳定映射回原始消息，
// 以保证两次 toggle 之后选择集合不变
type SelectedItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // message | image
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ItemTypeMessage = "message"
	ItemTypeImage   = "image"
)

// GreeningElement 绿化定价行项，Total 始终由 Quantity × PricePerUnit 重新计算
type GreeningElement struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Total        decimal.Decimal `json:"total"`
	IsCustom     bool            `json:"is_custom"`
}

// AdditionalCost 定价方案中的附加费用行
type AdditionalCost struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// PricingSchema 报告使用的定价方案
type PricingSchema struct {
	BasePrice          decimal.Decimal  `json:"base_price"`
	AdditionalCosts    []AdditionalCost `json:"additional_costs"`
	TotalPrice         decimal.Decimal  `json:"total_price"`
	Currency           string           `json:"currency"`
	Notes              string           `json:"notes"`
	EstimatedTimeframe string           `json:"estimated_timeframe"`
}

// User 已登录用户的最小画像（来自 Google OAuth userinfo）
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	Premium bool   `json:"premium"`
}

// DeriveTitle 根据首条用户消息推导会话标题：
// 取首行前 20 个字符，消息超长时追加省略号
func DeriveTitle(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	title := firstLine
	if runes := []rune(firstLine); len(runes) > 20 {
		title = string(runes[:20])
	}
	if len([]rune(content)) > 20 {
		title += "..."
	}
	return title
}
