package storage

import (
	"greenly-backend/internal/model"
)

type Storage interface {
	// 会话管理
	CreateChat(chat *model.Chat) error
	GetChat(chatID string) (*model.Chat, error)
	UpdateChat(chat *model.Chat) error
	DeleteChat(chatID string) error
	ListChats(ownerID string) ([]*model.Chat, error)

	// 消息管理
	AppendMessage(chatID string, message model.Message) error
	// ReplaceMessages 用服务端历史整体覆盖本地消息，同时把会话标记为已同步。
	// 对账永远是整体替换，绝不做增量合并
	ReplaceMessages(chatID string, messages []model.Message) error
	GetMessages(chatID string) ([]model.Message, error)

	// 存储管理
	Init() error
	Close() error
	Backup() error
}
