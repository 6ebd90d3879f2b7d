package storage

import (
	"sync"

	"greenly-backend/internal/model"
)

// MemoryStorage 纯内存实现。所有写操作整体替换 map 中的会话值，
// 读操作返回副本，调用方拿不到内部指针
type MemoryStorage struct {
	chats map[string]*model.Chat
	mu    sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		chats: make(map[string]*model.Chat),
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) CreateChat(chat *model.Chat) error {
	if chat == nil || chat.ID == "" {
		return ErrInvalidData
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[chat.ID]; exists {
		return ErrChatExists
	}

	m.chats[chat.ID] = cloneChat(chat)
	return nil
}

func (m *MemoryStorage) GetChat(chatID string) (*model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return nil, ErrChatNotFound
	}

	return cloneChat(chat), nil
}

func (m *MemoryStorage) UpdateChat(chat *model.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[chat.ID]; !exists {
		return ErrChatNotFound
	}

	m.chats[chat.ID] = cloneChat(chat)
	return nil
}

func (m *MemoryStorage) DeleteChat(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.chats[chatID]; !exists {
		return ErrChatNotFound
	}

	delete(m.chats, chatID)
	return nil
}

func (m *MemoryStorage) ListChats(ownerID string) ([]*model.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chats := make([]*model.Chat, 0, len(m.chats))
	for _, chat := range m.chats {
		if ownerID != "" && chat.OwnerID != ownerID {
			continue
		}
		chats = append(chats, cloneChat(chat))
	}

	return chats, nil
}

func (m *MemoryStorage) AppendMessage(chatID string, message model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return ErrChatNotFound
	}

	// 复制-替换而不是原地追加
	updated := cloneChat(chat)
	updated.Messages = append(updated.Messages, message)
	m.chats[chatID] = updated
	return nil
}

func (m *MemoryStorage) ReplaceMessages(chatID string, messages []model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return ErrChatNotFound
	}

	updated := cloneChat(chat)
	updated.Messages = append([]model.Message(nil), messages...)
	updated.State = model.SyncSynced
	m.chats[chatID] = updated
	return nil
}

func (m *MemoryStorage) GetMessages(chatID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chat, exists := m.chats[chatID]
	if !exists {
		return nil, ErrChatNotFound
	}

	return append([]model.Message(nil), chat.Messages...), nil
}

func cloneChat(chat *model.Chat) *model.Chat {
	c := *chat
	c.Messages = append([]model.Message(nil), chat.Messages...)
	return &c
}
