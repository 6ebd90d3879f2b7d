package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"greenly-backend/internal/model"
	"greenly-backend/pkg/logger"
)

// DiskStorage JSON 文件存储：每个会话一个文件，外加一个索引文件。
// 浏览器端实现把持久化交给远端后端，这里在服务端补上同样的能力
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*model.Chat
	cacheSize int
}

type ChatIndex struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.Chat),
		cacheSize: cacheSize,
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Info("Disk storage initialized successfully")
	return nil
}

func (d *DiskStorage) Close() error {
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "chats"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) indexPath() string {
	return filepath.Join(d.dataDir, "chats.json")
}

func (d *DiskStorage) chatPath(chatID string) string {
	return filepath.Join(d.dataDir, "chats", chatID+".json")
}

func (d *DiskStorage) loadIndex() error {
	if _, err := os.Stat(d.indexPath()); os.IsNotExist(err) {
		return d.saveIndex([]*ChatIndex{})
	}

	data, err := os.ReadFile(d.indexPath())
	if err != nil {
		return err
	}

	var indexes []*ChatIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return err
	}

	return nil
}

func (d *DiskStorage) saveIndex(indexes []*ChatIndex) error {
	data, err := json.MarshalIndent(indexes, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(d.indexPath(), data, 0644)
}

func (d *DiskStorage) readIndex() ([]*ChatIndex, error) {
	data, err := os.ReadFile(d.indexPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	var indexes []*ChatIndex
	if err := json.Unmarshal(data, &indexes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	return indexes, nil
}

func (d *DiskStorage) writeChat(chat *model.Chat) error {
	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	if err := os.WriteFile(d.chatPath(chat.ID), data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.cacheChat(chat)
	return nil
}

func (d *DiskStorage) readChat(chatID string) (*model.Chat, error) {
	if chat, ok := d.cache[chatID]; ok {
		return cloneChat(chat), nil
	}

	data, err := os.ReadFile(d.chatPath(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	var chat model.Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	d.cacheChat(&chat)
	return cloneChat(&chat), nil
}

// cacheChat 简单的容量上限淘汰：超过上限时随机清掉一个
func (d *DiskStorage) cacheChat(chat *model.Chat) {
	if d.cacheSize <= 0 {
		return
	}
	if len(d.cache) >= d.cacheSize {
		for id := range d.cache {
			delete(d.cache, id)
			break
		}
	}
	d.cache[chat.ID] = cloneChat(chat)
}

func (d *DiskStorage) CreateChat(chat *model.Chat) error {
	if chat == nil || chat.ID == "" {
		return ErrInvalidData
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readChat(chat.ID); err == nil {
		return ErrChatExists
	}

	if err := d.writeChat(chat); err != nil {
		return err
	}

	indexes, err := d.readIndex()
	if err != nil {
		return err
	}

	indexes = append(indexes, &ChatIndex{
		ID:        chat.ID,
		OwnerID:   chat.OwnerID,
		Title:     chat.Title,
		CreatedAt: chat.CreatedAt,
	})

	return d.saveIndex(indexes)
}

// readChat 会回填缓存，所有读路径也要拿写锁
func (d *DiskStorage) GetChat(chatID string) (*model.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.readChat(chatID)
}

func (d *DiskStorage) UpdateChat(chat *model.Chat) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readChat(chat.ID); err != nil {
		return err
	}

	if err := d.writeChat(chat); err != nil {
		return err
	}

	indexes, err := d.readIndex()
	if err != nil {
		return err
	}

	for _, idx := range indexes {
		if idx.ID == chat.ID {
			idx.Title = chat.Title
			break
		}
	}

	return d.saveIndex(indexes)
}

func (d *DiskStorage) DeleteChat(chatID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readChat(chatID); err != nil {
		return err
	}

	delete(d.cache, chatID)
	if err := os.Remove(d.chatPath(chatID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	indexes, err := d.readIndex()
	if err != nil {
		return err
	}

	filtered := indexes[:0]
	for _, idx := range indexes {
		if idx.ID != chatID {
			filtered = append(filtered, idx)
		}
	}

	return d.saveIndex(filtered)
}

func (d *DiskStorage) ListChats(ownerID string) ([]*model.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	indexes, err := d.readIndex()
	if err != nil {
		return nil, err
	}

	chats := make([]*model.Chat, 0, len(indexes))
	for _, idx := range indexes {
		if ownerID != "" && idx.OwnerID != ownerID {
			continue
		}
		chat, err := d.readChat(idx.ID)
		if err != nil {
			logger.Warnf("Skip unreadable chat %s: %v", idx.ID, err)
			continue
		}
		chats = append(chats, chat)
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})

	return chats, nil
}

func (d *DiskStorage) AppendMessage(chatID string, message model.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	chat, err := d.readChat(chatID)
	if err != nil {
		return err
	}

	chat.Messages = append(chat.Messages, message)
	return d.writeChat(chat)
}

func (d *DiskStorage) ReplaceMessages(chatID string, messages []model.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	chat, err := d.readChat(chatID)
	if err != nil {
		return err
	}

	chat.Messages = append([]model.Message(nil), messages...)
	chat.State = model.SyncSynced
	return d.writeChat(chat)
}

func (d *DiskStorage) GetMessages(chatID string) ([]model.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	chat, err := d.readChat(chatID)
	if err != nil {
		return nil, err
	}

	return chat.Messages, nil
}

func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(d.indexPath())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	backupPath := filepath.Join(d.dataDir, "backup",
		fmt.Sprintf("chats-%s.json", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Chat index backed up to %s", backupPath)
	return nil
}
