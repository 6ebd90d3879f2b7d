package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"greenly-backend/internal/model"
	"greenly-backend/pkg/logger"
)

// 按实体划分的键前缀与 TTL
const (
	chatPrefix        = "cache:chat:"
	userChatsPrefix   = "cache:user-chats:"
	sharedImagePrefix = "cache:shared-image:"

	chatTTL        = 24 * time.Hour
	userChatsTTL   = time.Hour
	sharedImageTTL = 7 * 24 * time.Hour
)

// Cache Redis 读穿缓存。句柄在启动时注入，所有错误只记日志不上抛：
// 缓存只是延迟优化，不参与正确性
type Cache struct {
	rdb *redis.Client
}

// New 建立 Redis 连接；enabled 为 false 时返回空缓存（永远 miss）
func New(enabled bool, addr, password string, db int) *Cache {
	if !enabled || addr == "" {
		return &Cache{}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warnf("Redis unreachable, cache disabled: %v", err)
		return &Cache{}
	}

	return &Cache{rdb: rdb}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

func (c *Cache) get(ctx context.Context, key string, out interface{}) bool {
	if !c.Enabled() {
		return false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("Cache get %s failed: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		logger.Warnf("Cache entry %s is corrupt, dropping: %v", key, err)
		c.delete(ctx, key)
		return false
	}

	return true
}

func (c *Cache) set(ctx context.Context, key string, val interface{}, ttl time.Duration) {
	if !c.Enabled() {
		return
	}

	data, err := json.Marshal(val)
	if err != nil {
		logger.Warnf("Cache marshal %s failed: %v", key, err)
		return
	}

	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Warnf("Cache set %s failed: %v", key, err)
	}
}

func (c *Cache) delete(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		logger.Warnf("Cache delete %s failed: %v", key, err)
	}
}

// 会话历史缓存

func (c *Cache) GetChatHistory(ctx context.Context, chatID string) ([]model.ServerMessage, bool) {
	var messages []model.ServerMessage
	ok := c.get(ctx, chatPrefix+chatID, &messages)
	return messages, ok
}

func (c *Cache) SetChatHistory(ctx context.Context, chatID string, messages []model.ServerMessage) {
	c.set(ctx, chatPrefix+chatID, messages, chatTTL)
}

func (c *Cache) InvalidateChat(ctx context.Context, chatID string) {
	c.delete(ctx, chatPrefix+chatID)
}

// 用户会话列表缓存

func (c *Cache) GetUserChats(ctx context.Context, userID string) ([]model.ServerMessage, bool) {
	var messages []model.ServerMessage
	ok := c.get(ctx, userChatsPrefix+userID, &messages)
	return messages, ok
}

func (c *Cache) SetUserChats(ctx context.Context, userID string, messages []model.ServerMessage) {
	c.set(ctx, userChatsPrefix+userID, messages, userChatsTTL)
}

func (c *Cache) InvalidateUserChats(ctx context.Context, userID string) {
	c.delete(ctx, userChatsPrefix+userID)
}

// 分享图片缓存

type SharedImage struct {
	Image      string    `json:"image"`
	ObjectName string    `json:"object_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Cache) GetSharedImage(ctx context.Context, shareID string) (*SharedImage, bool) {
	var img SharedImage
	if !c.get(ctx, sharedImagePrefix+shareID, &img) {
		return nil, false
	}
	return &img, true
}

func (c *Cache) SetSharedImage(ctx context.Context, shareID string, img SharedImage) {
	c.set(ctx, sharedImagePrefix+shareID, img, sharedImageTTL)
}
