package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenly-backend/internal/backend"
	"greenly-backend/internal/cache"
	"greenly-backend/internal/model"
	"greenly-backend/internal/storage"
	"greenly-backend/pkg/logger"
)

// 助手的固定话术。历史为空或拉取失败时注入问候语，
// 未登录发送时返回本地回复，不触网
const (
	greetingSignIn  = "Hello! I'm Greenly, your eco-friendly AI assistant. Sign in to save your chat history."
	greetingDefault = "Hello! I'm Greenly, your eco-friendly AI assistant. How can I help you today?"
	cannedReply     = "Thanks for trying Greenly! Sign in to get personalized eco-friendly suggestions for your space."
	mockReply       = "Here's an idea: adding native plants and a small rain garden would green this space nicely."

	errLoadHistory = "Failed to load chat history"
	errSendMessage = "Failed to send message"
	errLoadChats   = "Failed to load your chats"
)

// ChatService 管理所有用户的会话引擎。存储、远端后端与缓存
// 在启动时注入，每个用户一个 Engine
type ChatService struct {
	storage storage.Storage
	backend *backend.Client
	cache   *cache.Cache

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewChatService(store storage.Storage, client *backend.Client, c *cache.Cache) *ChatService {
	return &ChatService{
		storage: store,
		backend: client,
		cache:   c,
		engines: make(map[string]*Engine),
	}
}

// Session 返回某用户的会话引擎，不存在则创建
func (s *ChatService) Session(userKey string) *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.engines[userKey]; ok {
		return e
	}

	e := &Engine{
		svc:         s,
		ownerID:     userKey,
		initialMode: true,
	}
	s.engines[userKey] = e
	return e
}

// SetAuthenticated 登录/登出迁移。幂等：登录态没有实际变化时什么都不做，
// 会话列表的加载闩锁只在真正的迁移上复位
func (s *ChatService) SetAuthenticated(userKey string, user *model.User) {
	e := s.Session(userKey)

	e.mu.Lock()
	defer e.mu.Unlock()

	if user != nil {
		if e.authenticated && e.userID == user.ID {
			return
		}
		e.authenticated = true
		e.userID = user.ID
	} else {
		if !e.authenticated {
			return
		}
		e.authenticated = false
		e.userID = ""
	}
	e.chatsLoaded = false
}

func (s *ChatService) Storage() storage.Storage {
	return s.storage
}

// Engine 单个用户的会话同步引擎。本地状态只通过这里的操作变更，
// 每次变更都是整体替换而不是原地修改
type Engine struct {
	svc *ChatService

	mu            sync.Mutex
	ownerID       string
	authenticated bool
	userID        string

	activeChat  string
	initialMode bool
	lastErr     string

	isLoading      bool
	isLoadingChats bool

	initialized  bool // 首次挂载自动建会话的一次性闩锁
	loadingChats bool // loadUserChats 的在途闩锁
	chatsLoaded  bool // 成功加载过一次之后不再重复加载，登录态变化时复位
}

// Bootstrap 首次挂载时调用：没有任何会话且列表尚未加载完成时，
// 自动建一个默认会话。闩锁保证异步加载期间反复渲染也只会建一次
func (e *Engine) Bootstrap(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.initialized {
		active := e.activeChat
		e.mu.Unlock()
		return active, nil
	}
	e.initialized = true
	e.mu.Unlock()

	chats, err := e.svc.storage.ListChats(e.ownerID)
	if err != nil {
		return "", fmt.Errorf("list chats: %w", err)
	}
	if len(chats) > 0 {
		e.mu.Lock()
		if e.activeChat == "" {
			e.activeChat = newestChat(chats).ID
			e.initialMode = false
		}
		active := e.activeChat
		e.mu.Unlock()
		return active, nil
	}

	return e.CreateNewChat(ctx, "", "")
}

// CreateNewChat 建新会话：生成 id、默认标题，置为激活并进入初始上传模式，
// 然后触发一次历史拉取
func (e *Engine) CreateNewChat(ctx context.Context, mainImage, objectName string) (string, error) {
	chatID := uuid.New().String()
	now := time.Now()

	chat := &model.Chat{
		ID:         chatID,
		OwnerID:    e.ownerID,
		Title:      "New Chat " + now.Format("Jan 2, 3:04 PM"),
		CreatedAt:  now,
		Messages:   make([]model.Message, 0),
		MainImage:  mainImage,
		ObjectName: objectName,
		State:      model.SyncPending,
	}

	if err := e.svc.storage.CreateChat(chat); err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	e.mu.Lock()
	e.activeChat = chatID
	e.initialMode = true
	e.lastErr = ""
	e.mu.Unlock()

	e.FetchChatHistory(ctx, chatID)

	return chatID, nil
}

// SwitchChat 切换到已有会话，总是进入聊天模式。
// 已经有缓冲消息的会话不再重复拉取，首次对账结果生效
func (e *Engine) SwitchChat(ctx context.Context, chatID string) error {
	chat, err := e.svc.storage.GetChat(chatID)
	if err != nil {
		return fmt.Errorf("switch chat: %w", err)
	}

	e.mu.Lock()
	e.activeChat = chatID
	e.initialMode = false
	e.lastErr = ""
	e.mu.Unlock()

	if len(chat.Messages) > 0 {
		return nil
	}

	e.FetchChatHistory(ctx, chatID)
	return nil
}

// FetchChatHistory 拉取并对账一个会话的历史。
// 结果要么是服务端历史的整体覆盖，要么是合成的问候语，绝不部分合并。
// 已同步过的会话直接短路，乐观写入的 pending 会话仍会触发覆盖
func (e *Engine) FetchChatHistory(ctx context.Context, chatID string) {
	e.mu.Lock()
	authenticated, userID := e.authenticated, e.userID
	e.mu.Unlock()

	if !authenticated {
		// 登录是服务端历史的前提，本地注入问候语即可
		e.appendGreeting(chatID, greetingSignIn)
		return
	}

	chat, err := e.svc.storage.GetChat(chatID)
	if err != nil {
		logger.Warnf("Fetch history for unknown chat %s: %v", chatID, err)
		return
	}
	if chat.State == model.SyncSynced && len(chat.Messages) > 0 {
		return
	}

	if !e.svc.backend.Configured() {
		// 没有远端后端，按空历史处理
		e.appendGreeting(chatID, greetingDefault)
		return
	}

	e.setLoading(true)
	defer e.setLoading(false)

	serverMessages, ok := e.svc.cache.GetChatHistory(ctx, chatID)
	if !ok {
		serverMessages, err = e.svc.backend.FetchHistory(ctx, chatID, userID)
		if err != nil {
			logger.Errorf("Fetch chat history failed for %s: %v", chatID, err)
			e.setError(errLoadHistory)
			e.appendGreeting(chatID, greetingDefault)
			return
		}
		if len(serverMessages) > 0 {
			e.svc.cache.SetChatHistory(ctx, chatID, serverMessages)
		}
	}

	if len(serverMessages) == 0 {
		// 服务端没有历史，按新会话处理
		e.appendGreeting(chatID, greetingDefault)
		return
	}

	messages := make([]model.Message, len(serverMessages))
	for i, sm := range serverMessages {
		messages[i] = sm.ToMessage()
	}

	if err := e.svc.storage.ReplaceMessages(chatID, messages); err != nil {
		logger.Errorf("Replace messages failed for %s: %v", chatID, err)
		e.setError(errLoadHistory)
	}
}

// SendMessageToServer 把消息连同完整历史（仅角色与文本）发给后端。
// 未登录走本地降级回复，不触网。任何失败都返回 nil，
// 由调用方负责追加兜底的错误消息，引擎自身不往记录里塞错误内容
func (e *Engine) SendMessageToServer(ctx context.Context, chatID string, message model.Message) *model.Message {
	e.mu.Lock()
	e.lastErr = ""
	authenticated, userID := e.authenticated, e.userID
	e.mu.Unlock()

	if !authenticated {
		reply := model.Message{
			Role:      model.RoleAssistant,
			Content:   cannedReply,
			Timestamp: time.Now(),
		}
		return &reply
	}

	if !e.svc.backend.Configured() {
		// mock 通道：本地直接给出回复
		reply := model.Message{
			Role:      model.RoleAssistant,
			Content:   mockReply,
			Timestamp: time.Now(),
		}
		return &reply
	}

	history := e.historyFor(chatID)

	req := backend.SendRequest{
		ChatID:      chatID,
		Role:        message.Role,
		Content:     message.Content,
		Image:       message.Image,
		ObjectName:  message.ObjectName,
		ChatHistory: history,
		UserID:      userID,
	}

	reply, err := e.svc.backend.SendMessage(ctx, req)
	if err != nil {
		logger.Errorf("Send message failed for chat %s: %v", chatID, err)
		e.setError(errSendMessage)
		return nil
	}

	// 写路径变更了服务端状态，对应缓存作废
	e.svc.cache.InvalidateChat(ctx, chatID)
	e.svc.cache.InvalidateUserChats(ctx, userID)

	msg := reply.ToMessage()
	return &msg
}

// historyFor 序列化会话历史，图片一律剔除
func (e *Engine) historyFor(chatID string) []backend.HistoryEntry {
	messages, err := e.svc.storage.GetMessages(chatID)
	if err != nil {
		return nil
	}

	history := make([]backend.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		history = append(history, backend.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return history
}

// LoadUserChats 拉取用户的全部历史消息并按会话分组重建本地列表。
// 在途闩锁保证同一时刻至多一次调用；成功之后不再重复加载，
// 闩锁只在登录态变化时复位
func (e *Engine) LoadUserChats(ctx context.Context) error {
	e.mu.Lock()
	if !e.authenticated || e.loadingChats || e.chatsLoaded {
		e.mu.Unlock()
		return nil
	}
	if !e.svc.backend.Configured() {
		e.chatsLoaded = true
		e.mu.Unlock()
		return nil
	}
	e.loadingChats = true
	e.isLoadingChats = true
	userID := e.userID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.loadingChats = false
		e.isLoadingChats = false
		e.mu.Unlock()
	}()

	serverMessages, ok := e.svc.cache.GetUserChats(ctx, userID)
	if !ok {
		var err error
		serverMessages, err = e.svc.backend.ListUserMessages(ctx, userID)
		if err != nil {
			logger.Errorf("Load user chats failed for %s: %v", userID, err)
			e.setError(errLoadChats)
			return err
		}
		if len(serverMessages) > 0 {
			e.svc.cache.SetUserChats(ctx, userID, serverMessages)
		}
	}

	chats := groupIntoChats(serverMessages, e.ownerID)

	for _, chat := range chats {
		existing, err := e.svc.storage.GetChat(chat.ID)
		if err == storage.ErrChatNotFound {
			if err := e.svc.storage.CreateChat(chat); err != nil {
				logger.Errorf("Create chat %s from history failed: %v", chat.ID, err)
			}
			continue
		}
		if err != nil {
			continue
		}
		// 已存在的会话用服务端历史整体覆盖
		existing.Title = chat.Title
		if err := e.svc.storage.UpdateChat(existing); err == nil {
			e.svc.storage.ReplaceMessages(chat.ID, chat.Messages)
		}
	}

	e.mu.Lock()
	e.chatsLoaded = true
	if e.activeChat == "" && len(chats) > 0 {
		e.activeChat = chats[0].ID
		e.initialMode = false
	}
	e.mu.Unlock()

	return nil
}

// groupIntoChats 按 chat_id 分组，组内按时间升序，
// 标题取首条用户消息，会话按创建时间从新到旧排列
func groupIntoChats(serverMessages []model.ServerMessage, ownerID string) []*model.Chat {
	groups := make(map[string][]model.ServerMessage)
	order := make([]string, 0)
	for _, sm := range serverMessages {
		if _, seen := groups[sm.ChatID]; !seen {
			order = append(order, sm.ChatID)
		}
		groups[sm.ChatID] = append(groups[sm.ChatID], sm)
	}

	chats := make([]*model.Chat, 0, len(order))
	for _, chatID := range order {
		group := groups[chatID]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ParsedTime().Before(group[j].ParsedTime())
		})

		messages := make([]model.Message, len(group))
		title := ""
		for i, sm := range group {
			messages[i] = sm.ToMessage()
			if title == "" && sm.Role == model.RoleUser {
				title = model.DeriveTitle(sm.Content)
			}
		}
		if title == "" {
			title = "New Chat"
		}

		chats = append(chats, &model.Chat{
			ID:        chatID,
			OwnerID:   ownerID,
			Title:     title,
			CreatedAt: group[0].ParsedTime(),
			Messages:  messages,
			State:     model.SyncSynced,
		})
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})

	return chats
}

// DeleteChat 只删本地状态。删除的是当前激活会话时，
// 激活剩余会话里最新的一个；一个不剩则合成新会话，
// 界面挂载期间列表永远不为空
func (e *Engine) DeleteChat(ctx context.Context, chatID string) error {
	if err := e.svc.storage.DeleteChat(chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	e.mu.Lock()
	wasActive := e.activeChat == chatID
	if wasActive {
		e.activeChat = ""
	}
	e.mu.Unlock()

	if !wasActive {
		return nil
	}

	remaining, err := e.svc.storage.ListChats(e.ownerID)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	if len(remaining) > 0 {
		e.mu.Lock()
		e.activeChat = newestChat(remaining).ID
		e.initialMode = false
		e.mu.Unlock()
		return nil
	}

	_, err = e.CreateNewChat(ctx, "", "")
	return err
}

// UpdateChatTitle 用首条用户消息推导标题，只应用一次
func (e *Engine) UpdateChatTitle(chatID, content string) error {
	chat, err := e.svc.storage.GetChat(chatID)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}

	chat.Title = model.DeriveTitle(content)
	if err := e.svc.storage.UpdateChat(chat); err != nil {
		return fmt.Errorf("update title: %w", err)
	}

	return nil
}

// AddMessageToChat 乐观追加：先写本地，网络往返随后对账
func (e *Engine) AddMessageToChat(chatID string, message model.Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	if err := e.svc.storage.AppendMessage(chatID, message); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (e *Engine) appendGreeting(chatID, content string) {
	err := e.svc.storage.AppendMessage(chatID, model.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Warnf("Append greeting to %s failed: %v", chatID, err)
	}
}

func (e *Engine) setLoading(v bool) {
	e.mu.Lock()
	e.isLoading = v
	e.mu.Unlock()
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
}

func newestChat(chats []*model.Chat) *model.Chat {
	newest := chats[0]
	for _, c := range chats[1:] {
		if c.CreatedAt.After(newest.CreatedAt) {
			newest = c
		}
	}
	return newest
}

// 只读访问器

func (e *Engine) Chats() ([]*model.Chat, error) {
	chats, err := e.svc.storage.ListChats(e.ownerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (e *Engine) CurrentChat() (*model.Chat, error) {
	e.mu.Lock()
	active := e.activeChat
	e.mu.Unlock()

	if active == "" {
		return nil, storage.ErrChatNotFound
	}
	return e.svc.storage.GetChat(active)
}

func (e *Engine) CurrentMessages() []model.Message {
	chat, err := e.CurrentChat()
	if err != nil {
		return nil
	}
	return chat.Messages
}

func (e *Engine) ActiveChat() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeChat
}

func (e *Engine) InitialMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialMode
}

func (e *Engine) SetInitialMode(v bool) {
	e.mu.Lock()
	e.initialMode = v
	e.mu.Unlock()
}

func (e *Engine) Err() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLoading
}

func (e *Engine) LoadingChats() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLoadingChats
}

func (e *Engine) Authenticated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authenticated
}
