package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"greenly-backend/internal/model"
	"greenly-backend/internal/service"
)

// 发送失败时由这里追加的兜底错误消息，引擎本身不生成错误内容
const sendErrorReply = "Sorry, I encountered an error. Please try again."

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// CreateChat 新建会话。允许空请求体，主图与对象名都可选
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req model.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = model.CreateChatRequest{}
	}

	engine := h.chatService.Session(userKey(c))

	chatID, err := engine.CreateNewChat(c.Request.Context(), req.MainImage, req.ObjectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chatService.Storage().GetChat(chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.ChatResponse{
		ChatID:       chat.ID,
		Title:        chat.Title,
		CreatedAt:    chat.CreatedAt,
		Messages:     chat.Messages,
		State:        chat.State,
		MessageCount: len(chat.Messages),
	})
}

// SwitchChat 切换激活会话
func (h *ChatHandler) SwitchChat(c *gin.Context) {
	var req model.SwitchChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engine := h.chatService.Session(userKey(c))

	if err := engine.SwitchChat(c.Request.Context(), req.ChatID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chatService.Storage().GetChat(req.ChatID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.ChatResponse{
		ChatID:       chat.ID,
		Title:        chat.Title,
		CreatedAt:    chat.CreatedAt,
		Messages:     chat.Messages,
		State:        chat.State,
		MessageCount: len(chat.Messages),
	})
}

// GetChat 查询单个会话
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID := c.Param("chat_id")

	chat, err := h.chatService.Storage().GetChat(chatID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.ChatResponse{
		ChatID:       chat.ID,
		Title:        chat.Title,
		CreatedAt:    chat.CreatedAt,
		Messages:     chat.Messages,
		State:        chat.State,
		MessageCount: len(chat.Messages),
	})
}

// ListChats 会话列表，新的在前
func (h *ChatHandler) ListChats(c *gin.Context) {
	engine := h.chatService.Session(userKey(c))

	if err := engine.LoadUserChats(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// 首次挂载且没有任何会话时自动建一个
	if _, err := engine.Bootstrap(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	chats, err := engine.Chats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	active := engine.ActiveChat()
	summaries := make([]model.ChatSummary, len(chats))
	for i, chat := range chats {
		summaries[i] = model.ChatSummary{
			ChatID:       chat.ID,
			Title:        chat.Title,
			CreatedAt:    chat.CreatedAt,
			MessageCount: len(chat.Messages),
			Active:       chat.ID == active,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"chats":        summaries,
		"active_chat":  active,
		"initial_mode": engine.InitialMode(),
	})
}

// SendMessage 乐观追加用户消息，再同步发给后端。
// 后端失败时本地追加兜底错误消息，HTTP 层仍然返回 200
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" && req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message requires content or image"})
		return
	}

	engine := h.chatService.Session(userKey(c))

	chat, err := h.chatService.Storage().GetChat(req.ChatID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	userMsg := model.Message{
		Role:      model.RoleUser,
		Content:   req.Content,
		Image:     req.Image,
		Timestamp: time.Now(),
	}
	if err := engine.AddMessageToChat(req.ChatID, userMsg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// 首条用户消息顺带推导标题
	if firstUserMessage(chat.Messages) && req.Content != "" {
		engine.UpdateChatTitle(req.ChatID, req.Content)
	}

	reply := engine.SendMessageToServer(c.Request.Context(), req.ChatID, userMsg)
	if reply == nil {
		fallback := model.Message{
			Role:      model.RoleAssistant,
			Content:   sendErrorReply,
			Timestamp: time.Now(),
		}
		engine.AddMessageToChat(req.ChatID, fallback)
		c.JSON(http.StatusOK, model.SendMessageResponse{
			Message: &fallback,
			Error:   engine.Err(),
		})
		return
	}

	engine.AddMessageToChat(req.ChatID, *reply)
	c.JSON(http.StatusOK, model.SendMessageResponse{Message: reply})
}

// firstUserMessage 追加前的历史里是否还没有用户消息
func firstUserMessage(messages []model.Message) bool {
	for _, m := range messages {
		if m.Role == model.RoleUser {
			return false
		}
	}
	return true
}

// DeleteChat 删除会话，激活会话被删时引擎保证列表不为空
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chatID := c.Param("chat_id")

	engine := h.chatService.Session(userKey(c))

	if err := engine.DeleteChat(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Chat deleted successfully",
		"active_chat": engine.ActiveChat(),
	})
}

// UpdateChatTitle 按消息内容重新推导标题
func (h *ChatHandler) UpdateChatTitle(c *gin.Context) {
	chatID := c.Param("chat_id")

	var req model.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engine := h.chatService.Session(userKey(c))

	if err := engine.UpdateChatTitle(chatID, req.Content); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Title updated successfully"})
}
