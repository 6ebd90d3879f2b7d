package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"greenly-backend/internal/model"
	"greenly-backend/internal/utils"
)

// Client 封装远端聊天后端的三个接口。后端是消息历史的权威数据源，
// 本服务只做对账与缓存
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    utils.NewHTTPClient(timeout),
	}
}

// Configured 是否配置了远端后端。未配置时上层走 mock 通道
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// HistoryEntry POST /chat 里随消息附带的历史（只含角色与文本，不带图片）
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type SendRequest struct {
	ChatID      string         `json:"chat_id"`
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	Image       string         `json:"image,omitempty"`
	ObjectName  string         `json:"object_name,omitempty"`
	ChatHistory []HistoryEntry `json:"chat_history"`
	UserID      string         `json:"user_id,omitempty"`
}

// FetchHistory 拉取某个会话的全部历史，按服务端给出的顺序返回
func (c *Client) FetchHistory(ctx context.Context, chatID, userID string) ([]model.ServerMessage, error) {
	path := fmt.Sprintf("/chat/%s?userId=%s", url.PathEscape(chatID), url.QueryEscape(userID))

	var messages []model.ServerMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// SendMessage 提交一条消息并取回助手回复
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*model.ServerMessage, error) {
	var reply model.ServerMessage
	if err := c.doJSON(ctx, http.MethodPost, "/chat", req, &reply); err != nil {
		return nil, err
	}

	return &reply, nil
}

// ListUserMessages 拉取用户所有会话的消息平铺列表，由调用方按 chat_id 分组
func (c *Client) ListUserMessages(ctx context.Context, userID string) ([]model.ServerMessage, error) {
	path := fmt.Sprintf("/user/%s", url.PathEscape(userID))

	var messages []model.ServerMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
