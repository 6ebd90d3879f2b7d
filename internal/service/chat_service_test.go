package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greenly-backend/internal/backend"
	"greenly-backend/internal/cache"
	"greenly-backend/internal/model"
	"greenly-backend/internal/storage"
)

func newTestService(t *testing.T, backendURL string) *ChatService {
	t.Helper()

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Init())

	client := backend.New(backendURL, 2*time.Second)
	return NewChatService(store, client, cache.New(false, "", "", 0))
}

func signIn(svc *ChatService, userKey, googleID string) {
	svc.SetAuthenticated(userKey, &model.User{ID: googleID, Email: googleID + "@example.com"})
}

func serverMsg(chatID, role, content, ts string) model.ServerMessage {
	return model.ServerMessage{ChatID: chatID, Role: role, Content: content, Timestamp: ts}
}

func TestCreateNewChatUnauthenticatedInjectsGreeting(t *testing.T) {
	svc := newTestService(t, "")
	engine := svc.Session("u1")

	chatID, err := engine.CreateNewChat(context.Background(), "", "")
	require.NoError(t, err)
	require.NotEmpty(t, chatID)

	chat, err := svc.Storage().GetChat(chatID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(chat.Title, "New Chat "))
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, model.RoleAssistant, chat.Messages[0].Role)
	assert.Contains(t, chat.Messages[0].Content, "Sign in")
	assert.Equal(t, chatID, engine.ActiveChat())
	assert.True(t, engine.InitialMode())
}

func TestFetchChatHistoryReplacesLocalMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g1", r.URL.Query().Get("userId"))
		json.NewEncoder(w).Encode([]model.ServerMessage{
			serverMsg("c1", model.RoleUser, "server one", "2026-08-01T10:00:00Z"),
			serverMsg("c1", model.RoleAssistant, "server two", "2026-08-01T10:00:05Z"),
			serverMsg("c1", model.RoleUser, "server three", "2026-08-01T10:01:00Z"),
		})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID:      "c1",
		OwnerID: "u1",
		Title:   "t",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "local one"},
			{Role: model.RoleAssistant, Content: "local two"},
		},
		CreatedAt: time.Now(),
		State:     model.SyncPending,
	}))

	engine.FetchChatHistory(context.Background(), "c1")

	chat, err := svc.Storage().GetChat("c1")
	require.NoError(t, err)

	require.Len(t, chat.Messages, 3)
	assert.Equal(t, "server one", chat.Messages[0].Content)
	assert.Equal(t, "server two", chat.Messages[1].Content)
	assert.Equal(t, "server three", chat.Messages[2].Content)
	assert.Equal(t, model.SyncSynced, chat.State)
	assert.Empty(t, engine.Err())
}

func TestFetchChatHistorySyncedShortCircuits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]model.ServerMessage{
			serverMsg("c1", model.RoleUser, "hello", "2026-08-01T10:00:00Z"),
		})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "c1", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
	}))

	engine.FetchChatHistory(context.Background(), "c1")
	engine.FetchChatHistory(context.Background(), "c1")
	engine.FetchChatHistory(context.Background(), "c1")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchChatHistoryFailureFallsBackToGreeting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "c1", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
	}))

	engine.FetchChatHistory(context.Background(), "c1")

	chat, err := svc.Storage().GetChat("c1")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, model.RoleAssistant, chat.Messages[0].Role)
	assert.Contains(t, chat.Messages[0].Content, "How can I help")
	assert.Equal(t, "Failed to load chat history", engine.Err())
}

func TestFetchChatHistoryEmptyIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]model.ServerMessage{})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "c1", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
	}))

	engine.FetchChatHistory(context.Background(), "c1")

	chat, err := svc.Storage().GetChat("c1")
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, model.RoleAssistant, chat.Messages[0].Role)
	assert.Empty(t, engine.Err())
}

func TestSendMessageUnauthenticatedSkipsNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "c1", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
	}))

	reply := engine.SendMessageToServer(context.Background(), "c1", model.Message{
		Role: model.RoleUser, Content: "hello",
	})

	require.NotNil(t, reply)
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.NotEmpty(t, reply.Content)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSendMessageFailureReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "c1", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
	}))

	reply := engine.SendMessageToServer(context.Background(), "c1", model.Message{
		Role: model.RoleUser, Content: "hello",
	})

	assert.Nil(t, reply)
	assert.Equal(t, "Failed to send message", engine.Err())
}

func TestSendMessageIncludesRoleAndContentHistory(t *testing.T) {
	var got backend.SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(serverMsg("c1", model.RoleAssistant, "reply", "2026-08-01T10:00:00Z"))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "c1", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "first", Image: "data:image/png;base64,xxx"},
			{Role: model.RoleAssistant, Content: "second"},
		},
	}))

	reply := engine.SendMessageToServer(context.Background(), "c1", model.Message{
		Role: model.RoleUser, Content: "third",
	})

	require.NotNil(t, reply)
	assert.Equal(t, "reply", reply.Content)

	require.Len(t, got.ChatHistory, 2)
	assert.Equal(t, backend.HistoryEntry{Role: model.RoleUser, Content: "first"}, got.ChatHistory[0])
	assert.Equal(t, backend.HistoryEntry{Role: model.RoleAssistant, Content: "second"}, got.ChatHistory[1])
	assert.Equal(t, "g1", got.UserID)
}

func TestLoadUserChatsGroupsAndSorts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 两个会话的消息交错且乱序返回
		json.NewEncoder(w).Encode([]model.ServerMessage{
			serverMsg("old", model.RoleAssistant, "old reply", "2026-07-01T09:00:10Z"),
			serverMsg("new", model.RoleUser, "this is a rather long first message", "2026-07-02T12:00:00Z"),
			serverMsg("old", model.RoleUser, "short", "2026-07-01T09:00:00Z"),
			serverMsg("new", model.RoleAssistant, "new reply", "2026-07-02T12:00:10Z"),
		})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, engine.LoadUserChats(context.Background()))

	chats, err := engine.Chats()
	require.NoError(t, err)
	require.Len(t, chats, 2)

	// 新会话在前
	assert.Equal(t, "new", chats[0].ID)
	assert.Equal(t, "old", chats[1].ID)

	// 组内按时间升序
	require.Len(t, chats[1].Messages, 2)
	assert.Equal(t, "short", chats[1].Messages[0].Content)
	assert.Equal(t, "old reply", chats[1].Messages[1].Content)

	// 标题取自首条用户消息
	assert.Equal(t, "short", chats[1].Title)
	assert.Equal(t, "this is a rather lon...", chats[0].Title)

	// 最新会话被激活
	assert.Equal(t, "new", engine.ActiveChat())
}

func TestLoadUserChatsSingleFlight(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode([]model.ServerMessage{
			serverMsg("c1", model.RoleUser, "hi", "2026-07-01T09:00:00Z"),
		})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.LoadUserChats(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// 成功之后的重复调用也是空操作
	require.NoError(t, engine.LoadUserChats(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// 登录态迁移复位闩锁
	svc.SetAuthenticated("u1", nil)
	signIn(svc, "u1", "g1")
	require.NoError(t, engine.LoadUserChats(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBootstrapCreatesChatAtMostOnce(t *testing.T) {
	svc := newTestService(t, "")
	engine := svc.Session("u1")

	first, err := engine.Bootstrap(context.Background())
	require.NoError(t, err)
	second, err := engine.Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	chats, err := engine.Chats()
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestDeleteActiveChatNeverLeavesZeroChats(t *testing.T) {
	svc := newTestService(t, "")
	engine := svc.Session("u1")

	ctx := context.Background()
	first, err := engine.CreateNewChat(ctx, "", "")
	require.NoError(t, err)
	second, err := engine.CreateNewChat(ctx, "", "")
	require.NoError(t, err)

	// 删除激活会话，剩下的那个被激活
	require.NoError(t, engine.DeleteChat(ctx, second))
	assert.Equal(t, first, engine.ActiveChat())

	// 最后一个也删掉，引擎合成新会话
	require.NoError(t, engine.DeleteChat(ctx, first))

	chats, err := engine.Chats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.NotEqual(t, first, chats[0].ID)
	assert.Equal(t, chats[0].ID, engine.ActiveChat())
	assert.True(t, engine.InitialMode())
}

func TestDeleteInactiveChatKeepsActive(t *testing.T) {
	svc := newTestService(t, "")
	engine := svc.Session("u1")

	ctx := context.Background()
	first, err := engine.CreateNewChat(ctx, "", "")
	require.NoError(t, err)
	second, err := engine.CreateNewChat(ctx, "", "")
	require.NoError(t, err)

	require.NoError(t, engine.DeleteChat(ctx, first))
	assert.Equal(t, second, engine.ActiveChat())
}

func TestSwitchChatSkipsFetchWhenBuffered(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]model.ServerMessage{})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "buffered", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncSynced,
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	}))
	require.NoError(t, svc.Storage().CreateChat(&model.Chat{
		ID: "empty", OwnerID: "u1", Title: "t", CreatedAt: time.Now(), State: model.SyncPending,
	}))

	require.NoError(t, engine.SwitchChat(context.Background(), "buffered"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.False(t, engine.InitialMode())

	require.NoError(t, engine.SwitchChat(context.Background(), "empty"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSwitchChatUnknownIDFails(t *testing.T) {
	svc := newTestService(t, "")
	engine := svc.Session("u1")

	err := engine.SwitchChat(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSetAuthenticatedIsIdempotent(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]model.ServerMessage{})
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)
	signIn(svc, "u1", "g1")
	engine := svc.Session("u1")

	require.NoError(t, engine.LoadUserChats(context.Background()))

	// 同一个用户重复设置不会复位闩锁
	signIn(svc, "u1", "g1")
	require.NoError(t, engine.LoadUserChats(context.Background()))

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
