package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"greenly-backend/internal/config"
	"greenly-backend/internal/model"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// 会话有效期，过期后要求重新登录
const sessionTTL = 7 * 24 * time.Hour

type session struct {
	user      model.User
	expiresAt time.Time
}

// AuthService Google OAuth 登录与内存会话表。
// 会话 id 写进 cookie，服务端只存最小用户画像
type AuthService struct {
	oauth *oauth2.Config

	mu       sync.RWMutex
	sessions map[string]session
}

func NewAuthService(cfg config.OAuthConfig) *AuthService {
	var oc *oauth2.Config
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		oc = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	return &AuthService{
		oauth:    oc,
		sessions: make(map[string]session),
	}
}

// Configured 是否配置了 OAuth 客户端
func (a *AuthService) Configured() bool {
	return a.oauth != nil
}

// AuthURL 生成带 state 的授权跳转地址
func (a *AuthService) AuthURL(state string) string {
	if a.oauth == nil {
		return ""
	}
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange 用授权码换 token 并拉取用户画像，成功后建立会话
func (a *AuthService) Exchange(ctx context.Context, code string) (string, *model.User, error) {
	if a.oauth == nil {
		return "", nil, fmt.Errorf("oauth not configured")
	}

	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange code: %w", err)
	}

	user, err := a.fetchUserInfo(ctx, token)
	if err != nil {
		return "", nil, err
	}

	sessionID := a.createSession(*user)
	return sessionID, user, nil
}

func (a *AuthService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*model.User, error) {
	client := a.oauth.Client(ctx, token)

	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}

	var user model.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("unmarshal userinfo: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("userinfo missing id")
	}
	return &user, nil
}

func (a *AuthService) createSession(user model.User) string {
	sessionID := uuid.New().String()

	a.mu.Lock()
	a.sessions[sessionID] = session{
		user:      user,
		expiresAt: time.Now().Add(sessionTTL),
	}
	a.mu.Unlock()

	return sessionID
}

// UserBySession 按会话 id 取用户，过期会话按不存在处理
func (a *AuthService) UserBySession(sessionID string) (*model.User, bool) {
	a.mu.RLock()
	s, ok := a.sessions[sessionID]
	a.mu.RUnlock()

	if !ok || time.Now().After(s.expiresAt) {
		return nil, false
	}

	user := s.user
	return &user, true
}

// Logout 销毁会话
func (a *AuthService) Logout(sessionID string) {
	a.mu.Lock()
	delete(a.sessions, sessionID)
	a.mu.Unlock()
}

// SetPremium Stripe webhook 回调里更新订阅状态
func (a *AuthService) SetPremium(userID string, premium bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, s := range a.sessions {
		if s.user.ID == userID {
			s.user.Premium = premium
			a.sessions[id] = s
		}
	}
}
