package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"greenly-backend/internal/config"
	"greenly-backend/internal/service"
	"greenly-backend/pkg/logger"
)

const stateCookie = "greenly_oauth_state"

type AuthHandler struct {
	auth        *service.AuthService
	chatService *service.ChatService
	cfg         config.OAuthConfig
}

func NewAuthHandler(auth *service.AuthService, chatService *service.ChatService, cfg config.OAuthConfig) *AuthHandler {
	return &AuthHandler{
		auth:        auth,
		chatService: chatService,
		cfg:         cfg,
	}
}

// Login 生成 state 并跳转到 Google 授权页
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.auth.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sign-in is not configured"})
		return
	}

	state := uuid.New().String()
	c.SetCookie(stateCookie, state, 600, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)

	c.Redirect(http.StatusTemporaryRedirect, h.auth.AuthURL(state))
}

// Callback 校验 state，换码建会话，登录 cookie 写回浏览器
func (h *AuthHandler) Callback(c *gin.Context) {
	state, err := c.Cookie(stateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	sessionID, user, err := h.auth.Exchange(c.Request.Context(), code)
	if err != nil {
		logger.Errorf("OAuth exchange failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign-in failed"})
		return
	}

	c.SetCookie(authCookie, sessionID, cookieMaxAge, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)

	// 登录迁移：引擎换到用户维度的 key 并复位加载闩锁
	h.chatService.SetAuthenticated("user:"+user.ID, user)

	logger.Infof("User %s signed in", user.Email)
	c.Redirect(http.StatusTemporaryRedirect, "/")
}

// Logout 销毁服务端会话并清掉 cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(authCookie); err == nil && sessionID != "" {
		if user, ok := h.auth.UserBySession(sessionID); ok {
			h.chatService.SetAuthenticated("user:"+user.ID, nil)
		}
		h.auth.Logout(sessionID)
	}

	c.SetCookie(authCookie, "", -1, "/", h.cfg.CookieDomain, h.cfg.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out successfully"})
}

// Session 当前登录态，前端据此决定问候语与触网行为
func (h *AuthHandler) Session(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          user,
	})
}
