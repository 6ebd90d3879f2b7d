package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"greenly-backend/internal/model"
	"greenly-backend/internal/service"
)

const (
	anonCookie    = "greenly_session"
	authCookie    = "greenly_auth"
	cookieMaxAge  = 60 * 60 * 24 * 30
	ctxUserKey    = "userKey"
	ctxUser       = "user"
	ctxAuthCookie = "authSessionID"
)

// SessionMiddleware 给每个访客发匿名会话 cookie，作为引擎与选择集的 key。
// 带登录 cookie 的请求解析出用户并同步引擎的登录态，
// 登录用户的 key 切换为 Google 用户 id，跨设备共享同一套会话
func SessionMiddleware(auth *service.AuthService, chats *service.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		anonID, err := c.Cookie(anonCookie)
		if err != nil || anonID == "" {
			anonID = uuid.New().String()
			c.SetCookie(anonCookie, anonID, cookieMaxAge, "/", "", false, true)
		}

		userKey := anonID

		if sessionID, err := c.Cookie(authCookie); err == nil && sessionID != "" {
			if user, ok := auth.UserBySession(sessionID); ok {
				userKey = "user:" + user.ID
				c.Set(ctxUser, user)
				c.Set(ctxAuthCookie, sessionID)
				chats.SetAuthenticated(userKey, user)
			}
		}

		c.Set(ctxUserKey, userKey)
		c.Next()
	}
}

// userKey 当前请求的引擎 key
func userKey(c *gin.Context) string {
	return c.GetString(ctxUserKey)
}

// currentUser 已登录用户，未登录返回 nil
func currentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ctxUser); ok {
		return v.(*model.User)
	}
	return nil
}

// RequireAuth 未登录直接 401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}
