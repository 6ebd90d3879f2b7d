package handler

import (
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"greenly-backend/internal/cache"
	"greenly-backend/internal/model"
)

type ImageHandler struct {
	cache   *cache.Cache
	baseURL string
}

func NewImageHandler(c *cache.Cache, baseURL string) *ImageHandler {
	return &ImageHandler{
		cache:   c,
		baseURL: baseURL,
	}
}

// ShareImage 把图片存入缓存并返回分享链接。
// 分享内容有七天有效期，过期自动消失
func (h *ImageHandler) ShareImage(c *gin.Context) {
	var req model.ShareImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.cache.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image sharing is unavailable"})
		return
	}

	shareID := uuid.New().String()
	h.cache.SetSharedImage(c.Request.Context(), shareID, cache.SharedImage{
		Image:      req.Image,
		ObjectName: req.ObjectName,
		CreatedAt:  time.Now(),
	})

	c.JSON(http.StatusOK, model.ShareImageResponse{
		ShareID: shareID,
		URL:     h.baseURL + "/share/" + shareID,
	})
}

var sharePageTemplate = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Greenly - {{.ObjectName}}</title>
  <meta property="og:title" content="Check out my greened space!">
  <meta property="og:image" content="{{.Image}}">
</head>
<body style="margin:0;background:#f0f7f0;display:flex;justify-content:center;align-items:center;min-height:100vh">
  <img src="{{.Image}}" alt="{{.ObjectName}}" style="max-width:90vw;max-height:90vh">
</body>
</html>`))

// ViewSharedImage 渲染分享页面，过期或不存在返回 404
func (h *ImageHandler) ViewSharedImage(c *gin.Context) {
	shareID := c.Param("share_id")

	shared, ok := h.cache.GetSharedImage(c.Request.Context(), shareID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "shared image not found or expired"})
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	sharePageTemplate.Execute(c.Writer, shared)
}
