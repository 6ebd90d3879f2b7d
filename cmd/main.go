package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenly-backend/internal/backend"
	"greenly-backend/internal/cache"
	"greenly-backend/internal/config"
	"greenly-backend/internal/handler"
	"greenly-backend/internal/report"
	"greenly-backend/internal/service"
	"greenly-backend/internal/storage"
	"greenly-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// 初始化存储
	store := newStorage(cfg)
	if err := store.Init(); err != nil {
		logger.Fatalf("存储初始化失败: %v", err)
	}
	defer store.Close()

	// 初始化缓存与远端后端客户端
	redisCache := cache.New(cfg.Redis.Enabled, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisCache.Close()
	backendClient := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout)

	// 初始化服务
	chatService := service.NewChatService(store, backendClient, redisCache)
	selectionService := service.NewSelectionService()
	pricingService := service.NewPricingService()
	assistantService := service.NewAssistantService(cfg.OpenAI)
	authService := service.NewAuthService(cfg.OAuth)
	generator := report.NewGenerator(cfg.Report)

	// 初始化处理器
	chatHandler := handler.NewChatHandler(chatService)
	reportHandler := handler.NewReportHandler(selectionService, pricingService, assistantService, generator)
	imageHandler := handler.NewImageHandler(redisCache, cfg.Server.BaseURL)
	authHandler := handler.NewAuthHandler(authService, chatService, cfg.OAuth)
	subscriptionHandler := handler.NewSubscriptionHandler(authService, cfg.Stripe)

	// 创建路由
	router := setupRouter(cfg, authService, chatService,
		chatHandler, reportHandler, imageHandler, authHandler, subscriptionHandler)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	if err := server.Close(); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}

func newStorage(cfg *config.Config) storage.Storage {
	switch cfg.Storage.Type {
	case "disk":
		return storage.NewDiskStorage(cfg.Storage.DataDir, cfg.Storage.CacheSize)
	default:
		return storage.NewMemoryStorage()
	}
}

func setupRouter(
	cfg *config.Config,
	authService *service.AuthService,
	chatService *service.ChatService,
	chatHandler *handler.ChatHandler,
	reportHandler *handler.ReportHandler,
	imageHandler *handler.ImageHandler,
	authHandler *handler.AuthHandler,
	subscriptionHandler *handler.SubscriptionHandler,
) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	// Stripe webhook 不走会话中间件，签名自带认证
	router.POST("/api/subscription/webhook", subscriptionHandler.Webhook)

	session := router.Group("/")
	session.Use(handler.SessionMiddleware(authService, chatService))
	{
		// 分享页面
		session.GET("/share/:share_id", imageHandler.ViewSharedImage)

		api := session.Group("/api")
		{
			chat := api.Group("/chat")
			{
				chat.POST("/new", chatHandler.CreateChat)
				chat.POST("/switch", chatHandler.SwitchChat)
				chat.POST("/send", chatHandler.SendMessage)
				chat.GET("/list", chatHandler.ListChats)
				chat.GET("/:chat_id", chatHandler.GetChat)
				chat.DELETE("/:chat_id", chatHandler.DeleteChat)
				chat.PUT("/:chat_id/title", chatHandler.UpdateChatTitle)
			}

			selection := api.Group("/selection")
			{
				selection.POST("/toggle", reportHandler.ToggleSelection)
				selection.GET("", reportHandler.GetSelection)
				selection.DELETE("", reportHandler.ClearSelection)
			}

			pricing := api.Group("/pricing")
			{
				pricing.GET("/elements", reportHandler.GetElements)
				pricing.POST("/calculate", reportHandler.Calculate)
				pricing.POST("/schema", reportHandler.GeneratePricingSchema)
			}

			reportGroup := api.Group("/report")
			{
				reportGroup.POST("/generate", reportHandler.GenerateReport)
				reportGroup.GET("/estimate", reportHandler.EstimateReport)
			}

			api.POST("/image/share", imageHandler.ShareImage)

			auth := api.Group("/auth")
			{
				auth.GET("/google", authHandler.Login)
				auth.GET("/callback", authHandler.Callback)
				auth.POST("/logout", authHandler.Logout)
				auth.GET("/session", authHandler.Session)
			}

			subscriptionGroup := api.Group("/subscription")
			subscriptionGroup.Use(handler.RequireAuth())
			{
				subscriptionGroup.POST("/checkout", subscriptionHandler.CreateCheckout)
				subscriptionGroup.POST("/cancel", subscriptionHandler.CancelSubscription)
			}
		}
	}

	return router
}
