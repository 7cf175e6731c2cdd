package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/rahmahapps/mawadda-server/api/rest"
	"github.com/rahmahapps/mawadda-server/api/sse"
	"github.com/rahmahapps/mawadda-server/audit"
	"github.com/rahmahapps/mawadda-server/cache"
	"github.com/rahmahapps/mawadda-server/config"
	dbadapter "github.com/rahmahapps/mawadda-server/db"
	"github.com/rahmahapps/mawadda-server/match"
	"github.com/rahmahapps/mawadda-server/messaging"
	mw "github.com/rahmahapps/mawadda-server/middleware"
	"github.com/rahmahapps/mawadda-server/model"
	"github.com/rahmahapps/mawadda-server/notify"
	"github.com/rahmahapps/mawadda-server/scheduler"
	"github.com/rahmahapps/mawadda-server/subscription"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		LocalGC:       cfg.Cache.LocalGCInterval,
		LocalBuf:      cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.New(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Notifications ----
	center := notify.NewCenter()
	dispatcher := notify.NewDispatcher(db, pubsub, notify.Config{
		QueueSize:    cfg.Notify.QueueSize,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: cfg.Notify.RetryBackoff,
	}, logger)
	dispatcher.Attach(center)
	defer dispatcher.Stop()

	// ---- Services ----
	subsSvc := subscription.NewService(db, logger)
	ledger := match.NewLedger(db)
	resolver := match.NewResolver(db, ledger, subsSvc, center, c, logger)
	msgSvc := messaging.NewService(db, resolver, subsSvc, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	profileH := apirest.NewProfileHandler(db, c, logger)
	interestH := apirest.NewInterestHandler(db, resolver, subsSvc, auditSvc, logger)
	messageH := apirest.NewMessageHandler(db, msgSvc, logger)
	subH := apirest.NewSubscriptionHandler(subsSvc, auditSvc, logger)
	notifH := apirest.NewNotificationHandler(db, logger)
	adminH := apirest.NewAdminHandler(db, sched, logger)

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("subscription_sweep", cfg.Jobs.SubscriptionSweep, func() {
		n, err := subsSvc.ExpireLapsed(context.Background())
		if err != nil {
			logger.Error("subscription sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("subscriptions expired", zap.Int64("count", n))
		}
	})
	sched.AddTicker("ranking_refresh", cfg.Jobs.RankingRefresh, profileH.RefreshRecent)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		profilesG := api.Group("/profiles")
		profilesG.Use(mw.Auth(cfg.Security, c))
		profilesG.GET("", profileH.Browse)
		profilesG.GET("/recent", profileH.Recent)
		profilesG.GET("/me", profileH.Me)
		profilesG.PUT("/me", profileH.UpdateMe)
		profilesG.GET("/:id", profileH.Get)

		interestsG := api.Group("/interests")
		interestsG.Use(mw.Auth(cfg.Security, c))
		interestsG.POST("", interestH.Act)
		interestsG.GET("/state/:id", interestH.State)
		interestsG.GET("/matches", interestH.Matches)
		interestsG.GET("/received", interestH.Received)
		interestsG.GET("/sent", interestH.Sent)
		interestsG.GET("/history/:id", interestH.History)

		messagesG := api.Group("/messages")
		messagesG.Use(mw.Auth(cfg.Security, c))
		messagesG.POST("", messageH.Send)
		messagesG.GET("/conversations", messageH.Conversations)
		messagesG.GET("/conversations/:id", messageH.Messages)

		subsG := api.Group("/subscriptions")
		subsG.GET("/plans", subH.Plans)
		subsG.Use(mw.Auth(cfg.Security, c))
		subsG.GET("/me", subH.Current)
		subsG.POST("", subH.Subscribe)

		notifsG := api.Group("/notifications")
		notifsG.Use(mw.Auth(cfg.Security, c))
		notifsG.GET("", notifH.List)
		notifsG.POST("/:id/read", notifH.MarkRead)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth(cfg.Server))
		adminG.GET("/users", adminH.Users)
		adminG.POST("/users/:id/status", adminH.SetUserStatus)
		adminG.GET("/tasks", adminH.Tasks)
		adminG.GET("/stats", adminH.Stats)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
