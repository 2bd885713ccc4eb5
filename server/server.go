package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"JamFM/cache"
	"JamFM/config"
	"JamFM/core/room"
	"JamFM/core/session"
	"JamFM/db"
	"JamFM/logger"
	"JamFM/model"
	"JamFM/repository"

	"github.com/gorilla/mux"
)

// logNotifier 站内通知的占位实现，只记日志。
// 真正的推送渠道在上游应用，这里留出挂接点。
type logNotifier struct{}

func (logNotifier) Notify(userID int64, message string) {
	logger.Info("用户通知",
		logger.Int64("userId", userID),
		logger.String("message", message))
}

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	defer logger.Sync()

	// 监听 .env 变更，热加载日志级别
	if watcher, err := config.WatchEnv(func(level string) {
		logger.SetLevel(logger.LogLevel(level))
	}); err != nil {
		logger.Warn("配置文件监听启动失败", logger.ErrorField(err))
	} else if watcher != nil {
		defer watcher.Close()
	}

	// Connect to the database
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.GroupActivity{}); err != nil {
		logger.Fatal("Failed to migrate models", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()
	logger.Info("Successfully connected to Redis")

	// 组装一起听引擎
	registry := session.NewRegistry(model.SessionSettings{
		MaxQueueSize:     cfg.QueueMaxSize,
		AllowAnyoneToAdd: true,
		MaxTracksPerUser: cfg.QueueMaxPerUser,
		MaxMembers:       cfg.SessionMaxMembers,
	})

	hub := room.NewHub()
	go hub.Run()
	defer hub.Stop()

	departures := session.NewDepartureScheduler(registry, hub,
		time.Duration(cfg.DepartureGraceMs)*time.Millisecond)
	defer departures.Stop()

	activityRepo := repository.NewGormActivityRepository(db.GormDB)
	presenceCache := cache.NewPresenceCache()
	wsRouter := room.NewRouter(registry, hub, activityRepo, logNotifier{})

	// 连接生命周期与延迟离开调度对接
	hub.OnConnect(func(userID int64) {
		departures.Cancel(userID)
	})
	hub.OnDisconnect(func(userID int64) {
		departures.Schedule(userID)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		presenceCache.SetOffline(ctx, userID, registry.SessionsOf(userID))
	})
	hub.OnHeartbeat(func(userID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		presenceCache.Heartbeat(ctx, userID, registry.SessionsOf(userID))
	})
	departures.OnDeparted(func(userID int64, dep session.Departure) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		wsRouter.HandleDeparture(ctx, userID, dep)
		if dep.Destroyed {
			presenceCache.DropGroup(ctx, dep.GroupID)
		}
	})

	sessionHandler := NewSessionHandler(registry, hub, wsRouter,
		activityRepo, presenceCache, cfg.JWTSecret)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":   "ok",
			"sessions": registry.Count(),
		})
	}).Methods(http.MethodGet)

	RegisterSessionRoutes(router, sessionHandler, cfg.JWTSecret)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 优雅关闭
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("收到退出信号，开始优雅关闭")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("服务器关闭失败", logger.ErrorField(err))
		}
	}()

	logger.Info("服务器启动", logger.String("addr", cfg.ServerAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("服务器启动失败", logger.ErrorField(err))
	}

	logger.Info("服务器已退出")
}
