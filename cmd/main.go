package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storyforge/server/internal/ai"
	"storyforge/server/internal/config"
	"storyforge/server/internal/economy"
	"storyforge/server/internal/engine"
	"storyforge/server/internal/interfaces"
	"storyforge/server/internal/logger"
	"storyforge/server/internal/rag"
	"storyforge/server/internal/storage"
	"storyforge/server/internal/story"
	"storyforge/server/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	// Storage. Both layers are required: MySQL is the source of truth,
	// Redis the read path.
	mysqlStore, err := storage.NewMySQLStore(cfg.Database.MySQL)
	if err != nil {
		zlog.Fatal("failed to connect to mysql", zap.Error(err))
	}
	defer mysqlStore.Close()
	zlog.Info("mysql connected")

	redisStore, err := storage.NewRedisStore(cfg.Database.Redis)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisStore.Close()
	zlog.Info("redis connected")

	sessions := storage.NewSessionStore(
		storage.NewSessionRows(mysqlStore.GetDB()),
		redisStore,
		cfg.Story.SessionTTL,
		cfg.Story.LockTimeout,
		zlog,
	)

	// AI client, shared by generation and embeddings.
	if cfg.AI.OpenRouter.APIKey == "" {
		zlog.Warn("no OpenRouter API key set, generated stories will fail")
	}
	aiClient := ai.NewOpenRouterClient(cfg.AI.OpenRouter)

	// Playthrough memory is optional: without Qdrant the engine simply
	// skips recall.
	var memory interfaces.PlaythroughMemory
	if cfg.Database.Qdrant.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := rag.NewMemoryStore(ctx, cfg.Database.Qdrant, aiClient, zlog)
		cancel()
		if err != nil {
			zlog.Warn("failed to connect to qdrant, playthrough memory disabled", zap.Error(err))
		} else {
			defer store.Close()
			memory = store
			zlog.Info("qdrant connected")
		}
	}

	// Static story catalogue. A story that fails validation is a build
	// defect, not a runtime condition.
	stories := story.NewRegistry()
	for _, st := range []*story.Story{story.NightShift()} {
		if problems := story.Validate(st); len(problems) > 0 {
			zlog.Fatal("story failed validation",
				zap.String("story_id", st.ID), zap.Strings("problems", problems))
		}
		stories.Register(st)
		zlog.Info("story registered", zap.String("story_id", st.ID), zap.Int("nodes", st.Len()))
	}

	hub := web.NewEventHub(zlog)
	ledger := economy.NewLedgerGranter(mysqlStore.GetDB(), zlog)

	eng := engine.New(engine.Deps{
		Stories:            stories,
		Sessions:           sessions,
		Rewards:            ledger,
		Generator:          aiClient,
		Memory:             memory,
		Notifier:           hub,
		Logger:             zlog,
		GenerationAttempts: cfg.Story.GenerationAttempts,
		GenerationBackoff:  cfg.Story.GenerationBackoff,
		MemoryRecallLimit:  cfg.Story.MemoryRecallLimit,
	})

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go hub.Run(rootCtx)
	go sessions.StartCleanupLoop(rootCtx, cfg.Story.CleanupInterval)

	// Sessions survive restarts; report what came back up with us.
	if active, err := sessions.ListActive(rootCtx); err != nil {
		zlog.Warn("failed to list active sessions", zap.Error(err))
	} else if len(active) > 0 {
		zlog.Info("active sessions restored", zap.Int("count", len(active)))
	}

	handlers := web.NewHandlers(eng, stories, sessions, hub, ledger, zlog)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.NewRouter(handlers, zlog),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("server shutting down")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown error", zap.Error(err))
	}
	zlog.Info("server stopped")
}
