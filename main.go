package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/api"
	"github.com/michael7nightingale/ai-girls/internal/cache"
	"github.com/michael7nightingale/ai-girls/internal/chat"
	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/llm"
	"github.com/michael7nightingale/ai-girls/internal/quota"
	"github.com/michael7nightingale/ai-girls/internal/redis"
	"github.com/michael7nightingale/ai-girls/internal/service/companion"
	"github.com/michael7nightingale/ai-girls/internal/storage"
	"github.com/michael7nightingale/ai-girls/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("AIGIRLS_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("AIGIRLS_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	svc := companion.NewService(db)
	if err := svc.SeedCharacters(context.Background()); err != nil {
		log.Fatalf("seed characters: %v", err)
	}

	// Redis is optional: without it every turn reads history from the
	// database.
	var historyCache *cache.HistoryCache
	if cfg.Redis.Host != "" {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
		historyCache = cache.NewHistoryCache(rdb)
	}

	generators, lister := buildGenerators(cfg)
	defaultBackend, err := llm.Resolve("", cfg.Chat.DefaultBackend)
	if err != nil {
		log.Fatalf("default backend: %v", err)
	}
	if _, ok := generators[defaultBackend]; !ok {
		log.Fatalf("default backend %q is not configured", defaultBackend)
	}

	chatRouter := chat.NewRouter(
		generators,
		cfg.Chat.DefaultBackend,
		quota.LimitsFromConfig(cfg.Quota),
		time.Duration(cfg.Chat.RequestTimeoutSeconds)*time.Second,
	)
	workers := worker.NewManager(cfg.Chat.QueueSize)
	handlers := api.NewHandler(svc, chatRouter, workers, historyCache, lister)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// buildGenerators constructs one adapter per configured backend. An
// unconfigured backend is simply absent; misconfigured ones abort startup.
func buildGenerators(cfg *config.Config) (map[llm.Backend]llm.Generator, api.ModelLister) {
	generators := make(map[llm.Backend]llm.Generator)
	var lister api.ModelLister

	if bc, ok := cfg.Backends[string(llm.BackendOllama)]; ok {
		adapter, err := llm.NewOllama(bc)
		if err != nil {
			log.Fatalf("ollama backend: %v", err)
		}
		generators[llm.BackendOllama] = adapter
		lister = adapter
	}
	if bc, ok := cfg.Backends[string(llm.BackendOpenAI)]; ok {
		adapter, err := llm.NewOpenAI(bc)
		if err != nil {
			log.Fatalf("openai backend: %v", err)
		}
		generators[llm.BackendOpenAI] = adapter
	}
	if bc, ok := cfg.Backends[string(llm.BackendClaude)]; ok {
		adapter, err := llm.NewClaude(bc)
		if err != nil {
			log.Fatalf("claude backend: %v", err)
		}
		generators[llm.BackendClaude] = adapter
	}
	if len(generators) == 0 {
		log.Fatal("no generation backends configured")
	}
	return generators, lister
}
