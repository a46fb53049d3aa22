package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"codecollab/internal/api"
	"codecollab/internal/auth"
	"codecollab/internal/config"
	"codecollab/internal/routers"
	"codecollab/internal/session"
	"codecollab/internal/store"
	"codecollab/internal/store/memory"
	"codecollab/internal/store/mongostore"
	"codecollab/internal/store/redisstore"
)

var (
	listenAndServe = http.ListenAndServe
	exitFunc       = func(err error) { log.Fatal(err) }
)

// newDocumentStore picks the document store backend from configuration.
func newDocumentStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.DocumentStore, error) {
	switch cfg.StorageType {
	case "redis":
		logger.Info("using redis document store", zap.String("addr", cfg.RedisAddr))
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redisstore.NewDocumentStore(rdb), nil
	case "mongo":
		logger.Info("using mongo document store", zap.String("db", cfg.MongoDBName))
		return mongostore.NewDocumentStore(ctx, cfg.MongoURI, cfg.MongoDBName)
	default:
		logger.Info("using in-memory document store")
		return memory.NewDocumentStore(), nil
	}
}

func run(ctx context.Context) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.LoadConfig()

	docs, err := newDocumentStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	hub := session.NewHub(docs, session.HubOptions{
		Debounce:         cfg.Debounce,
		BroadcastRestore: cfg.BroadcastRestore,
	}, logger)

	db, err := gorm.Open(sqlite.Open(cfg.AuthDBDSN), &gorm.Config{})
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&auth.User{}); err != nil {
		return err
	}

	h := api.NewHandlers(logger, hub, cfg.JWTSecret)
	authHandler := auth.NewHandler(auth.NewUserRepository(db), cfg.JWTSecret)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Mount("/", routers.New(h, authHandler))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	addr := ":" + cfg.Port
	logger.Info("codecollab listening", zap.String("addr", addr))
	return listenAndServe(addr, r)
}

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}
