package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"notecollab/internal/metrics"
	"notecollab/internal/notify"
	"notecollab/internal/routers"
	"notecollab/internal/session"
	"notecollab/internal/store"
	"notecollab/internal/utils"
)

var (
	defaultPort      = "8080"
	defaultRedisAddr = "redis:6379"
	defaultMongoURI  = "mongodb://mongo:27017"
	defaultMongoDB   = "notecollab"

	listenAndServe = http.ListenAndServe
	exitFunc       = defaultExit
	exit           = os.Exit
)

func defaultExit(err error) {
	log.Printf("server exited: %v", err)
	exit(1)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context) error {
	logger := utils.NewLogger()

	port := envOr("PORT", defaultPort)
	redisAddr := envOr("REDIS_ADDR", defaultRedisAddr)
	mongoURI := envOr("MONGO_URI", defaultMongoURI)
	mongoDB := envOr("MONGO_DB", defaultMongoDB)

	mongoCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return err
	}
	noteStore := store.NewMongoNoteStore(client.Database(mongoDB))

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	notifier := notify.NewNotifier(rdb, logger)

	registry := session.NewRegistry()
	go registry.RunJanitor(ctx, session.JanitorInterval, metrics.RecordSweep)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)
	r.Use(metrics.Middleware("notecollab"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Mount("/", routers.New(logger, noteStore, registry, notifier))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", healthHandler)

	addr := ":" + port
	log.Printf("notecollab listening on %s", addr)
	return listenAndServe(addr, r)
}

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}
