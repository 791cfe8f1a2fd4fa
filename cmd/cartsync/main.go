package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/cache"
	"github.com/fjod/go_cart/cartsync/internal/catalog"
	"github.com/fjod/go_cart/cartsync/internal/comments"
	"github.com/fjod/go_cart/cartsync/internal/config"
	"github.com/fjod/go_cart/cartsync/internal/dedup"
	cartgrpc "github.com/fjod/go_cart/cartsync/internal/grpc"
	h "github.com/fjod/go_cart/cartsync/internal/http"
	"github.com/fjod/go_cart/cartsync/internal/poller"
	"github.com/fjod/go_cart/cartsync/internal/repository"
	s "github.com/fjod/go_cart/cartsync/internal/service"
	"github.com/fjod/go_cart/cartsync/internal/session"
	"github.com/fjod/go_cart/cartsync/internal/snapshot"
	"github.com/fjod/go_cart/cartsync/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync() //nolint:errcheck
	zap.ReplaceGlobals(l)

	if err := run(cfg, l); err != nil {
		l.Fatal("cartsync stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		l.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	}

	repo, closeRepo, err := openRepository(ctx, cfg, redisClient, l)
	if err != nil {
		return err
	}
	closers = append(closers, closeRepo)

	var cartCache cache.CartCache
	var checkouts dedup.Checker
	if redisClient != nil {
		cartCache = cache.NewRedisCache(redisClient, cfg.CacheTTL)
		checkouts = dedup.NewRedisChecker(redisClient, cfg.DedupTTL)
	} else {
		cartCache = cache.NewMemoryCache(cfg.SessionCapacity, cfg.CacheTTL)
		checkouts = dedup.NewMemoryChecker(cfg.SessionCapacity, cfg.DedupTTL)
	}

	service := s.NewCartService(
		repo,
		cartCache,
		session.NewRegistry(cfg.SessionCapacity, cfg.SessionTTL),
		catalog.NewHTTPClient(cfg.CatalogURL, cfg.CatalogTimeout, l),
		l,
		s.WithCheckoutDedup(checkouts),
	)

	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(service, l, cfg.KafkaBrokers...)
		closers = append(closers, p.Close)
		go p.Run(workers)
		l.Info("checkout consumer started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", poller.Topic))
	}

	board := comments.NewBoard()
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		if err := comments.StartConsumer(workers, conn, board, l); err != nil {
			return fmt.Errorf("start comment consumer: %w", err)
		}
		l.Info("comment consumer started", zap.String("queue", comments.Queue))
	}

	router := h.NewRouter(
		h.RouterConfig{JWTSecret: []byte(cfg.JWTSecret), RequestTimeout: 30 * time.Second, Logger: l},
		h.NewCartHandler(service, 10*time.Second, cfg.LoginURL),
		h.NewCommentsHandler(board),
	)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}
	health := cartgrpc.NewHealthServer(l)

	errCh := make(chan error, 2)
	go func() {
		l.Info("http server listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := health.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	health.SetServing(true)

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	l.Info("shutting down cartsync")
	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("http server forced to shutdown", zap.Error(err))
	}
	health.GracefulStop()
	cancelWorkers()
	l.Info("cartsync stopped")
	return nil
}

func openRepository(ctx context.Context, cfg config.Config, redisClient *redis.Client, l *zap.Logger) (repository.CartRepository, func(), error) {
	switch cfg.Backend {
	case config.BackendMongo:
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoRepository(db, cfg.CartRetention)
		if err := repo.CreateIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, nil, err
		}
		l.Info("connected to MongoDB", zap.String("database", cfg.MongoDBName))
		return repo, func() { _ = db.Client().Disconnect(context.Background()) }, nil

	case config.BackendPostgres:
		db, err := repository.ConnectPostgres(ctx, repository.Credentials{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			DBName:   cfg.PostgresDB,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresRepository(db)
		if err := repo.RunMigrations(); err != nil {
			_ = repo.Close()
			return nil, nil, err
		}
		l.Info("connected to PostgreSQL", zap.String("database", cfg.PostgresDB))
		return repo, func() { _ = repo.Close() }, nil
	}

	var store snapshot.Store
	if cfg.SnapshotStore == config.SnapshotRedis {
		store = snapshot.NewRedisStore(redisClient, cfg.SnapshotKey)
	} else {
		l.Warn("carts are kept in process memory only")
		store = snapshot.NewMemoryStore()
	}
	return repository.NewSnapshotRepository(store, l), func() {}, nil
}
