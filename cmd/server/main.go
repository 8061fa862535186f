package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"lms-session-manager/backend/internal/blacklist"
	blacklistrepo "lms-session-manager/backend/internal/blacklist/repository"
	"lms-session-manager/backend/internal/config"
	"lms-session-manager/backend/internal/db"
	"lms-session-manager/backend/internal/security"
	"lms-session-manager/backend/internal/server"
	"lms-session-manager/backend/internal/session"
	sessionrepo "lms-session-manager/backend/internal/session/repository"
	"lms-session-manager/backend/internal/telemetry"
	telemetryotel "lms-session-manager/backend/internal/telemetry/otel"
	"lms-session-manager/backend/internal/telemetry/producer"
	"lms-session-manager/backend/internal/token"
	"lms-session-manager/backend/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.LifecycleKafkaBrokersList(), cfg.LifecycleKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Printf("lifecycle events also written to kafka topic %s", cfg.LifecycleKafkaTopic)
	}
	emitter := telemetry.Multi(emitters...)

	keys, err := security.DeriveSigningKeys(cfg.JWTSecret, cfg.JWTRefreshSecret)
	if err != nil {
		log.Fatalf("signing keys: %v", err)
	}
	codec, err := security.NewCodec(keys, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		sqlDB, err = db.OpenWithOptions(cfg.DatabaseURL, db.PoolOptions{MaxOpenConns: 20, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute})
		if err != nil {
			log.Fatalf("db: %v", err)
		}
	} else {
		log.Printf("DATABASE_URL is empty; sessions and the blacklist are kept in memory")
	}

	var sessionRepo sessionrepo.Repository = sessionrepo.NewMemoryRepository()
	if sqlDB != nil {
		sessionRepo = sessionrepo.NewPostgresRepository(sqlDB)
	}

	var redisClient *redis.Client
	var blacklistRepo blacklistrepo.Repository
	switch {
	case cfg.BlacklistBackend == config.BlacklistBackendRedis:
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		blacklistRepo = blacklistrepo.NewRedisRepository(redisClient, cfg.RedisKeyPrefix)
	case sqlDB != nil:
		blacklistRepo = blacklistrepo.NewPostgresRepository(sqlDB)
	default:
		blacklistRepo = blacklistrepo.NewMemoryRepository()
	}

	var directory user.Directory
	if sqlDB != nil {
		directory = user.NewPostgresDirectory(sqlDB)
	} else {
		directory = user.NewStaticDirectory(cfg.DevActiveUsersList()...)
	}
	var cachedDirectory *user.CachedDirectory
	if ttl := cfg.UserCacheTTL(); ttl > 0 {
		cachedDirectory, err = user.NewCachedDirectory(directory, ttl, cfg.UserCacheMaxEntries)
		if err != nil {
			log.Fatalf("user cache: %v", err)
		}
		directory = cachedDirectory
	}

	registry := session.NewRegistry(sessionRepo,
		session.WithSessionTTL(cfg.RefreshTTL()),
		session.WithStoreTimeout(cfg.StoreTimeout()),
		session.WithCacheTTL(cfg.ReaperInterval()),
		session.WithShards(cfg.CacheShards),
	)
	store := blacklist.NewStore(blacklistRepo,
		blacklist.WithStoreTimeout(cfg.StoreTimeout()),
		blacklist.WithShards(cfg.CacheShards),
	)
	svc, err := token.New(token.Deps{
		Codec:     codec,
		Blacklist: store,
		Sessions:  registry,
		Directory: directory,
	},
		token.WithAccessTTL(cfg.AccessTTL()),
		token.WithRefreshTTL(cfg.RefreshTTL()),
		token.WithReaperInterval(cfg.ReaperInterval()),
		token.WithStoreTimeout(cfg.StoreTimeout()),
		token.WithEmitter(emitter),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	svc.Start()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s, hs := server.NewGRPCServer(server.Deps{
		Validator:  svc,
		Emitter:    emitter,
		Reflection: cfg.Env != "production",
	})

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	hs.Shutdown()
	s.GracefulStop()
	log.Println("gRPC server stopped")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Printf("token service shutdown: %v", err)
	}
	// Let in-flight async lifecycle emits finish before the sinks close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	if cachedDirectory != nil {
		cachedDirectory.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
}
