package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"neokudilonga/internal/admintoken"
	"neokudilonga/internal/util"
	"neokudilonga/pkg/ai"
	"neokudilonga/pkg/auth"
	"neokudilonga/pkg/cache"
	"neokudilonga/pkg/queue"
	"neokudilonga/pkg/storage"
	"neokudilonga/pkg/store"
	"neokudilonga/pkg/tagcache"
	"neokudilonga/pkg/whatsapp"
	"neokudilonga/services/shop/internal/app"
	"neokudilonga/services/shop/internal/config"
	"neokudilonga/services/shop/internal/server"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of the given admin password and exit")
	flag.Parse()
	if *hashPassword != "" {
		if err := auth.ValidatePassword(*hashPassword); err != nil {
			log.Fatalf("invalid password: %v", err)
		}
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, store.Config{
		Driver:        cfg.StoreDriver,
		DatabaseURL:   cfg.DatabaseURL,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
	})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	var rdb redis.UniversalClient
	tagBackend := tagcache.Backend(tagcache.NewMemoryBackend())
	viewBackend := cache.Backend(cache.NewMemoryBackend())
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if tagBackend, err = tagcache.NewRedisBackend(rdb, "neokudilonga:tags"); err != nil {
			log.Fatalf("failed to init tag cache: %v", err)
		}
		if viewBackend, err = cache.NewRedisBackend(rdb); err != nil {
			log.Fatalf("failed to init view cache: %v", err)
		}
	} else {
		logger.Warn("redis not configured: in-process caches, no rate limiting, no mail queue")
	}
	tags, err := tagcache.New(tagBackend, logger)
	if err != nil {
		log.Fatalf("failed to init tag cache: %v", err)
	}
	cacheTTL, _ := config.ParseDuration(cfg.CacheTTL)
	views, err := cache.New(viewBackend, cfg.CacheNamespace, cache.WithDefaultTTL(cacheTTL), cache.WithLogger(logger))
	if err != nil {
		log.Fatalf("failed to init view cache: %v", err)
	}

	appCfg := app.Config{
		Store:             db,
		Tags:              tags,
		Views:             views,
		Logger:            logger,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		ViewTTL:           cacheTTL,
		RebandAids:        cfg.RebandAids,
	}
	if rdb != nil {
		mailQueue, err := queue.NewMailQueue(rdb, queue.Config{Stream: cfg.MailStream}, logger)
		if err != nil {
			log.Fatalf("failed to init mail queue: %v", err)
		}
		appCfg.Mail = mailQueue
	}
	if cfg.MinioEndpoint != "" {
		objects, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		})
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		appCfg.Objects = objects
	}
	if cfg.LLMModel != "" {
		generator, err := ai.NewGenerator(ai.Config{
			Provider: cfg.LLMProvider,
			Model:    cfg.LLMModel,
			APIKey:   cfg.LLMAPIKey,
			BaseURL:  cfg.LLMBaseURL,
		})
		if err != nil {
			log.Fatalf("failed to init llm: %v", err)
		}
		appCfg.Generator = generator
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	tokenTTL, _ := config.ParseDuration(cfg.AdminTokenTTL)
	tokens, err := admintoken.NewManager(admintoken.Config{Secret: cfg.AdminJWTSecret, TTL: tokenTTL})
	if err != nil {
		log.Fatalf("failed to init admin tokens: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("invalid trusted proxies: %v", err)
	}
	serverCfg := server.Config{
		App:                        appCore,
		Tokens:                     tokens,
		Redis:                      rdb,
		TrustedProxies:             trusted,
		AllowedOrigins:             cfg.AllowedOrigins,
		MaxUploadBytes:             cfg.MaxUploadBytes,
		CheckoutRateLimitPerMinute: cfg.CheckoutRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		ChatRateLimitPerMinute:     cfg.ChatRateLimitPerMinute,
		WhatsAppVerifyToken:        cfg.WhatsAppVerifyToken,
		WhatsAppAppSecret:          cfg.WhatsAppAppSecret,
	}
	if cfg.WhatsAppAccessToken != "" {
		wa, err := whatsapp.NewClient(whatsapp.ClientConfig{
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AccessToken:   cfg.WhatsAppAccessToken,
		})
		if err != nil {
			log.Fatalf("failed to init whatsapp client: %v", err)
		}
		serverCfg.WhatsApp = wa
	}
	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("shop server listening", "addr", addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
