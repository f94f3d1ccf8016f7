package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"neokudilonga/internal/util"
	"neokudilonga/pkg/mail"
	"neokudilonga/pkg/queue"
	"neokudilonga/pkg/store"
	"neokudilonga/services/mailer/internal/app"
	"neokudilonga/services/mailer/internal/config"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel).With("service", "mailer")

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
	defer db.Close()

	var sender mail.Sender = mail.LogSender{Logger: logger}
	if cfg.SMTPHost != "" {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        mail.Address{Name: cfg.MailFromName, Email: cfg.MailFromAddress},
			ImplicitTLS: cfg.SMTPImplicitTLS,
		})
		if err != nil {
			log.Fatalf("failed to init smtp: %v", err)
		}
		sender = smtpSender
	} else {
		logger.Warn("smtp not configured, confirmations are only logged")
	}

	worker, err := app.New(app.Config{Orders: db, Sender: sender, AdminBcc: cfg.AdminBcc, Logger: logger})
	if err != nil {
		log.Fatalf("failed to init mailer: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	mailQueue, err := queue.NewMailQueue(rdb, queue.Config{
		Stream:      cfg.MailStream,
		MaxAttempts: cfg.QueueMaxAttempts,
	}, logger)
	if err != nil {
		log.Fatalf("failed to init mail queue: %v", err)
	}
	mailQueue.Start(ctx, cfg.QueueConcurrency, worker.Handle)
	logger.Info("mailer consuming", "stream", cfg.MailStream, "concurrency", cfg.QueueConcurrency)

	if cfg.Port == "" {
		<-ctx.Done()
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      util.WithRequestID(util.WithRequestLog("mailer", nil, mux)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("mailer health listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
