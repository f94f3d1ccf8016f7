package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"neokudilonga/pkg/domain"
	"neokudilonga/pkg/mail"
	"neokudilonga/pkg/queue"
)

// OrderReader loads orders by reference.
type OrderReader interface {
	GetOrder(ctx context.Context, reference string) (domain.Order, bool, error)
}

type Config struct {
	Orders OrderReader
	Sender mail.Sender
	// AdminBcc receives a blind copy of every confirmation.
	AdminBcc string
	Logger   *slog.Logger
}

// App turns queued jobs into confirmation emails.
type App struct {
	orders   OrderReader
	sender   mail.Sender
	adminBcc string
	logger   *slog.Logger
}

func New(cfg Config) (*App, error) {
	if cfg.Orders == nil || cfg.Sender == nil {
		return nil, errors.New("mailer requires an order reader and a sender")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		orders:   cfg.Orders,
		sender:   cfg.Sender,
		adminBcc: strings.TrimSpace(cfg.AdminBcc),
		logger:   logger,
	}, nil
}

// Handle is the queue handler. Jobs of unknown kind or for orders that no
// longer exist are dropped; everything else is retried by the queue.
func (a *App) Handle(ctx context.Context, job queue.Job) error {
	logger := a.logger.With("job_id", job.ID, "order_ref", job.OrderRef)
	if job.Kind != queue.KindOrderConfirmation {
		logger.Warn("unknown mail job kind, dropping", "kind", job.Kind)
		return nil
	}
	order, ok, err := a.orders.GetOrder(ctx, job.OrderRef)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if !ok {
		logger.Warn("order not found, dropping confirmation")
		return nil
	}
	msg, err := mail.RenderOrderConfirmation(order, a.adminBcc)
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	if err := a.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	logger.Info("confirmation sent", "to", order.Email, "attempt", job.Attempts)
	return nil
}
