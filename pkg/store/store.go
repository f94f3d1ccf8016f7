package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"neokudilonga/pkg/domain"
)

var (
	// ErrNotFound is returned by mutations that target a missing record.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("conflict")
)

// OrderStatusUpdate carries the status fields an admin may change. Nil
// fields are left untouched.
type OrderStatusUpdate struct {
	PaymentStatus  *domain.PaymentStatus
	DeliveryStatus *domain.DeliveryStatus
}

// Store defines persistence for the catalog, reading plans, orders and chat logs.
// Lookups return (value, found, err).
type Store interface {
	// products
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, bool, error)
	SaveProduct(ctx context.Context, p domain.Product) error
	// DeleteProduct removes the product and its reading-plan items.
	DeleteProduct(ctx context.Context, id string) error

	// reading plan
	ListReadingPlan(ctx context.Context) ([]domain.ReadingPlanItem, error)
	ListReadingPlanByProduct(ctx context.Context, productID string) ([]domain.ReadingPlanItem, error)
	SaveReadingPlanItems(ctx context.Context, items []domain.ReadingPlanItem) error
	DeleteReadingPlanItems(ctx context.Context, ids []string) error

	// schools
	ListSchools(ctx context.Context) ([]domain.School, error)
	GetSchool(ctx context.Context, id string) (domain.School, bool, error)
	SaveSchool(ctx context.Context, s domain.School) error
	DeleteSchool(ctx context.Context, id string) error
	// SetSchoolOrder assigns Order = position for each id.
	SetSchoolOrder(ctx context.Context, ids []string) error

	// categories
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (domain.Category, bool, error)
	SaveCategory(ctx context.Context, c domain.Category) error
	// RenameCategory replaces oldID with c. It fails with ErrConflict when
	// c.ID is taken and ErrNotFound when oldID is missing.
	RenameCategory(ctx context.Context, oldID string, c domain.Category) error
	DeleteCategory(ctx context.Context, id string) error

	// publishers
	ListPublishers(ctx context.Context) ([]domain.Publisher, error)
	SavePublisher(ctx context.Context, p domain.Publisher) error
	DeletePublisher(ctx context.Context, name string) error

	// orders
	// CreateOrder fails with ErrConflict when the reference exists.
	CreateOrder(ctx context.Context, o domain.Order) error
	GetOrder(ctx context.Context, reference string) (domain.Order, bool, error)
	// ListOrders returns orders newest first.
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, reference string, update OrderStatusUpdate) error
	DeleteOrder(ctx context.Context, reference string) error

	// chat logs
	AppendChatLog(ctx context.Context, log domain.ChatLog) error
	// ListChatLogs returns at most limit logs, newest first.
	ListChatLogs(ctx context.Context, limit int) ([]domain.ChatLog, error)

	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GormStore)(nil)
	_ Store = (*MongoStore)(nil)
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config selects and configures a Store implementation.
type Config struct {
	Driver        string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverPostgres:
		return NewGormStore(cfg.DatabaseURL)
	case DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case DriverMemory, "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
