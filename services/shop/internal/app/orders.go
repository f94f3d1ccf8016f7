package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"slices"
	"strings"

	"neokudilonga/pkg/domain"
	"neokudilonga/pkg/queue"
	"neokudilonga/pkg/store"
)

// Fees per delivery option, in kwanza.
var deliveryFees = map[string]int64{
	domain.DeliveryHome:          2000,
	domain.DeliveryPickup:        2500,
	domain.DeliverySchoolCollect: 0,
}

var paymentMethods = []string{"transferencia", "numerario", "multicaixa"}

const (
	defaultReferencePrefix = "LIV"
	referenceAttempts      = 5
	maxLineQuantity        = 1000
)

// CartItem is one line submitted at checkout. Prices are always taken from
// the catalog.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	KitID     string `json:"kitId,omitempty"`
	KitName   string `json:"kitName,omitempty"`
}

type CheckoutRequest struct {
	GuardianName    string     `json:"guardianName"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email"`
	StudentName     string     `json:"studentName,omitempty"`
	StudentClass    string     `json:"studentClass,omitempty"`
	Language        string     `json:"language"`
	DeliveryOption  string     `json:"deliveryOption"`
	DeliveryAddress string     `json:"deliveryAddress,omitempty"`
	PaymentMethod   string     `json:"paymentMethod"`
	SchoolID        string     `json:"schoolId,omitempty"`
	Items           []CartItem `json:"items"`
}

// DeliveryFee returns the fee for a delivery option.
func DeliveryFee(option string) (int64, bool) {
	fee, ok := deliveryFees[option]
	return fee, ok
}

// Checkout validates the cart, prices it from the catalog, stores the order
// under a fresh reference and queues the confirmation email.
func (a *App) Checkout(ctx context.Context, req CheckoutRequest) (domain.Order, error) {
	if len(req.Items) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	order := domain.Order{
		GuardianName:    strings.TrimSpace(req.GuardianName),
		Phone:           strings.TrimSpace(req.Phone),
		Email:           strings.TrimSpace(req.Email),
		StudentName:     strings.TrimSpace(req.StudentName),
		StudentClass:    strings.TrimSpace(req.StudentClass),
		Language:        domain.ParseLanguage(req.Language),
		DeliveryOption:  strings.TrimSpace(req.DeliveryOption),
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
		PaymentStatus:   domain.PaymentUnpaid,
		DeliveryStatus:  domain.DeliveryNotDelivered,
	}
	if order.GuardianName == "" || order.Phone == "" {
		return domain.Order{}, invalid("guardian name and phone are required")
	}
	if _, err := mail.ParseAddress(order.Email); err != nil {
		return domain.Order{}, invalid("invalid email")
	}
	if !slices.Contains(paymentMethods, order.PaymentMethod) {
		return domain.Order{}, invalid("unknown payment method %q", order.PaymentMethod)
	}
	fee, ok := DeliveryFee(order.DeliveryOption)
	if !ok {
		return domain.Order{}, invalid("unknown delivery option %q", order.DeliveryOption)
	}
	order.DeliveryFee = fee
	if order.DeliveryOption == domain.DeliveryHome && order.DeliveryAddress == "" {
		return domain.Order{}, invalid("delivery address required")
	}
	if order.DeliveryOption != domain.DeliveryHome {
		order.DeliveryAddress = ""
	}

	products, err := a.products(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, line := range req.Items {
		p, ok := byID[strings.TrimSpace(line.ProductID)]
		if !ok {
			return domain.Order{}, invalid("unknown product %q", line.ProductID)
		}
		if !p.Available() {
			return domain.Order{}, invalid("product %q is sold out", p.ID)
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return domain.Order{}, invalid("quantity must be between 1 and %d", maxLineQuantity)
		}
		item := domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Type:      p.Type,
			Price:     max(p.Price, 0),
			Quantity:  line.Quantity,
			KitID:     line.KitID,
			KitName:   line.KitName,
		}
		if item.Price > 0 && int64(item.Quantity) > (math.MaxInt64-order.DeliveryFee-order.ItemsTotal())/item.Price {
			return domain.Order{}, invalid("order total too large")
		}
		order.Items = append(order.Items, item)
	}
	order.Total = order.ItemsTotal() + order.DeliveryFee

	school, found, err := a.orderSchool(ctx, req.SchoolID, order.Items)
	if err != nil {
		return domain.Order{}, err
	}
	if found {
		order.SchoolID = school.ID
		order.SchoolName = school.Name.Text(order.Language)
		if order.StudentName == "" {
			return domain.Order{}, invalid("student name required for school orders")
		}
		if order.DeliveryOption == domain.DeliverySchoolCollect && order.StudentClass == "" {
			return domain.Order{}, invalid("class required for school pickup")
		}
	} else {
		order.StudentClass = ""
	}
	if order.DeliveryOption == domain.DeliverySchoolCollect && (!found || !school.AllowPickup) {
		return domain.Order{}, invalid("school pickup not available for this order")
	}

	prefix := defaultReferencePrefix
	if found && strings.TrimSpace(school.Abbreviation) != "" {
		prefix = strings.ToUpper(strings.TrimSpace(school.Abbreviation))
	}
	now := a.now().UTC()
	order.Date, order.CreatedAt, order.UpdatedAt = now, now, now
	for attempt := 0; ; attempt++ {
		order.Reference = fmt.Sprintf("%s-%d%05d", prefix, now.Year(), a.randDigits())
		err = a.store.CreateOrder(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt+1 >= referenceAttempts {
			return domain.Order{}, fmt.Errorf("create order: %w", storeErr(err))
		}
	}
	a.invalidate(ctx, TagOrders)

	logger := a.logger.With("order_ref", order.Reference)
	if a.mail == nil {
		logger.Warn("mail queue not configured, confirmation not sent")
	} else if _, err := a.mail.Enqueue(ctx, queue.KindOrderConfirmation, order.Reference); err != nil {
		logger.Error("enqueue confirmation failed", "err", err)
	}
	logger.Info("order created", "total", order.Total, "items", len(order.Items), "school_id", order.SchoolID)
	return order, nil
}

// orderSchool resolves the school an order belongs to: the requested one, or
// the first school (display order) whose reading plan lists a cart product.
func (a *App) orderSchool(ctx context.Context, requested string, items []domain.OrderItem) (domain.School, bool, error) {
	schools, err := a.Schools(ctx)
	if err != nil {
		return domain.School{}, false, err
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		for _, s := range schools {
			if s.ID == requested {
				return s, true, nil
			}
		}
		return domain.School{}, false, invalid("unknown school %q", requested)
	}
	plan, err := a.readingPlan(ctx)
	if err != nil {
		return domain.School{}, false, err
	}
	inCart := make(map[string]bool, len(items))
	for _, it := range items {
		inCart[it.ProductID] = true
	}
	withCart := make(map[string]bool)
	for _, it := range plan {
		if inCart[it.ProductID] {
			withCart[it.SchoolID] = true
		}
	}
	for _, s := range schools {
		if withCart[s.ID] {
			return s, true, nil
		}
	}
	return domain.School{}, false, nil
}

// Order looks up an order by reference, bypassing the cache so a just
// created order is always visible.
func (a *App) Order(ctx context.Context, reference string) (domain.Order, error) {
	o, ok, err := a.store.GetOrder(ctx, strings.TrimSpace(reference))
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrNotFound, reference)
	}
	return o, nil
}

// Orders returns all orders, newest first.
func (a *App) Orders(ctx context.Context) ([]domain.Order, error) {
	return a.orders(ctx)
}

type OrderStatusPatch struct {
	PaymentStatus  *domain.PaymentStatus  `json:"paymentStatus,omitempty"`
	DeliveryStatus *domain.DeliveryStatus `json:"deliveryStatus,omitempty"`
}

// UpdateOrderStatus changes payment and/or delivery status. At least one
// must be given.
func (a *App) UpdateOrderStatus(ctx context.Context, reference string, patch OrderStatusPatch) error {
	if patch.PaymentStatus == nil && patch.DeliveryStatus == nil {
		return invalid("paymentStatus or deliveryStatus required")
	}
	if patch.PaymentStatus != nil && !patch.PaymentStatus.Valid() {
		return invalid("invalid payment status %q", *patch.PaymentStatus)
	}
	if patch.DeliveryStatus != nil && !patch.DeliveryStatus.Valid() {
		return invalid("invalid delivery status %q", *patch.DeliveryStatus)
	}
	err := a.store.UpdateOrderStatus(ctx, reference, store.OrderStatusUpdate{
		PaymentStatus:  patch.PaymentStatus,
		DeliveryStatus: patch.DeliveryStatus,
	})
	if err != nil {
		return storeErr(err)
	}
	a.invalidate(ctx, TagOrders)
	return nil
}

func (a *App) DeleteOrder(ctx context.Context, reference string) error {
	if err := a.store.DeleteOrder(ctx, reference); err != nil {
		return storeErr(err)
	}
	a.invalidate(ctx, TagOrders)
	return nil
}
