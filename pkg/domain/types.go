package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Language selects which side of a LocalizedText to display.
type Language string

const (
	LangPT Language = "pt"
	LangEN Language = "en"
)

// ParseLanguage maps free-form input to a supported language, defaulting to pt.
func ParseLanguage(raw string) Language {
	if strings.EqualFold(strings.TrimSpace(raw), string(LangEN)) {
		return LangEN
	}
	return LangPT
}

// PlaceholderName is shown when a product has no usable name.
const PlaceholderName = "Product Image"

// LocalizedText holds a pt/en pair. Older documents store a plain string,
// which decodes into both sides.
type LocalizedText struct {
	PT string `json:"pt" bson:"pt"`
	EN string `json:"en" bson:"en"`
}

// Text returns the requested language, falling back to pt, then en, then the placeholder.
func (t LocalizedText) Text(lang Language) string {
	if lang == LangEN && t.EN != "" {
		return t.EN
	}
	if lang == LangPT && t.PT != "" {
		return t.PT
	}
	if t.PT != "" {
		return t.PT
	}
	if t.EN != "" {
		return t.EN
	}
	return PlaceholderName
}

// IsZero reports whether both sides are empty.
func (t LocalizedText) IsZero() bool {
	return t.PT == "" && t.EN == ""
}

func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = LocalizedText{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = LocalizedText{PT: s, EN: s}
		return nil
	}
	type plain LocalizedText
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("localized text: %w", err)
	}
	*t = LocalizedText(p)
	return nil
}

// ImageList accepts either a single image reference or a list of them.
type ImageList []string

// Primary returns the first image reference, or "".
func (l ImageList) Primary() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

func (l *ImageList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
			return nil
		}
		*l = ImageList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("image list: %w", err)
	}
	*l = ImageList(items)
	return nil
}

type ProductType string

const (
	TypeBook ProductType = "book"
	TypeGame ProductType = "game"
)

// ParseProductType maps input to a product type; anything but "game" is a book.
func ParseProductType(raw string) ProductType {
	if strings.EqualFold(strings.TrimSpace(raw), string(TypeGame)) {
		return TypeGame
	}
	return TypeBook
}

type StockStatus string

const (
	InStock    StockStatus = "in_stock"
	OutOfStock StockStatus = "out_of_stock"
	SoldOut    StockStatus = "sold_out"
)

type PlanStatus string

const (
	PlanMandatory    PlanStatus = "mandatory"
	PlanRecommended  PlanStatus = "recommended"
	PlanDidacticAids PlanStatus = "didactic_aids"
)

// Valid reports whether s is one of the known plan statuses.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanMandatory, PlanRecommended, PlanDidacticAids:
		return true
	}
	return false
}

// Product is a book or game in the catalog. Price is in whole kwanza.
type Product struct {
	ID          string         `json:"id"`
	Name        LocalizedText  `json:"name"`
	Description *LocalizedText `json:"description,omitempty"`
	Price       int64          `json:"price"`
	Stock       int            `json:"stock"`
	Type        ProductType    `json:"type"`
	StockStatus StockStatus    `json:"stockStatus,omitempty"`
	Category    string         `json:"category,omitempty"`
	Publisher   string         `json:"publisher,omitempty"`
	Author      string         `json:"author,omitempty"`
	Images      ImageList      `json:"image,omitempty"`
	Highlight   bool           `json:"highlight,omitempty"`
	DataAIHint  string         `json:"dataAiHint,omitempty"`
}

// Available reports whether the product may be shown in shop listings and bundles.
func (p Product) Available() bool {
	return p.StockStatus != SoldOut
}

// Validate checks closed-set fields and the price invariant.
func (p Product) Validate() error {
	if p.Price < 0 {
		return errors.New("price must be non-negative")
	}
	switch p.Type {
	case TypeBook, TypeGame:
	default:
		return fmt.Errorf("invalid product type %q", p.Type)
	}
	switch p.StockStatus {
	case "", InStock, OutOfStock, SoldOut:
	default:
		return fmt.Errorf("invalid stock status %q", p.StockStatus)
	}
	return nil
}

// Grade is the raw grade token as stored, e.g. "5", "1-4", "didactic_aids".
// Numbers arriving as JSON numbers are stringified.
type Grade string

func (g *Grade) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = Grade(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("grade: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*g = Grade(strconv.FormatInt(i, 10))
		return nil
	}
	*g = Grade(n.String())
	return nil
}

// ReadingPlanItem associates a product with a school grade.
type ReadingPlanItem struct {
	ID        string     `json:"id,omitempty"`
	ProductID string     `json:"productId"`
	SchoolID  string     `json:"schoolId"`
	Grade     Grade      `json:"grade"`
	Status    PlanStatus `json:"status"`
}

type School struct {
	ID                    string        `json:"id"`
	Name                  LocalizedText `json:"name"`
	Description           LocalizedText `json:"description"`
	Abbreviation          string        `json:"abbreviation"`
	Order                 int           `json:"order"`
	AllowPickup           bool          `json:"allowPickup"`
	AllowPickupAtLocation bool          `json:"allowPickupAtLocation"`
	HasRecommendedPlan    bool          `json:"hasRecommendedPlan"`
}

type Category struct {
	ID   string        `json:"id"`
	Name LocalizedText `json:"name"`
	Type ProductType   `json:"type"`
}

type Publisher struct {
	Name string `json:"name"`
}

type PaymentStatus string

const (
	PaymentPaid          PaymentStatus = "paid"
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentCancelled     PaymentStatus = "cancelled"
	PaymentCOD           PaymentStatus = "cod"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPaid, PaymentUnpaid, PaymentPartiallyPaid, PaymentCancelled, PaymentCOD:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryDelivered    DeliveryStatus = "delivered"
	DeliveryNotDelivered DeliveryStatus = "not_delivered"
	DeliverySchoolPickup DeliveryStatus = "school_pickup"
	DeliveryOutOfStock   DeliveryStatus = "out_of_stock"
	DeliveryCancelled    DeliveryStatus = "cancelled"
)

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryDelivered, DeliveryNotDelivered, DeliverySchoolPickup, DeliveryOutOfStock, DeliveryCancelled:
		return true
	}
	return false
}

// Delivery options offered at checkout.
const (
	DeliveryHome          = "delivery"
	DeliveryPickup        = "pickup"
	DeliverySchoolCollect = "levantamento"
)

// OrderItem is a snapshot of a product at the time the order was placed.
type OrderItem struct {
	ProductID string        `json:"productId"`
	Name      LocalizedText `json:"name"`
	Type      ProductType   `json:"type"`
	Price     int64         `json:"price"`
	Quantity  int           `json:"quantity"`
	KitID     string        `json:"kitId,omitempty"`
	KitName   string        `json:"kitName,omitempty"`
}

// Subtotal returns price times quantity.
func (i OrderItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

type Order struct {
	Reference       string         `json:"reference"`
	Date            time.Time      `json:"date"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	StudentName     string         `json:"studentName,omitempty"`
	StudentClass    string         `json:"studentClass,omitempty"`
	GuardianName    string         `json:"guardianName"`
	Phone           string         `json:"phone"`
	Email           string         `json:"email"`
	Language        Language       `json:"language"`
	DeliveryOption  string         `json:"deliveryOption"`
	DeliveryAddress string         `json:"deliveryAddress,omitempty"`
	PaymentMethod   string         `json:"paymentMethod"`
	Items           []OrderItem    `json:"items"`
	DeliveryFee     int64          `json:"deliveryFee"`
	Total           int64          `json:"total"`
	PaymentStatus   PaymentStatus  `json:"paymentStatus"`
	DeliveryStatus  DeliveryStatus `json:"deliveryStatus"`
	SchoolID        string         `json:"schoolId,omitempty"`
	SchoolName      string         `json:"schoolName,omitempty"`
	PaymentProof    string         `json:"paymentProof,omitempty"`
}

// ItemsTotal sums line item subtotals.
func (o Order) ItemsTotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.Subtotal()
	}
	return sum
}

// ChatLog records one chatbot exchange.
type ChatLog struct {
	ID        string    `json:"id"`
	UserPhone string    `json:"userPhone"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	MessageID string    `json:"messageId,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
