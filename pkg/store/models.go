package store

import (
	"time"

	"gorm.io/datatypes"

	"neokudilonga/pkg/domain"
)

// GORM models used for persistence. Localized text and nested lists are
// stored as jsonb.
type ProductModel struct {
	ID          string                                   `gorm:"primaryKey"`
	Name        datatypes.JSONType[domain.LocalizedText] `gorm:"type:jsonb;not null"`
	Description datatypes.JSON                           `gorm:"type:jsonb"`
	Price       int64                                    `gorm:"not null"`
	Stock       int                                      `gorm:"not null"`
	Type        string                                   `gorm:"not null;index"`
	StockStatus string
	Category    string `gorm:"index"`
	Publisher   string
	Author      string
	Images      datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	Highlight   bool
	DataAIHint  string
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time
}

type ReadingPlanItemModel struct {
	ID        string `gorm:"primaryKey"`
	ProductID string `gorm:"not null;index"`
	SchoolID  string `gorm:"not null;index"`
	Grade     string `gorm:"not null"`
	Status    string `gorm:"not null"`
	CreatedAt time.Time
}

type SchoolModel struct {
	ID                    string                                   `gorm:"primaryKey"`
	Name                  datatypes.JSONType[domain.LocalizedText] `gorm:"type:jsonb;not null"`
	Description           datatypes.JSONType[domain.LocalizedText] `gorm:"type:jsonb"`
	Abbreviation          string
	Order                 int `gorm:"column:sort_order;not null;default:0"`
	AllowPickup           bool
	AllowPickupAtLocation bool
	HasRecommendedPlan    bool
}

type CategoryModel struct {
	ID   string                                   `gorm:"primaryKey"`
	Name datatypes.JSONType[domain.LocalizedText] `gorm:"type:jsonb;not null"`
	Type string                                   `gorm:"not null"`
}

type PublisherModel struct {
	Name string `gorm:"primaryKey"`
}

type OrderModel struct {
	Reference       string `gorm:"primaryKey"`
	Date            time.Time
	StudentName     string
	StudentClass    string
	GuardianName    string `gorm:"not null"`
	Phone           string `gorm:"not null;index"`
	Email           string `gorm:"not null"`
	Language        string
	DeliveryOption  string `gorm:"not null"`
	DeliveryAddress string
	PaymentMethod   string
	Items           datatypes.JSONSlice[domain.OrderItem] `gorm:"type:jsonb;not null"`
	DeliveryFee     int64                                 `gorm:"not null"`
	Total           int64                                 `gorm:"not null"`
	PaymentStatus   string                                `gorm:"not null"`
	DeliveryStatus  string                                `gorm:"not null"`
	SchoolID        string                                `gorm:"index"`
	SchoolName      string
	PaymentProof    string
	CreatedAt       time.Time `gorm:"not null;index"`
	UpdatedAt       time.Time
}

type ChatLogModel struct {
	ID        string `gorm:"primaryKey"`
	UserPhone string `gorm:"index"`
	Query     string `gorm:"type:text"`
	Response  string `gorm:"type:text"`
	MessageID string
	Source    string
	Timestamp time.Time `gorm:"not null;index"`
}
