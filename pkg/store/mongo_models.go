package store

import (
	"time"

	"neokudilonga/pkg/domain"
)

// Mongo documents. Natural ids (product id, school id, category pt name,
// publisher name, order reference) are stored as _id.

type localizedDocument struct {
	PT string `bson:"pt"`
	EN string `bson:"en"`
}

type productDocument struct {
	ID          string             `bson:"_id"`
	Name        localizedDocument  `bson:"name"`
	Description *localizedDocument `bson:"description,omitempty"`
	Price       int64              `bson:"price"`
	Stock       int                `bson:"stock"`
	Type        string             `bson:"type"`
	StockStatus string             `bson:"stock_status,omitempty"`
	Category    string             `bson:"category,omitempty"`
	Publisher   string             `bson:"publisher,omitempty"`
	Author      string             `bson:"author,omitempty"`
	Images      []string           `bson:"images,omitempty"`
	Highlight   bool               `bson:"highlight"`
	DataAIHint  string             `bson:"data_ai_hint,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

type planItemDocument struct {
	ID        string    `bson:"_id"`
	ProductID string    `bson:"product_id"`
	SchoolID  string    `bson:"school_id"`
	Grade     string    `bson:"grade"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
}

type schoolDocument struct {
	ID                    string            `bson:"_id"`
	Name                  localizedDocument `bson:"name"`
	Description           localizedDocument `bson:"description"`
	Abbreviation          string            `bson:"abbreviation,omitempty"`
	Order                 int               `bson:"order"`
	AllowPickup           bool              `bson:"allow_pickup"`
	AllowPickupAtLocation bool              `bson:"allow_pickup_at_location"`
	HasRecommendedPlan    bool              `bson:"has_recommended_plan"`
}

type categoryDocument struct {
	ID   string            `bson:"_id"`
	Name localizedDocument `bson:"name"`
	Type string            `bson:"type"`
}

type publisherDocument struct {
	Name string `bson:"_id"`
}

type orderItemDocument struct {
	ProductID string            `bson:"product_id"`
	Name      localizedDocument `bson:"name"`
	Type      string            `bson:"type"`
	Price     int64             `bson:"price"`
	Quantity  int               `bson:"quantity"`
	KitID     string            `bson:"kit_id,omitempty"`
	KitName   string            `bson:"kit_name,omitempty"`
}

type orderDocument struct {
	Reference       string              `bson:"_id"`
	Date            time.Time           `bson:"date"`
	CreatedAt       time.Time           `bson:"created_at"`
	UpdatedAt       time.Time           `bson:"updated_at"`
	StudentName     string              `bson:"student_name,omitempty"`
	StudentClass    string              `bson:"student_class,omitempty"`
	GuardianName    string              `bson:"guardian_name"`
	Phone           string              `bson:"phone"`
	Email           string              `bson:"email"`
	Language        string              `bson:"language"`
	DeliveryOption  string              `bson:"delivery_option"`
	DeliveryAddress string              `bson:"delivery_address,omitempty"`
	PaymentMethod   string              `bson:"payment_method"`
	Items           []orderItemDocument `bson:"items"`
	DeliveryFee     int64               `bson:"delivery_fee"`
	Total           int64               `bson:"total"`
	PaymentStatus   string              `bson:"payment_status"`
	DeliveryStatus  string              `bson:"delivery_status"`
	SchoolID        string              `bson:"school_id,omitempty"`
	SchoolName      string              `bson:"school_name,omitempty"`
	PaymentProof    string              `bson:"payment_proof,omitempty"`
}

type chatLogDocument struct {
	ID        string    `bson:"_id"`
	UserPhone string    `bson:"user_phone"`
	Query     string    `bson:"query"`
	Response  string    `bson:"response"`
	MessageID string    `bson:"message_id,omitempty"`
	Source    string    `bson:"source"`
	Timestamp time.Time `bson:"timestamp"`
}

func toLocalizedDocument(t domain.LocalizedText) localizedDocument {
	return localizedDocument{PT: t.PT, EN: t.EN}
}

func (d localizedDocument) toDomain() domain.LocalizedText {
	return domain.LocalizedText{PT: d.PT, EN: d.EN}
}

func toProductDocument(p domain.Product) productDocument {
	doc := productDocument{
		ID:          p.ID,
		Name:        toLocalizedDocument(p.Name),
		Price:       p.Price,
		Stock:       p.Stock,
		Type:        string(p.Type),
		StockStatus: string(p.StockStatus),
		Category:    p.Category,
		Publisher:   p.Publisher,
		Author:      p.Author,
		Images:      []string(p.Images),
		Highlight:   p.Highlight,
		DataAIHint:  p.DataAIHint,
	}
	if p.Description != nil {
		desc := toLocalizedDocument(*p.Description)
		doc.Description = &desc
	}
	return doc
}

func (d productDocument) toDomain() domain.Product {
	p := domain.Product{
		ID:          d.ID,
		Name:        d.Name.toDomain(),
		Price:       d.Price,
		Stock:       d.Stock,
		Type:        domain.ProductType(d.Type),
		StockStatus: domain.StockStatus(d.StockStatus),
		Category:    d.Category,
		Publisher:   d.Publisher,
		Author:      d.Author,
		Images:      domain.ImageList(d.Images),
		Highlight:   d.Highlight,
		DataAIHint:  d.DataAIHint,
	}
	if d.Description != nil {
		desc := d.Description.toDomain()
		p.Description = &desc
	}
	return p
}

func toPlanItemDocument(item domain.ReadingPlanItem) planItemDocument {
	return planItemDocument{
		ID:        item.ID,
		ProductID: item.ProductID,
		SchoolID:  item.SchoolID,
		Grade:     string(item.Grade),
		Status:    string(item.Status),
	}
}

func (d planItemDocument) toDomain() domain.ReadingPlanItem {
	return domain.ReadingPlanItem{
		ID:        d.ID,
		ProductID: d.ProductID,
		SchoolID:  d.SchoolID,
		Grade:     domain.Grade(d.Grade),
		Status:    domain.PlanStatus(d.Status),
	}
}

func toSchoolDocument(s domain.School) schoolDocument {
	return schoolDocument{
		ID:                    s.ID,
		Name:                  toLocalizedDocument(s.Name),
		Description:           toLocalizedDocument(s.Description),
		Abbreviation:          s.Abbreviation,
		Order:                 s.Order,
		AllowPickup:           s.AllowPickup,
		AllowPickupAtLocation: s.AllowPickupAtLocation,
		HasRecommendedPlan:    s.HasRecommendedPlan,
	}
}

func (d schoolDocument) toDomain() domain.School {
	return domain.School{
		ID:                    d.ID,
		Name:                  d.Name.toDomain(),
		Description:           d.Description.toDomain(),
		Abbreviation:          d.Abbreviation,
		Order:                 d.Order,
		AllowPickup:           d.AllowPickup,
		AllowPickupAtLocation: d.AllowPickupAtLocation,
		HasRecommendedPlan:    d.HasRecommendedPlan,
	}
}

func toOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemDocument{
			ProductID: item.ProductID,
			Name:      toLocalizedDocument(item.Name),
			Type:      string(item.Type),
			Price:     item.Price,
			Quantity:  item.Quantity,
			KitID:     item.KitID,
			KitName:   item.KitName,
		}
	}
	return orderDocument{
		Reference:       o.Reference,
		Date:            o.Date.UTC(),
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
		StudentName:     o.StudentName,
		StudentClass:    o.StudentClass,
		GuardianName:    o.GuardianName,
		Phone:           o.Phone,
		Email:           o.Email,
		Language:        string(o.Language),
		DeliveryOption:  o.DeliveryOption,
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   o.PaymentMethod,
		Items:           items,
		DeliveryFee:     o.DeliveryFee,
		Total:           o.Total,
		PaymentStatus:   string(o.PaymentStatus),
		DeliveryStatus:  string(o.DeliveryStatus),
		SchoolID:        o.SchoolID,
		SchoolName:      o.SchoolName,
		PaymentProof:    o.PaymentProof,
	}
}

func (d orderDocument) toDomain() domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name.toDomain(),
			Type:      domain.ProductType(item.Type),
			Price:     item.Price,
			Quantity:  item.Quantity,
			KitID:     item.KitID,
			KitName:   item.KitName,
		}
	}
	return domain.Order{
		Reference:       d.Reference,
		Date:            d.Date,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		StudentName:     d.StudentName,
		StudentClass:    d.StudentClass,
		GuardianName:    d.GuardianName,
		Phone:           d.Phone,
		Email:           d.Email,
		Language:        domain.Language(d.Language),
		DeliveryOption:  d.DeliveryOption,
		DeliveryAddress: d.DeliveryAddress,
		PaymentMethod:   d.PaymentMethod,
		Items:           items,
		DeliveryFee:     d.DeliveryFee,
		Total:           d.Total,
		PaymentStatus:   domain.PaymentStatus(d.PaymentStatus),
		DeliveryStatus:  domain.DeliveryStatus(d.DeliveryStatus),
		SchoolID:        d.SchoolID,
		SchoolName:      d.SchoolName,
		PaymentProof:    d.PaymentProof,
	}
}
