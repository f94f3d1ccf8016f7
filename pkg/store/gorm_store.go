package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"neokudilonga/pkg/domain"
)

const migrateLockID int64 = 51120244

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&ProductModel{},
			&ReadingPlanItemModel{},
			&SchoolModel{},
			&CategoryModel{},
			&PublisherModel{},
			&OrderModel{},
			&ChatLogModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DELETE FROM reading_plan_item_models r
			WHERE NOT EXISTS (SELECT 1 FROM product_models p WHERE p.id = r.product_id);
		`).Error; err != nil {
			return fmt.Errorf("prune orphan reading plan items: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListProducts returns all products ordered by created_at.
func (s *GormStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var models []ProductModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Product, 0, len(models))
	for _, m := range models {
		res = append(res, productFromModel(m))
	}
	return res, nil
}

// GetProduct returns a product by ID.
func (s *GormStore) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	var model ProductModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, err
	}
	return productFromModel(model), true, nil
}

// SaveProduct creates or replaces a product.
func (s *GormStore) SaveProduct(ctx context.Context, p domain.Product) error {
	model, err := productToModel(p)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "price", "stock", "type", "stock_status", "category",
			"publisher", "author", "images", "highlight", "data_ai_hint", "updated_at",
		}),
	}).Create(&model).Error
}

// DeleteProduct removes a product and its reading plan items.
func (s *GormStore) DeleteProduct(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReadingPlanItemModel{}, "product_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&ProductModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) ListReadingPlan(ctx context.Context) ([]domain.ReadingPlanItem, error) {
	return s.listPlan(ctx)
}

func (s *GormStore) ListReadingPlanByProduct(ctx context.Context, productID string) ([]domain.ReadingPlanItem, error) {
	return s.listPlan(ctx, "product_id = ?", productID)
}

func (s *GormStore) listPlan(ctx context.Context, conds ...any) ([]domain.ReadingPlanItem, error) {
	var models []ReadingPlanItemModel
	tx := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ReadingPlanItem, 0, len(models))
	for _, m := range models {
		res = append(res, planItemFromModel(m))
	}
	return res, nil
}

// SaveReadingPlanItems upserts items by ID.
func (s *GormStore) SaveReadingPlanItems(ctx context.Context, items []domain.ReadingPlanItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]ReadingPlanItemModel, 0, len(items))
	for _, item := range items {
		m := planItemToModel(item)
		m.CreatedAt = now
		models = append(models, m)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "school_id", "grade", "status"}),
	}).CreateInBatches(&models, 200).Error
}

func (s *GormStore) DeleteReadingPlanItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&ReadingPlanItemModel{}, "id IN ?", ids).Error
}

// ListSchools returns schools by display order.
func (s *GormStore) ListSchools(ctx context.Context) ([]domain.School, error) {
	var models []SchoolModel
	if err := s.db.WithContext(ctx).Order("sort_order ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.School, 0, len(models))
	for _, m := range models {
		res = append(res, schoolFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetSchool(ctx context.Context, id string) (domain.School, bool, error) {
	var model SchoolModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.School{}, false, nil
		}
		return domain.School{}, false, err
	}
	return schoolFromModel(model), true, nil
}

func (s *GormStore) SaveSchool(ctx context.Context, school domain.School) error {
	model := schoolToModel(school)
	return s.db.WithContext(ctx).Save(&model).Error
}

func (s *GormStore) DeleteSchool(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&SchoolModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSchoolOrder rewrites sort_order in one transaction.
func (s *GormStore) SetSchoolOrder(ctx context.Context, ids []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			if err := tx.Model(&SchoolModel{}).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var models []CategoryModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Category, 0, len(models))
	for _, m := range models {
		res = append(res, categoryFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetCategory(ctx context.Context, id string) (domain.Category, bool, error) {
	var model CategoryModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Category{}, false, nil
		}
		return domain.Category{}, false, err
	}
	return categoryFromModel(model), true, nil
}

func (s *GormStore) SaveCategory(ctx context.Context, c domain.Category) error {
	model := categoryToModel(c)
	return s.db.WithContext(ctx).Save(&model).Error
}

// RenameCategory moves a category to a new id inside a transaction.
func (s *GormStore) RenameCategory(ctx context.Context, oldID string, c domain.Category) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current CategoryModel
		if err := tx.First(&current, "id = ?", oldID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		model := categoryToModel(c)
		if c.ID == oldID {
			return tx.Save(&model).Error
		}
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}
		return tx.Delete(&CategoryModel{}, "id = ?", oldID).Error
	})
}

func (s *GormStore) DeleteCategory(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&CategoryModel{}, "id = ?", id).Error
}

func (s *GormStore) ListPublishers(ctx context.Context) ([]domain.Publisher, error) {
	var models []PublisherModel
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Publisher, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Publisher{Name: m.Name})
	}
	return res, nil
}

func (s *GormStore) SavePublisher(ctx context.Context, p domain.Publisher) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&PublisherModel{Name: p.Name}).Error
}

func (s *GormStore) DeletePublisher(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Delete(&PublisherModel{}, "name = ?", name).Error
}

// CreateOrder inserts an order, failing with ErrConflict on a taken reference.
func (s *GormStore) CreateOrder(ctx context.Context, o domain.Order) error {
	model := orderToModel(o)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *GormStore) GetOrder(ctx context.Context, reference string) (domain.Order, bool, error) {
	var model OrderModel
	if err := s.db.WithContext(ctx).First(&model, "reference = ?", reference).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, err
	}
	return orderFromModel(model), true, nil
}

// ListOrders returns orders newest first.
func (s *GormStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var models []OrderModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("reference DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Order, 0, len(models))
	for _, m := range models {
		res = append(res, orderFromModel(m))
	}
	return res, nil
}

func (s *GormStore) UpdateOrderStatus(ctx context.Context, reference string, update OrderStatusUpdate) error {
	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if update.PaymentStatus != nil {
		updates["payment_status"] = string(*update.PaymentStatus)
	}
	if update.DeliveryStatus != nil {
		updates["delivery_status"] = string(*update.DeliveryStatus)
	}
	res := s.db.WithContext(ctx).Model(&OrderModel{}).Where("reference = ?", reference).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteOrder(ctx context.Context, reference string) error {
	res := s.db.WithContext(ctx).Delete(&OrderModel{}, "reference = ?", reference)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendChatLog(ctx context.Context, l domain.ChatLog) error {
	model := ChatLogModel{
		ID:        l.ID,
		UserPhone: l.UserPhone,
		Query:     l.Query,
		Response:  l.Response,
		MessageID: l.MessageID,
		Source:    l.Source,
		Timestamp: l.Timestamp.UTC(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListChatLogs(ctx context.Context, limit int) ([]domain.ChatLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []ChatLogModel
	if err := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatLog, 0, len(models))
	for _, m := range models {
		res = append(res, domain.ChatLog{
			ID:        m.ID,
			UserPhone: m.UserPhone,
			Query:     m.Query,
			Response:  m.Response,
			MessageID: m.MessageID,
			Source:    m.Source,
			Timestamp: m.Timestamp,
		})
	}
	return res, nil
}

func productToModel(p domain.Product) (ProductModel, error) {
	var desc datatypes.JSON
	if p.Description != nil {
		raw, err := json.Marshal(p.Description)
		if err != nil {
			return ProductModel{}, fmt.Errorf("encode description: %w", err)
		}
		desc = raw
	}
	now := time.Now().UTC()
	return ProductModel{
		ID:          p.ID,
		Name:        datatypes.NewJSONType(p.Name),
		Description: desc,
		Price:       p.Price,
		Stock:       p.Stock,
		Type:        string(p.Type),
		StockStatus: string(p.StockStatus),
		Category:    p.Category,
		Publisher:   p.Publisher,
		Author:      p.Author,
		Images:      datatypes.NewJSONSlice([]string(p.Images)),
		Highlight:   p.Highlight,
		DataAIHint:  p.DataAIHint,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func productFromModel(m ProductModel) domain.Product {
	p := domain.Product{
		ID:          m.ID,
		Name:        m.Name.Data(),
		Price:       m.Price,
		Stock:       m.Stock,
		Type:        domain.ProductType(m.Type),
		StockStatus: domain.StockStatus(m.StockStatus),
		Category:    m.Category,
		Publisher:   m.Publisher,
		Author:      m.Author,
		Images:      domain.ImageList(m.Images),
		Highlight:   m.Highlight,
		DataAIHint:  m.DataAIHint,
	}
	if len(m.Description) > 0 && string(m.Description) != "null" {
		var desc domain.LocalizedText
		if err := json.Unmarshal(m.Description, &desc); err == nil {
			p.Description = &desc
		}
	}
	return p
}

func planItemToModel(item domain.ReadingPlanItem) ReadingPlanItemModel {
	return ReadingPlanItemModel{
		ID:        item.ID,
		ProductID: item.ProductID,
		SchoolID:  item.SchoolID,
		Grade:     string(item.Grade),
		Status:    string(item.Status),
	}
}

func planItemFromModel(m ReadingPlanItemModel) domain.ReadingPlanItem {
	return domain.ReadingPlanItem{
		ID:        m.ID,
		ProductID: m.ProductID,
		SchoolID:  m.SchoolID,
		Grade:     domain.Grade(m.Grade),
		Status:    domain.PlanStatus(m.Status),
	}
}

func schoolToModel(s domain.School) SchoolModel {
	return SchoolModel{
		ID:                    s.ID,
		Name:                  datatypes.NewJSONType(s.Name),
		Description:           datatypes.NewJSONType(s.Description),
		Abbreviation:          s.Abbreviation,
		Order:                 s.Order,
		AllowPickup:           s.AllowPickup,
		AllowPickupAtLocation: s.AllowPickupAtLocation,
		HasRecommendedPlan:    s.HasRecommendedPlan,
	}
}

func schoolFromModel(m SchoolModel) domain.School {
	return domain.School{
		ID:                    m.ID,
		Name:                  m.Name.Data(),
		Description:           m.Description.Data(),
		Abbreviation:          m.Abbreviation,
		Order:                 m.Order,
		AllowPickup:           m.AllowPickup,
		AllowPickupAtLocation: m.AllowPickupAtLocation,
		HasRecommendedPlan:    m.HasRecommendedPlan,
	}
}

func categoryToModel(c domain.Category) CategoryModel {
	return CategoryModel{ID: c.ID, Name: datatypes.NewJSONType(c.Name), Type: string(c.Type)}
}

func categoryFromModel(m CategoryModel) domain.Category {
	return domain.Category{ID: m.ID, Name: m.Name.Data(), Type: domain.ProductType(m.Type)}
}

func orderToModel(o domain.Order) OrderModel {
	return OrderModel{
		Reference:       o.Reference,
		Date:            o.Date.UTC(),
		StudentName:     o.StudentName,
		StudentClass:    o.StudentClass,
		GuardianName:    o.GuardianName,
		Phone:           o.Phone,
		Email:           o.Email,
		Language:        string(o.Language),
		DeliveryOption:  o.DeliveryOption,
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   o.PaymentMethod,
		Items:           datatypes.NewJSONSlice(o.Items),
		DeliveryFee:     o.DeliveryFee,
		Total:           o.Total,
		PaymentStatus:   string(o.PaymentStatus),
		DeliveryStatus:  string(o.DeliveryStatus),
		SchoolID:        o.SchoolID,
		SchoolName:      o.SchoolName,
		PaymentProof:    o.PaymentProof,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
}

func orderFromModel(m OrderModel) domain.Order {
	return domain.Order{
		Reference:       m.Reference,
		Date:            m.Date,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		StudentName:     m.StudentName,
		StudentClass:    m.StudentClass,
		GuardianName:    m.GuardianName,
		Phone:           m.Phone,
		Email:           m.Email,
		Language:        domain.Language(m.Language),
		DeliveryOption:  m.DeliveryOption,
		DeliveryAddress: m.DeliveryAddress,
		PaymentMethod:   m.PaymentMethod,
		Items:           []domain.OrderItem(m.Items),
		DeliveryFee:     m.DeliveryFee,
		Total:           m.Total,
		PaymentStatus:   domain.PaymentStatus(m.PaymentStatus),
		DeliveryStatus:  domain.DeliveryStatus(m.DeliveryStatus),
		SchoolID:        m.SchoolID,
		SchoolName:      m.SchoolName,
		PaymentProof:    m.PaymentProof,
	}
}
