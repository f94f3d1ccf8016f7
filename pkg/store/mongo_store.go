package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"neokudilonga/pkg/domain"
)

const (
	productsCollection    = "products"
	readingPlanCollection = "readingPlan"
	schoolsCollection     = "schools"
	categoriesCollection  = "categories"
	publishersCollection  = "publishers"
	ordersCollection      = "orders"
	chatLogsCollection    = "chatLogs"
)

// MongoStore implements Store on MongoDB, one collection per entity.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects, pings and ensures secondary indexes.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongo uri is required")
	}
	if strings.TrimSpace(dbName) == "" {
		dbName = "neokudilonga"
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		readingPlanCollection: {
			{Keys: bson.D{{Key: "product_id", Value: 1}}},
			{Keys: bson.D{{Key: "school_id", Value: 1}, {Key: "grade", Value: 1}}},
		},
		ordersCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "phone", Value: 1}}},
		},
		chatLogsCollection: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func findAll[D any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]D, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	var docs []D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func findOne[D any](ctx context.Context, coll *mongo.Collection, filter any) (D, bool, error) {
	var doc D
	err := coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, err
	}
	return doc, true, nil
}

func byID(id string) bson.M { return bson.M{"_id": id} }

func sortBy(fields ...bson.E) *options.FindOptions {
	return options.Find().SetSort(bson.D(fields))
}

func (s *MongoStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	docs, err := findAll[productDocument](ctx, s.coll(productsCollection), bson.M{},
		sortBy(bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1}))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	res := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.toDomain())
	}
	return res, nil
}

func (s *MongoStore) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	doc, ok, err := findOne[productDocument](ctx, s.coll(productsCollection), byID(id))
	if err != nil || !ok {
		return domain.Product{}, false, err
	}
	return doc.toDomain(), true, nil
}

// SaveProduct replaces the product document, keeping its original created_at.
func (s *MongoStore) SaveProduct(ctx context.Context, p domain.Product) error {
	doc := toProductDocument(p)
	doc.CreatedAt = time.Now().UTC()
	existing, ok, err := findOne[productDocument](ctx, s.coll(productsCollection), byID(p.ID))
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}
	if ok && !existing.CreatedAt.IsZero() {
		doc.CreatedAt = existing.CreatedAt
	}
	_, err = s.coll(productsCollection).ReplaceOne(ctx, byID(p.ID), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.coll(productsCollection).DeleteOne(ctx, byID(id))
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.coll(readingPlanCollection).DeleteMany(ctx, bson.M{"product_id": id}); err != nil {
		return fmt.Errorf("delete product plan items: %w", err)
	}
	return nil
}

func (s *MongoStore) ListReadingPlan(ctx context.Context) ([]domain.ReadingPlanItem, error) {
	return s.listPlan(ctx, bson.M{})
}

func (s *MongoStore) ListReadingPlanByProduct(ctx context.Context, productID string) ([]domain.ReadingPlanItem, error) {
	return s.listPlan(ctx, bson.M{"product_id": productID})
}

func (s *MongoStore) listPlan(ctx context.Context, filter bson.M) ([]domain.ReadingPlanItem, error) {
	docs, err := findAll[planItemDocument](ctx, s.coll(readingPlanCollection), filter,
		sortBy(bson.E{Key: "created_at", Value: 1}, bson.E{Key: "_id", Value: 1}))
	if err != nil {
		return nil, fmt.Errorf("list reading plan: %w", err)
	}
	res := make([]domain.ReadingPlanItem, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.toDomain())
	}
	return res, nil
}

// SaveReadingPlanItems upserts all items in one unordered bulk write.
func (s *MongoStore) SaveReadingPlanItems(ctx context.Context, items []domain.ReadingPlanItem) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(items))
	for _, item := range items {
		doc := toPlanItemDocument(item)
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(byID(item.ID)).
			SetUpdate(bson.M{
				"$set": bson.M{
					"product_id": doc.ProductID,
					"school_id":  doc.SchoolID,
					"grade":      doc.Grade,
					"status":     doc.Status,
				},
				"$setOnInsert": bson.M{"created_at": now},
			}).
			SetUpsert(true))
	}
	if _, err := s.coll(readingPlanCollection).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("save reading plan: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteReadingPlanItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.coll(readingPlanCollection).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("delete reading plan items: %w", err)
	}
	return nil
}

func (s *MongoStore) ListSchools(ctx context.Context) ([]domain.School, error) {
	docs, err := findAll[schoolDocument](ctx, s.coll(schoolsCollection), bson.M{},
		sortBy(bson.E{Key: "order", Value: 1}, bson.E{Key: "_id", Value: 1}))
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	res := make([]domain.School, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.toDomain())
	}
	return res, nil
}

func (s *MongoStore) GetSchool(ctx context.Context, id string) (domain.School, bool, error) {
	doc, ok, err := findOne[schoolDocument](ctx, s.coll(schoolsCollection), byID(id))
	if err != nil || !ok {
		return domain.School{}, false, err
	}
	return doc.toDomain(), true, nil
}

func (s *MongoStore) SaveSchool(ctx context.Context, school domain.School) error {
	_, err := s.coll(schoolsCollection).ReplaceOne(ctx, byID(school.ID), toSchoolDocument(school), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save school: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteSchool(ctx context.Context, id string) error {
	res, err := s.coll(schoolsCollection).DeleteOne(ctx, byID(id))
	if err != nil {
		return fmt.Errorf("delete school: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetSchoolOrder(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(ids))
	for i, id := range ids {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(byID(id)).
			SetUpdate(bson.M{"$set": bson.M{"order": i}}))
	}
	if _, err := s.coll(schoolsCollection).BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("reorder schools: %w", err)
	}
	return nil
}

func (s *MongoStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := findAll[categoryDocument](ctx, s.coll(categoriesCollection), bson.M{}, sortBy(bson.E{Key: "_id", Value: 1}))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	res := make([]domain.Category, 0, len(docs))
	for _, d := range docs {
		res = append(res, domain.Category{ID: d.ID, Name: d.Name.toDomain(), Type: domain.ProductType(d.Type)})
	}
	return res, nil
}

func (s *MongoStore) GetCategory(ctx context.Context, id string) (domain.Category, bool, error) {
	doc, ok, err := findOne[categoryDocument](ctx, s.coll(categoriesCollection), byID(id))
	if err != nil || !ok {
		return domain.Category{}, false, err
	}
	return domain.Category{ID: doc.ID, Name: doc.Name.toDomain(), Type: domain.ProductType(doc.Type)}, true, nil
}

func (s *MongoStore) SaveCategory(ctx context.Context, c domain.Category) error {
	doc := categoryDocument{ID: c.ID, Name: toLocalizedDocument(c.Name), Type: string(c.Type)}
	if _, err := s.coll(categoriesCollection).ReplaceOne(ctx, byID(c.ID), doc, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("save category: %w", err)
	}
	return nil
}

// RenameCategory inserts the new document before removing the old one; the
// unique _id turns a clash into ErrConflict.
func (s *MongoStore) RenameCategory(ctx context.Context, oldID string, c domain.Category) error {
	if _, ok, err := findOne[categoryDocument](ctx, s.coll(categoriesCollection), byID(oldID)); err != nil {
		return fmt.Errorf("load category: %w", err)
	} else if !ok {
		return ErrNotFound
	}
	if c.ID == oldID {
		return s.SaveCategory(ctx, c)
	}
	doc := categoryDocument{ID: c.ID, Name: toLocalizedDocument(c.Name), Type: string(c.Type)}
	if _, err := s.coll(categoriesCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert category: %w", err)
	}
	if _, err := s.coll(categoriesCollection).DeleteOne(ctx, byID(oldID)); err != nil {
		return fmt.Errorf("delete old category: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.coll(categoriesCollection).DeleteOne(ctx, byID(id)); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (s *MongoStore) ListPublishers(ctx context.Context) ([]domain.Publisher, error) {
	docs, err := findAll[publisherDocument](ctx, s.coll(publishersCollection), bson.M{}, sortBy(bson.E{Key: "_id", Value: 1}))
	if err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	res := make([]domain.Publisher, 0, len(docs))
	for _, d := range docs {
		res = append(res, domain.Publisher{Name: d.Name})
	}
	return res, nil
}

func (s *MongoStore) SavePublisher(ctx context.Context, p domain.Publisher) error {
	_, err := s.coll(publishersCollection).ReplaceOne(ctx, byID(p.Name), publisherDocument{Name: p.Name}, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save publisher: %w", err)
	}
	return nil
}

func (s *MongoStore) DeletePublisher(ctx context.Context, name string) error {
	if _, err := s.coll(publishersCollection).DeleteOne(ctx, byID(name)); err != nil {
		return fmt.Errorf("delete publisher: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateOrder(ctx context.Context, o domain.Order) error {
	if _, err := s.coll(ordersCollection).InsertOne(ctx, toOrderDocument(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *MongoStore) GetOrder(ctx context.Context, reference string) (domain.Order, bool, error) {
	doc, ok, err := findOne[orderDocument](ctx, s.coll(ordersCollection), byID(reference))
	if err != nil || !ok {
		return domain.Order{}, false, err
	}
	return doc.toDomain(), true, nil
}

func (s *MongoStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	docs, err := findAll[orderDocument](ctx, s.coll(ordersCollection), bson.M{},
		sortBy(bson.E{Key: "created_at", Value: -1}, bson.E{Key: "_id", Value: -1}))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	res := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		res = append(res, d.toDomain())
	}
	return res, nil
}

func (s *MongoStore) UpdateOrderStatus(ctx context.Context, reference string, update OrderStatusUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.PaymentStatus != nil {
		set["payment_status"] = string(*update.PaymentStatus)
	}
	if update.DeliveryStatus != nil {
		set["delivery_status"] = string(*update.DeliveryStatus)
	}
	res, err := s.coll(ordersCollection).UpdateOne(ctx, byID(reference), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteOrder(ctx context.Context, reference string) error {
	res, err := s.coll(ordersCollection).DeleteOne(ctx, byID(reference))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AppendChatLog(ctx context.Context, l domain.ChatLog) error {
	doc := chatLogDocument{
		ID:        l.ID,
		UserPhone: l.UserPhone,
		Query:     l.Query,
		Response:  l.Response,
		MessageID: l.MessageID,
		Source:    l.Source,
		Timestamp: l.Timestamp.UTC(),
	}
	if _, err := s.coll(chatLogsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

func (s *MongoStore) ListChatLogs(ctx context.Context, limit int) ([]domain.ChatLog, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := findAll[chatLogDocument](ctx, s.coll(chatLogsCollection), bson.M{},
		sortBy(bson.E{Key: "timestamp", Value: -1}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("list chat logs: %w", err)
	}
	res := make([]domain.ChatLog, 0, len(docs))
	for _, d := range docs {
		res = append(res, domain.ChatLog{
			ID:        d.ID,
			UserPhone: d.UserPhone,
			Query:     d.Query,
			Response:  d.Response,
			MessageID: d.MessageID,
			Source:    d.Source,
			Timestamp: d.Timestamp,
		})
	}
	return res, nil
}
