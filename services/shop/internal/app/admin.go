package app

import (
	"cmp"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"neokudilonga/internal/util"
	"neokudilonga/pkg/auth"
	"neokudilonga/pkg/cache"
	"neokudilonga/pkg/catalog"
	"neokudilonga/pkg/domain"
)

const chatLogLimit = 100

// AdminLogin checks the configured admin credentials.
func (a *App) AdminLogin(email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	want := strings.ToLower(strings.TrimSpace(a.adminEmail))
	if want == "" || a.adminHash == "" {
		return ErrUnauthorized
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(want)) == 1
	// Always run bcrypt so a wrong email costs the same as a wrong password.
	passOK := auth.CheckPassword(password, a.adminHash)
	if !emailOK || !passOK {
		return ErrUnauthorized
	}
	return nil
}

// PlanEntry is a reading-plan row submitted with a product.
type PlanEntry struct {
	ID       string            `json:"id,omitempty"`
	SchoolID string            `json:"schoolId"`
	Grade    domain.Grade      `json:"grade"`
	Status   domain.PlanStatus `json:"status"`
}

// ProductInput is the admin payload for creating or updating a product.
type ProductInput struct {
	domain.Product
	ReadingPlan []PlanEntry `json:"readingPlan"`
}

// ProductDetail is a product with its reading-plan rows.
type ProductDetail struct {
	domain.Product
	ReadingPlan []domain.ReadingPlanItem `json:"readingPlan"`
}

func (a *App) ProductDetail(ctx context.Context, id string) (ProductDetail, error) {
	p, ok, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	if !ok {
		return ProductDetail{}, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	items, err := a.store.ListReadingPlanByProduct(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	return ProductDetail{Product: p, ReadingPlan: items}, nil
}

// CreateProduct stores a new product and its reading-plan rows.
func (a *App) CreateProduct(ctx context.Context, in ProductInput) (ProductDetail, error) {
	p := cleanProduct(in.Product)
	if p.ID == "" {
		p.ID = util.NewID()
	} else if _, exists, err := a.store.GetProduct(ctx, p.ID); err != nil {
		return ProductDetail{}, err
	} else if exists {
		return ProductDetail{}, fmt.Errorf("%w: product %s exists", ErrConflict, p.ID)
	}
	return a.saveProduct(ctx, p, in.ReadingPlan, nil)
}

// UpdateProduct replaces a product. Plan rows absent from the input are
// removed.
func (a *App) UpdateProduct(ctx context.Context, id string, in ProductInput) (ProductDetail, error) {
	if _, ok, err := a.store.GetProduct(ctx, id); err != nil {
		return ProductDetail{}, err
	} else if !ok {
		return ProductDetail{}, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	existing, err := a.store.ListReadingPlanByProduct(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	p := cleanProduct(in.Product)
	p.ID = id
	return a.saveProduct(ctx, p, in.ReadingPlan, existing)
}

func (a *App) saveProduct(ctx context.Context, p domain.Product, entries []PlanEntry, existing []domain.ReadingPlanItem) (ProductDetail, error) {
	if p.Name.IsZero() {
		return ProductDetail{}, invalid("product name required")
	}
	if err := p.Validate(); err != nil {
		return ProductDetail{}, invalid("%v", err)
	}
	items := make([]domain.ReadingPlanItem, 0, len(entries))
	for _, e := range entries {
		schoolID := strings.TrimSpace(e.SchoolID)
		if schoolID == "" {
			return ProductDetail{}, invalid("reading plan entry without school")
		}
		if !e.Status.Valid() {
			return ProductDetail{}, invalid("invalid plan status %q", e.Status)
		}
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = util.NewID()
		}
		items = append(items, domain.ReadingPlanItem{
			ID:        id,
			ProductID: p.ID,
			SchoolID:  schoolID,
			Grade:     domain.Grade(catalog.MapGradeToBand(string(e.Grade), e.Status)),
			Status:    e.Status,
		})
	}
	var stale []string
	for _, old := range existing {
		if !slices.ContainsFunc(items, func(it domain.ReadingPlanItem) bool { return it.ID == old.ID }) {
			stale = append(stale, old.ID)
		}
	}

	if err := a.store.SaveProduct(ctx, p); err != nil {
		return ProductDetail{}, fmt.Errorf("save product: %w", storeErr(err))
	}
	if len(stale) > 0 {
		if err := a.store.DeleteReadingPlanItems(ctx, stale); err != nil {
			return ProductDetail{}, fmt.Errorf("delete plan items: %w", err)
		}
	}
	if len(items) > 0 {
		if err := a.store.SaveReadingPlanItems(ctx, items); err != nil {
			return ProductDetail{}, fmt.Errorf("save plan items: %w", err)
		}
	}
	a.invalidateCatalog(ctx, TagProducts, TagReadingPlan)
	a.logger.Info("product saved", "product_id", p.ID, "plan_items", len(items), "plan_removed", len(stale))
	return ProductDetail{Product: p, ReadingPlan: items}, nil
}

func cleanProduct(p domain.Product) domain.Product {
	p.ID = strings.TrimSpace(p.ID)
	p.Category = strings.TrimSpace(p.Category)
	p.Publisher = strings.TrimSpace(p.Publisher)
	p.Author = strings.TrimSpace(p.Author)
	if p.Type == "" {
		p.Type = domain.TypeBook
	}
	if p.StockStatus == "" {
		p.StockStatus = domain.InStock
	}
	if p.Description != nil {
		desc := catalog.PlainTextLocalized(*p.Description)
		p.Description = &desc
		if desc.IsZero() {
			p.Description = nil
		}
	}
	p.Images = slices.DeleteFunc(slices.Clone(p.Images), func(s string) bool { return strings.TrimSpace(s) == "" })
	return p
}

// DeleteProduct removes a product, its plan rows and any images held in
// object storage.
func (a *App) DeleteProduct(ctx context.Context, id string) error {
	p, ok, err := a.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	if err := a.store.DeleteProduct(ctx, id); err != nil {
		return storeErr(err)
	}
	a.invalidateCatalog(ctx, TagProducts, TagReadingPlan)
	if a.objects == nil {
		return nil
	}
	for _, img := range p.Images {
		key, ok := a.objects.KeyFromURL(img)
		if !ok {
			continue
		}
		if err := a.objects.Delete(ctx, key); err != nil {
			a.logger.Warn("delete product image failed", "product_id", id, "key", key, "err", err)
		}
	}
	return nil
}

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadProductImage stores an image and appends its URL to the product.
func (a *App) UploadProductImage(ctx context.Context, productID, filename, contentType string, r io.Reader, size int64) (string, error) {
	if a.objects == nil {
		return "", ErrStorageDisabled
	}
	ext, ok := imageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", invalid("unsupported image type %q", contentType)
	}
	if e := strings.ToLower(path.Ext(filename)); e == ".jpeg" || e == ext {
		ext = e
	}
	p, found, err := a.store.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	key := "products/" + p.ID + "/" + util.NewID() + ext
	if err := a.objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	url, err := a.objects.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("image url: %w", err)
	}
	url = catalog.NormalizeImageURL(url)
	p.Images = append(slices.DeleteFunc(slices.Clone(p.Images), func(s string) bool {
		return s == catalog.PlaceholderImageURL
	}), url)
	if err := a.store.SaveProduct(ctx, p); err != nil {
		return "", fmt.Errorf("save product: %w", err)
	}
	a.invalidateCatalog(ctx, TagProducts)
	return url, nil
}

func (a *App) SaveSchool(ctx context.Context, s domain.School, create bool) (domain.School, error) {
	s.ID = strings.TrimSpace(s.ID)
	s.Abbreviation = strings.ToUpper(strings.TrimSpace(s.Abbreviation))
	if s.Name.IsZero() {
		return domain.School{}, invalid("school name required")
	}
	if s.ID == "" {
		if !create {
			return domain.School{}, invalid("school id required")
		}
		s.ID = util.NewID()
	}
	_, exists, err := a.store.GetSchool(ctx, s.ID)
	if err != nil {
		return domain.School{}, err
	}
	switch {
	case create && exists:
		return domain.School{}, fmt.Errorf("%w: school %s exists", ErrConflict, s.ID)
	case !create && !exists:
		return domain.School{}, fmt.Errorf("%w: school %s", ErrNotFound, s.ID)
	}
	if err := a.store.SaveSchool(ctx, s); err != nil {
		return domain.School{}, storeErr(err)
	}
	a.invalidateCatalog(ctx, TagSchools)
	return s, nil
}

func (a *App) DeleteSchool(ctx context.Context, id string) error {
	if err := a.store.DeleteSchool(ctx, id); err != nil {
		return storeErr(err)
	}
	a.invalidateCatalog(ctx, TagSchools)
	return nil
}

// ReorderSchools sets display order to the position of each id.
func (a *App) ReorderSchools(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return invalid("school ids required")
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			return invalid("duplicate or empty school id %q", id)
		}
		seen[id] = true
	}
	if err := a.store.SetSchoolOrder(ctx, ids); err != nil {
		return storeErr(err)
	}
	a.invalidateCatalog(ctx, TagSchools)
	return nil
}

func (a *App) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	c, err := cleanCategory(c)
	if err != nil {
		return domain.Category{}, err
	}
	if _, exists, err := a.store.GetCategory(ctx, c.ID); err != nil {
		return domain.Category{}, err
	} else if exists {
		return domain.Category{}, fmt.Errorf("%w: category %s exists", ErrConflict, c.ID)
	}
	if err := a.store.SaveCategory(ctx, c); err != nil {
		return domain.Category{}, storeErr(err)
	}
	a.invalidateCatalog(ctx, TagCategories)
	return c, nil
}

// UpdateCategory saves c under oldID, moving it when the id changed.
func (a *App) UpdateCategory(ctx context.Context, oldID string, c domain.Category) (domain.Category, error) {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = oldID
	}
	c, err := cleanCategory(c)
	if err != nil {
		return domain.Category{}, err
	}
	if c.ID == oldID {
		if _, ok, err := a.store.GetCategory(ctx, oldID); err != nil {
			return domain.Category{}, err
		} else if !ok {
			return domain.Category{}, fmt.Errorf("%w: category %s", ErrNotFound, oldID)
		}
		err = a.store.SaveCategory(ctx, c)
	} else {
		err = a.store.RenameCategory(ctx, oldID, c)
	}
	if err != nil {
		return domain.Category{}, storeErr(err)
	}
	a.invalidateCatalog(ctx, TagCategories)
	return c, nil
}

func cleanCategory(c domain.Category) (domain.Category, error) {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		c.ID = strings.TrimSpace(cmp.Or(c.Name.PT, c.Name.EN))
	}
	if c.ID == "" {
		return domain.Category{}, invalid("category name required")
	}
	if c.Name.IsZero() {
		c.Name = domain.LocalizedText{PT: c.ID}
	}
	if c.Type == "" {
		c.Type = domain.TypeBook
	}
	return c, nil
}

func (a *App) DeleteCategory(ctx context.Context, id string) error {
	if err := a.store.DeleteCategory(ctx, id); err != nil {
		return storeErr(err)
	}
	a.invalidateCatalog(ctx, TagCategories)
	return nil
}

func (a *App) CreatePublisher(ctx context.Context, name string) (domain.Publisher, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Publisher{}, invalid("publisher name required")
	}
	p := domain.Publisher{Name: name}
	if err := a.store.SavePublisher(ctx, p); err != nil {
		return domain.Publisher{}, storeErr(err)
	}
	a.invalidateCatalog(ctx, TagPublishers)
	return p, nil
}

func (a *App) DeletePublisher(ctx context.Context, name string) error {
	if err := a.store.DeletePublisher(ctx, name); err != nil {
		return storeErr(err)
	}
	a.invalidateCatalog(ctx, TagPublishers)
	return nil
}

// ChatLogs returns the latest chatbot exchanges.
func (a *App) ChatLogs(ctx context.Context) ([]domain.ChatLog, error) {
	return a.store.ListChatLogs(ctx, chatLogLimit)
}

// CacheStats reports client-tier hit and miss counters.
func (a *App) CacheStats(ctx context.Context) (cache.Stats, error) {
	return a.views.Stats(ctx)
}

func (a *App) ResetCacheStats(ctx context.Context) error {
	return a.views.ResetStats(ctx)
}

// ClearCache empties the client tier and drops every server-tier tag.
func (a *App) ClearCache(ctx context.Context) error {
	if err := a.views.Clear(ctx); err != nil {
		return err
	}
	return a.tags.InvalidateTags(ctx, TagShop, TagOrders)
}
