package app

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"neokudilonga/pkg/catalog"
	"neokudilonga/pkg/domain"
)

// Products returns the full catalog, sold-out items included.
func (a *App) Products(ctx context.Context) ([]domain.Product, error) {
	return a.products(ctx)
}

// ShopProducts returns the products visible in the shop for filter f.
func (a *App) ShopProducts(ctx context.Context, f catalog.ProductFilter) ([]domain.Product, error) {
	products, err := a.products(ctx)
	if err != nil {
		return nil, err
	}
	out := catalog.FilterProducts(products, f)
	for i := range out {
		out[i].Images = normalizeImages(out[i].Images)
	}
	return out, nil
}

func (a *App) Product(ctx context.Context, id string) (domain.Product, error) {
	products, err := a.products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: product %s", ErrNotFound, id)
}

func (a *App) ReadingPlan(ctx context.Context) ([]domain.ReadingPlanItem, error) {
	return a.readingPlan(ctx)
}

// Schools returns schools by display order, then pt name.
func (a *App) Schools(ctx context.Context) ([]domain.School, error) {
	schools, err := a.schools(ctx)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(schools)
	slices.SortStableFunc(out, func(x, y domain.School) int {
		if x.Order != y.Order {
			return x.Order - y.Order
		}
		return strings.Compare(x.Name.Text(domain.LangPT), y.Name.Text(domain.LangPT))
	})
	return out, nil
}

func (a *App) Categories(ctx context.Context) ([]domain.Category, error) {
	return a.categories(ctx)
}

func (a *App) Publishers(ctx context.Context) ([]domain.Publisher, error) {
	return a.publishers(ctx)
}

// SchoolPlanView is the aggregated reading plan of one school.
type SchoolPlanView struct {
	School domain.School         `json:"school"`
	Grades []catalog.GradeBundle `json:"grades"`
}

// SchoolPlan aggregates the school's reading plan into grade bundles. Views
// are held in the client tier per school and language.
func (a *App) SchoolPlan(ctx context.Context, schoolID string, lang domain.Language) (SchoolPlanView, error) {
	schoolID = strings.TrimSpace(schoolID)
	if schoolID == "" {
		return SchoolPlanView{}, invalid("school id required")
	}
	key := fmt.Sprintf("plan:%s:%s", schoolID, lang)
	var view SchoolPlanView
	if a.views.Get(ctx, key, &view) {
		return view, nil
	}

	schools, err := a.schools(ctx)
	if err != nil {
		return SchoolPlanView{}, err
	}
	idx := slices.IndexFunc(schools, func(s domain.School) bool { return s.ID == schoolID })
	if idx < 0 {
		return SchoolPlanView{}, fmt.Errorf("%w: school %s", ErrNotFound, schoolID)
	}
	items, err := a.readingPlan(ctx)
	if err != nil {
		return SchoolPlanView{}, err
	}
	products, err := a.products(ctx)
	if err != nil {
		return SchoolPlanView{}, err
	}
	view = SchoolPlanView{
		School: schools[idx],
		Grades: catalog.BuildSchoolPlan(items, products, schoolID, lang, a.groupOpts),
	}
	for gi := range view.Grades {
		g := &view.Grades[gi]
		for _, list := range [][]domain.Product{g.Mandatory, g.Recommended, g.DidacticAids, g.MandatoryKit.Products, g.CompleteKit.Products} {
			for i := range list {
				list[i].Images = normalizeImages(list[i].Images)
			}
		}
	}
	a.views.Set(ctx, key, view, a.viewTTL)
	return view, nil
}

func normalizeImages(images domain.ImageList) domain.ImageList {
	if len(images) == 0 {
		return domain.ImageList{catalog.PlaceholderImageURL}
	}
	out := make(domain.ImageList, len(images))
	for i, ref := range images {
		out[i] = catalog.NormalizeImageURL(ref)
	}
	return out
}
