package catalog

import (
	"slices"
	"strings"

	"neokudilonga/pkg/domain"
)

// GradeGroup holds the products of one grade, split by plan status.
// All is the union of the three lists, without duplicates, in the order
// each product was first seen.
type GradeGroup struct {
	Mandatory    []domain.Product `json:"mandatory"`
	Recommended  []domain.Product `json:"recommended"`
	DidacticAids []domain.Product `json:"didactic_aids"`
	All          []domain.Product `json:"all"`
}

// GroupOptions tunes GroupByGrade.
type GroupOptions struct {
	// RebandAids folds didactic-aids items whose grade is still a raw cycle
	// number into the matching band before grouping.
	RebandAids bool
}

// FilterSchoolPlan keeps the items of schoolID that carry a product and a grade.
func FilterSchoolPlan(items []domain.ReadingPlanItem, schoolID string) []domain.ReadingPlanItem {
	out := make([]domain.ReadingPlanItem, 0, len(items))
	for _, item := range items {
		if item.SchoolID != schoolID {
			continue
		}
		if strings.TrimSpace(item.ProductID) == "" || strings.TrimSpace(string(item.Grade)) == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// IndexProducts maps products by id. Later duplicates win.
func IndexProducts(products []domain.Product) map[string]domain.Product {
	idx := make(map[string]domain.Product, len(products))
	for _, p := range products {
		idx[p.ID] = p
	}
	return idx
}

// GroupByGrade buckets plan items by grade key. Items that point at an
// unknown or sold-out product are skipped; an item without a grade lands
// in the generic aids bucket. Grades whose products are all skipped do
// not appear in the result. Each list holds a product at most once.
func GroupByGrade(items []domain.ReadingPlanItem, products []domain.Product, opts GroupOptions) map[string]*GradeGroup {
	idx := IndexProducts(products)
	groups := make(map[string]*GradeGroup)
	seen := make(map[string]*gradeSeen)

	for _, item := range items {
		p, ok := idx[item.ProductID]
		if !ok || !p.Available() {
			continue
		}
		key := groupKey(item, opts)

		g := groups[key]
		if g == nil {
			g = &GradeGroup{}
			groups[key] = g
			seen[key] = newGradeSeen()
		}
		s := seen[key]

		switch item.Status {
		case domain.PlanMandatory:
			g.Mandatory = appendOnce(g.Mandatory, s.mandatory, p)
		case domain.PlanRecommended:
			g.Recommended = appendOnce(g.Recommended, s.recommended, p)
		default:
			g.DidacticAids = appendOnce(g.DidacticAids, s.aids, p)
		}
		g.All = appendOnce(g.All, s.all, p)
	}
	return groups
}

// gradeSeen tracks product ids already placed in each list of one grade.
type gradeSeen struct {
	mandatory, recommended, aids, all map[string]bool
}

func newGradeSeen() *gradeSeen {
	return &gradeSeen{
		mandatory:   make(map[string]bool),
		recommended: make(map[string]bool),
		aids:        make(map[string]bool),
		all:         make(map[string]bool),
	}
}

func appendOnce(list []domain.Product, seen map[string]bool, p domain.Product) []domain.Product {
	if seen[p.ID] {
		return list
	}
	seen[p.ID] = true
	return append(list, p)
}

// DedupProducts keeps the first occurrence of each product id.
func DedupProducts(products []domain.Product) []domain.Product {
	seen := make(map[string]bool, len(products))
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		out = appendOnce(out, seen, p)
	}
	return out
}

func groupKey(item domain.ReadingPlanItem, opts GroupOptions) string {
	key := strings.TrimSpace(string(item.Grade))
	if key == "" {
		return GradeKeyAids
	}
	if opts.RebandAids && item.Status == domain.PlanDidacticAids {
		if g := ParseGrade(key); g.Kind == GradeNumeric && g.Number >= 1 && g.Number <= 3 {
			return MapGradeToBand(key, item.Status)
		}
	}
	return key
}

// BundlePrice sums the prices of products. Negative prices count as zero.
func BundlePrice(products []domain.Product) int64 {
	var total int64
	for _, p := range products {
		total += max(p.Price, 0)
	}
	return total
}

// Kit is a purchasable bundle of products sold at the sum of their prices.
type Kit struct {
	Products []domain.Product `json:"products"`
	Price    int64            `json:"price"`
}

// Empty reports whether the kit has no products.
func (k Kit) Empty() bool {
	return len(k.Products) == 0
}

// MandatoryKit bundles the mandatory products of a grade.
func MandatoryKit(g *GradeGroup) Kit {
	if g == nil {
		return Kit{}
	}
	return Kit{Products: g.Mandatory, Price: BundlePrice(g.Mandatory)}
}

// CompleteKit bundles the mandatory and recommended products of a grade,
// mandatory first. Didactic aids are sold separately and never included.
func CompleteKit(g *GradeGroup) Kit {
	if g == nil {
		return Kit{}
	}
	products := DedupProducts(append(slices.Clone(g.Mandatory), g.Recommended...))
	return Kit{Products: products, Price: BundlePrice(products)}
}

// GradeBundle is one grade section of a school's shop page. Individual is
// set for aids buckets, whose products are sold one by one.
type GradeBundle struct {
	Key          string           `json:"grade"`
	Label        string           `json:"label"`
	Individual   bool             `json:"individual"`
	Mandatory    []domain.Product `json:"mandatory"`
	Recommended  []domain.Product `json:"recommended"`
	DidacticAids []domain.Product `json:"didactic_aids"`
	MandatoryKit Kit              `json:"mandatoryKit"`
	CompleteKit  Kit              `json:"completeKit"`
}

// BuildSchoolPlan filters, groups and sorts a school's reading plan into
// display sections with their kits.
func BuildSchoolPlan(items []domain.ReadingPlanItem, products []domain.Product, schoolID string, lang domain.Language, opts GroupOptions) []GradeBundle {
	groups := GroupByGrade(FilterSchoolPlan(items, schoolID), products, opts)
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	SortGrades(keys)

	out := make([]GradeBundle, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		grade := ParseGrade(key)
		out = append(out, GradeBundle{
			Key:          key,
			Label:        grade.Label(lang),
			Individual:   grade.IsAidsBucket(),
			Mandatory:    nonNil(g.Mandatory),
			Recommended:  nonNil(g.Recommended),
			DidacticAids: nonNil(g.DidacticAids),
			MandatoryKit: MandatoryKit(g),
			CompleteKit:  CompleteKit(g),
		})
	}
	return out
}

func nonNil(products []domain.Product) []domain.Product {
	if products == nil {
		return []domain.Product{}
	}
	return products
}
