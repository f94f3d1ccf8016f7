package catalog

import (
	"testing"

	"neokudilonga/pkg/domain"
)

func TestNormalizeImageURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "firebase url keeps token only",
			in:   "https://firebasestorage.googleapis.com/v0/b/shop.appspot.com/o/p%2Fa.png?alt=media&token=abc-123&foo=bar",
			want: "https://firebasestorage.googleapis.com/v0/b/shop.appspot.com/o/p%2Fa.png?alt=media&token=abc-123",
		},
		{
			name: "firebase url with download tokens",
			in:   "https://firebasestorage.googleapis.com/v0/b/shop/o/x.png?downloadTokens=t1&x=1",
			want: "https://firebasestorage.googleapis.com/v0/b/shop/o/x.png?alt=media&token=t1",
		},
		{
			name: "firebase url without token",
			in:   "https://firebasestorage.googleapis.com/v0/b/shop/o/x.png?foo=bar",
			want: "https://firebasestorage.googleapis.com/v0/b/shop/o/x.png?alt=media",
		},
		{
			name: "gs reference",
			in:   "gs://shop.appspot.com/products/livro 1.png",
			want: "https://firebasestorage.googleapis.com/v0/b/shop.appspot.com/o/products%2Flivro%201.png?alt=media",
		},
		{
			name: "other https passes through",
			in:   "https://cdn.example.com/a.png?w=200",
			want: "https://cdn.example.com/a.png?w=200",
		},
		{name: "relative path", in: "images/a.png", want: PlaceholderImageURL},
		{name: "empty", in: "", want: PlaceholderImageURL},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeImageURL(tc.in); got != tc.want {
				t.Fatalf("NormalizeImageURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeSearch(t *testing.T) {
	if got := NormalizeSearch("  Matemática AVANÇADA "); got != "matematica avancada" {
		t.Fatalf("NormalizeSearch = %q", got)
	}
}

func TestFilterProducts(t *testing.T) {
	desc := &domain.LocalizedText{PT: "Caderno de exercícios", EN: "Workbook"}
	products := []domain.Product{
		{ID: "1", Name: domain.LocalizedText{PT: "Língua Portuguesa"}, Type: domain.TypeBook, Category: "Manuais"},
		{ID: "2", Name: domain.LocalizedText{PT: "Xadrez"}, Type: domain.TypeGame, Category: "Tabuleiro"},
		{ID: "3", Name: domain.LocalizedText{PT: "Matemática"}, Description: desc, Type: domain.TypeBook, Category: "Manuais"},
		{ID: "4", Name: domain.LocalizedText{PT: "Lingua antiga"}, Type: domain.TypeBook, StockStatus: domain.SoldOut},
	}
	tests := []struct {
		name   string
		filter ProductFilter
		want   []string
	}{
		{name: "books", filter: ProductFilter{Type: domain.TypeBook}, want: []string{"1", "3"}},
		{name: "games", filter: ProductFilter{Type: domain.TypeGame}, want: []string{"2"}},
		{name: "accent-insensitive query", filter: ProductFilter{Query: "lingua"}, want: []string{"1"}},
		{name: "description match", filter: ProductFilter{Query: "exercicios"}, want: []string{"3"}},
		{name: "category all", filter: ProductFilter{Category: "all"}, want: []string{"1", "2", "3"}},
		{name: "category", filter: ProductFilter{Category: "Tabuleiro"}, want: []string{"2"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(FilterProducts(products, tc.filter))
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", got, tc.want)
				}
			}
		})
	}
}
