package domain

import (
	"encoding/json"
	"testing"
)

func TestLocalizedTextFallback(t *testing.T) {
	tests := []struct {
		name string
		text LocalizedText
		lang Language
		want string
	}{
		{name: "requested language", text: LocalizedText{PT: "Livro", EN: "Book"}, lang: LangEN, want: "Book"},
		{name: "falls back to pt", text: LocalizedText{PT: "Livro"}, lang: LangEN, want: "Livro"},
		{name: "falls back to en", text: LocalizedText{EN: "Book"}, lang: LangPT, want: "Book"},
		{name: "placeholder", text: LocalizedText{}, lang: LangPT, want: PlaceholderName},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.text.Text(tc.lang); got != tc.want {
				t.Fatalf("Text(%q) = %q, want %q", tc.lang, got, tc.want)
			}
		})
	}
}

func TestProductDecodesLegacyShapes(t *testing.T) {
	raw := `{"id":"p1","name":"Matemática 5","price":5000,"type":"book","image":"gs://b/p.png"}`
	var p Product
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Name.PT != "Matemática 5" || p.Name.EN != "Matemática 5" {
		t.Fatalf("unexpected name: %+v", p.Name)
	}
	if len(p.Images) != 1 || p.Images.Primary() != "gs://b/p.png" {
		t.Fatalf("unexpected images: %v", p.Images)
	}

	raw = `{"id":"p2","name":{"pt":"Jogo","en":"Game"},"price":100,"type":"game","image":["a","b"]}`
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Name.EN != "Game" || len(p.Images) != 2 {
		t.Fatalf("unexpected product: %+v", p)
	}
}

func TestReadingPlanItemGradeAcceptsNumbers(t *testing.T) {
	var item ReadingPlanItem
	if err := json.Unmarshal([]byte(`{"productId":"p","schoolId":"s","grade":5,"status":"mandatory"}`), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Grade != "5" {
		t.Fatalf("grade = %q, want %q", item.Grade, "5")
	}
	if err := json.Unmarshal([]byte(`{"grade":"1-4","status":"didactic_aids"}`), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Grade != "1-4" {
		t.Fatalf("grade = %q, want %q", item.Grade, "1-4")
	}
}

func TestProductValidate(t *testing.T) {
	if err := (Product{Type: TypeBook, Price: 0}).Validate(); err != nil {
		t.Fatalf("expected valid product, got %v", err)
	}
	if err := (Product{Type: TypeBook, Price: -1}).Validate(); err == nil {
		t.Fatalf("expected negative price to fail")
	}
	if err := (Product{Type: "toy"}).Validate(); err == nil {
		t.Fatalf("expected unknown type to fail")
	}
	if err := (Product{Type: TypeGame, StockStatus: "gone"}).Validate(); err == nil {
		t.Fatalf("expected unknown stock status to fail")
	}
}

func TestOrderItemsTotal(t *testing.T) {
	o := Order{Items: []OrderItem{{Price: 5000, Quantity: 2}, {Price: 1000, Quantity: 1}}}
	if got := o.ItemsTotal(); got != 11000 {
		t.Fatalf("items total = %d, want 11000", got)
	}
}
