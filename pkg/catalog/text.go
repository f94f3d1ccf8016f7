package catalog

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"neokudilonga/pkg/domain"
)

// PlaceholderImageURL replaces image references that cannot be displayed.
const PlaceholderImageURL = "https://placehold.co/600x400.png"

var (
	firebaseStorageURL = regexp.MustCompile(`^https?://firebasestorage\.googleapis\.com/`)
	gsURL              = regexp.MustCompile(`^gs://([^/]+)/(.+)$`)
)

// DisplayName picks the product name in lang with fallback.
func DisplayName(p domain.Product, lang domain.Language) string {
	return p.Name.Text(lang)
}

// NormalizeImageURL turns a stored image reference into a browser URL.
// Firebase download URLs are reduced to alt=media plus the access token,
// gs:// references are rewritten to the download endpoint, other http(s)
// URLs pass through and anything else becomes the placeholder.
func NormalizeImageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return PlaceholderImageURL
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if !firebaseStorageURL.MatchString(ref) {
			return ref
		}
		base, rawQuery, _ := strings.Cut(ref, "?")
		rawQuery, _, _ = strings.Cut(rawQuery, "?")
		query, _ := url.ParseQuery(rawQuery)
		out := base + "?alt=media"
		if token := query.Get("token"); token != "" {
			out += "&token=" + token
		} else if token := query.Get("downloadTokens"); token != "" {
			out += "&token=" + token
		}
		return out
	}
	if m := gsURL.FindStringSubmatch(ref); m != nil {
		return "https://firebasestorage.googleapis.com/v0/b/" + m[1] + "/o/" + encodeComponent(m[2]) + "?alt=media"
	}
	return PlaceholderImageURL
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSearch lowercases s and strips diacritics so "Matemática" matches "matematica".
func NormalizeSearch(s string) string {
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// ProductFilter narrows a catalog listing.
type ProductFilter struct {
	Type     domain.ProductType
	Query    string
	Category string
	Lang     domain.Language
}

// FilterProducts applies f to products, hiding sold-out items. The query is
// matched against the name and description in the filter's language.
func FilterProducts(products []domain.Product, f ProductFilter) []domain.Product {
	query := NormalizeSearch(f.Query)
	category := strings.TrimSpace(f.Category)
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if !p.Available() {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if category != "" && category != "all" && p.Category != category {
			continue
		}
		if query != "" && !matchesQuery(p, query, f.Lang) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesQuery(p domain.Product, query string, lang domain.Language) bool {
	if strings.Contains(NormalizeSearch(p.Name.Text(lang)), query) {
		return true
	}
	if p.Description != nil && !p.Description.IsZero() {
		return strings.Contains(NormalizeSearch(p.Description.Text(lang)), query)
	}
	return false
}
