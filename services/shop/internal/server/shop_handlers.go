package server

import (
	"net/http"

	"neokudilonga/pkg/catalog"
	"neokudilonga/pkg/domain"
	"neokudilonga/services/shop/internal/app"
)

func (s *Server) handleSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := s.app.Schools(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schools)
}

func (s *Server) handleSchoolPlan(w http.ResponseWriter, r *http.Request) {
	lang := domain.ParseLanguage(r.URL.Query().Get("lang"))
	view, err := s.app.SchoolPlan(r.Context(), r.PathValue("id"), lang)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.app.Categories(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handlePublishers(w http.ResponseWriter, r *http.Request) {
	publishers, err := s.app.Publishers(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publishers)
}

func (s *Server) handleShopProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.ProductFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Lang:     domain.ParseLanguage(q.Get("lang")),
	}
	if t := q.Get("type"); t != "" {
		filter.Type = domain.ParseProductType(t)
	}
	products, err := s.app.ShopProducts(r.Context(), filter)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleShopProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Product(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if !p.Available() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.checkoutLimiter, "too many orders") {
		return
	}
	var req app.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	order, err := s.app.Checkout(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.app.Order(r.Context(), r.PathValue("reference"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
