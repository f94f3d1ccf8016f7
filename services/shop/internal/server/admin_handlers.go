package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"neokudilonga/pkg/domain"
	"neokudilonga/services/shop/internal/app"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "shop.admin.login", "rate_limited")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.AdminLogin(req.Email, req.Password); err != nil {
		s.audit(r, "shop.admin.login", "fail")
		writeAppError(w, r, err)
		return
	}
	token, expires, err := s.tokens.Issue(req.Email)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.admin.login", "success")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}

func (s *Server) handleAdminProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.app.Products(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleAdminProduct(w http.ResponseWriter, r *http.Request) {
	detail, err := s.app.ProductDetail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in app.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	detail, err := s.app.CreateProduct(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in app.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	detail, err := s.app.UpdateProduct(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	url, err := s.app.UploadProductImage(r.Context(), r.PathValue("id"), header.Filename, contentType, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) handleExportProducts(w http.ResponseWriter, r *http.Request) {
	format := app.ParseSheetFormat(r.URL.Query().Get("format"))
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="products.`+string(format)+`"`)
	if err := s.app.ExportProducts(r.Context(), w, format); err != nil {
		logger(r).Error("export products failed", "err", err)
	}
}

// handleImportProducts accepts a multipart "file" field or a raw body. The
// format comes from ?format=, else the file name, else the content type.
func (s *Server) handleImportProducts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	body := io.Reader(r.Body)
	hint := r.Header.Get("Content-Type")
	if err := r.ParseMultipartForm(s.maxUploadBytes); err == nil {
		file, fh, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()
		body, hint = file, fh.Filename
	}
	if q := r.URL.Query().Get("format"); q != "" {
		hint = q
	}
	res, err := s.app.ImportProducts(r.Context(), body, app.ParseSheetFormat(hint))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReadingPlan(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.ReadingPlan(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateSchool(w http.ResponseWriter, r *http.Request) {
	s.saveSchool(w, r, "", true)
}

func (s *Server) handleUpdateSchool(w http.ResponseWriter, r *http.Request) {
	s.saveSchool(w, r, r.PathValue("id"), false)
}

func (s *Server) saveSchool(w http.ResponseWriter, r *http.Request, id string, create bool) {
	var school domain.School
	if err := decodeJSON(r, &school); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !create {
		school.ID = id
	}
	saved, err := s.app.SaveSchool(r.Context(), school, create)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusOK
	if create {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (s *Server) handleDeleteSchool(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteSchool(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderSchools(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.ReorderSchools(r.Context(), req.IDs); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := s.app.CreateCategory(r.Context(), c)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var c domain.Category
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := s.app.UpdateCategory(r.Context(), r.PathValue("id"), c)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreatePublisher(w http.ResponseWriter, r *http.Request) {
	var p domain.Publisher
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	saved, err := s.app.CreatePublisher(r.Context(), p.Name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleDeletePublisher(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeletePublisher(r.Context(), r.PathValue("name")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.app.Orders(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var patch app.OrderStatusPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.app.UpdateOrderStatus(r.Context(), r.PathValue("reference"), patch); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteOrder(r.Context(), r.PathValue("reference")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChatLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.app.ChatLogs(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.app.CacheStats(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheResetStats(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ResetCacheStats(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ClearCache(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	logger(r).Info("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}
