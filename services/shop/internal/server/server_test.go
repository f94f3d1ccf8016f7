package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/xuri/excelize/v2"

	"neokudilonga/internal/admintoken"
	"neokudilonga/pkg/auth"
	"neokudilonga/pkg/cache"
	"neokudilonga/pkg/domain"
	"neokudilonga/pkg/store"
	"neokudilonga/pkg/tagcache"
	"neokudilonga/services/shop/internal/app"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testEmail    = "admin@neokudilonga.com"
	testPassword = "correct horse battery"
)

type echoGenerator struct{}

func (echoGenerator) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	return "eco: " + userPrompt, nil
}

type fakeWhatsApp struct {
	read []string
	sent []string
}

func (f *fakeWhatsApp) SendText(_ context.Context, to, body string) error {
	f.sent = append(f.sent, to+"|"+body)
	return nil
}

func (f *fakeWhatsApp) MarkRead(_ context.Context, messageID string) error {
	f.read = append(f.read, messageID)
	return nil
}

func newTestServer(t *testing.T, mutate func(*Config)) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.SaveProduct(ctx, domain.Product{ID: "math5", Name: domain.LocalizedText{PT: "Matemática 5"}, Price: 5000, Type: domain.TypeBook, StockStatus: domain.InStock})
	_ = st.SaveProduct(ctx, domain.Product{ID: "gone", Name: domain.LocalizedText{PT: "Esgotado"}, Price: 100, Type: domain.TypeBook, StockStatus: domain.SoldOut})
	_ = st.SaveSchool(ctx, domain.School{ID: "csa", Name: domain.LocalizedText{PT: "Colégio São Armando"}, Abbreviation: "CSA"})
	_ = st.SaveReadingPlanItems(ctx, []domain.ReadingPlanItem{{ID: "p1", ProductID: "math5", SchoolID: "csa", Grade: "5", Status: domain.PlanMandatory}})

	tags, err := tagcache.New(tagcache.NewMemoryBackend(), nil)
	if err != nil {
		t.Fatalf("tagcache: %v", err)
	}
	views, err := cache.New(cache.NewMemoryBackend(), "test")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	shop, err := app.New(app.Config{
		Store:             st,
		Tags:              tags,
		Views:             views,
		Generator:         echoGenerator{},
		AdminEmail:        testEmail,
		AdminPasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	tokens, err := admintoken.NewManager(admintoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	cfg := Config{App: shop, Tokens: tokens}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, baseURL string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, baseURL+"/api/admin/login", "", loginRequest{Email: testEmail, Password: testPassword})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Token == "" {
		t.Fatalf("login body: %+v, %v", out, err)
	}
	return out.Token
}

func TestHealthAndRequestID(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id")
	}
}

func TestSchoolPlanEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/shop/schools/csa/plan?lang=en", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var view app.SchoolPlanView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.School.ID != "csa" || len(view.Grades) != 1 || view.Grades[0].MandatoryKit.Price != 5000 {
		t.Fatalf("view = %+v", view)
	}

	missing := doJSON(t, http.MethodGet, ts.URL+"/api/shop/schools/nope/plan", "", nil)
	var errBody errorResponse
	_ = json.NewDecoder(missing.Body).Decode(&errBody)
	if missing.StatusCode != http.StatusNotFound || errBody.Code != "SHOP_NOT_FOUND" || errBody.RequestID == "" {
		t.Fatalf("missing = %d %+v", missing.StatusCode, errBody)
	}
}

func TestShopProductsHideSoldOut(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/shop/products?q=MATEMATICA", "", nil)
	var products []domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(products) != 1 || products[0].ID != "math5" {
		t.Fatalf("products = %+v", products)
	}
	if got := doJSON(t, http.MethodGet, ts.URL+"/api/shop/products/gone", "", nil).StatusCode; got != http.StatusNotFound {
		t.Fatalf("sold out product status = %d", got)
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	req := app.CheckoutRequest{
		GuardianName:    "Maria",
		Phone:           "923000111",
		Email:           "maria@example.com",
		StudentName:     "João",
		DeliveryOption:  domain.DeliveryPickup,
		PaymentMethod:   "multicaixa",
		Items:           []app.CartItem{{ProductID: "math5", Quantity: 1}},
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/orders", "", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var order domain.Order
	_ = json.NewDecoder(resp.Body).Decode(&order)
	if !strings.HasPrefix(order.Reference, "CSA-") || order.Total != 7500 {
		t.Fatalf("order = %s total %d", order.Reference, order.Total)
	}
	got := doJSON(t, http.MethodGet, ts.URL+"/api/orders/"+order.Reference, "", nil)
	if got.StatusCode != http.StatusOK {
		t.Fatalf("lookup status = %d", got.StatusCode)
	}

	empty := doJSON(t, http.MethodPost, ts.URL+"/api/orders", "", app.CheckoutRequest{})
	var errBody errorResponse
	_ = json.NewDecoder(empty.Body).Decode(&errBody)
	if empty.StatusCode != http.StatusBadRequest || errBody.Code != "SHOP_CART_EMPTY" {
		t.Fatalf("empty cart = %d %+v", empty.StatusCode, errBody)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	for _, path := range []string{"/api/admin/products", "/api/admin/orders", "/api/admin/cache/stats"} {
		resp := doJSON(t, http.MethodGet, ts.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token = %d", path, resp.StatusCode)
		}
		resp = doJSON(t, http.MethodGet, ts.URL+path, "not-a-jwt", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s with bad token = %d", path, resp.StatusCode)
		}
	}
	bad := doJSON(t, http.MethodPost, ts.URL+"/api/admin/login", "", loginRequest{Email: testEmail, Password: "nope"})
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", bad.StatusCode)
	}
}

func TestAdminProductLifecycle(t *testing.T) {
	ts, st := newTestServer(t, nil)
	token := login(t, ts.URL)

	in := app.ProductInput{
		Product: domain.Product{ID: "geo7", Name: domain.LocalizedText{PT: "Geografia 7"}, Price: 3000},
		ReadingPlan: []app.PlanEntry{{SchoolID: "csa", Grade: "7", Status: domain.PlanMandatory}},
	}
	if resp := doJSON(t, http.MethodPost, ts.URL+"/api/admin/products", token, in); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPost, ts.URL+"/api/admin/products", token, in); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create = %d", resp.StatusCode)
	}
	plan := doJSON(t, http.MethodGet, ts.URL+"/api/shop/schools/csa/plan", "", nil)
	var view app.SchoolPlanView
	_ = json.NewDecoder(plan.Body).Decode(&view)
	if len(view.Grades) != 2 {
		t.Fatalf("grades after create = %d", len(view.Grades))
	}

	if resp := doJSON(t, http.MethodDelete, ts.URL+"/api/admin/products/geo7", token, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d", resp.StatusCode)
	}
	items, _ := st.ListReadingPlanByProduct(context.Background(), "geo7")
	if len(items) != 0 {
		t.Fatalf("plan items left: %+v", items)
	}
	if resp := doJSON(t, http.MethodGet, ts.URL+"/api/admin/products/geo7", token, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted = %d", resp.StatusCode)
	}
}

func TestAdminProductSheets(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	token := login(t, ts.URL)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/admin/products/export", token, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("export status = %d type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	book, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer book.Close()
	if rows, err := book.GetRows("Products"); err != nil || len(rows) == 0 || rows[0][0] != "id" {
		t.Fatalf("export rows = %v, %v", rows, err)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/admin/products/export?format=csv", token, nil)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("csv export type = %q", resp.Header.Get("Content-Type"))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "produtos.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte("name,price\nDicionário Escolar,2500\n"))
	_ = mw.Close()
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/products/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	importResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer importResp.Body.Close()
	var res app.ImportResult
	if err := json.NewDecoder(importResp.Body).Decode(&res); err != nil || importResp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d err = %v", importResp.StatusCode, err)
	}
	if res.Added != 1 || len(res.Failed) != 0 {
		t.Fatalf("import result = %+v", res)
	}
}

func TestAdminOrderStatus(t *testing.T) {
	ts, st := newTestServer(t, nil)
	token := login(t, ts.URL)
	_ = st.CreateOrder(context.Background(), domain.Order{Reference: "LIV-202610000", PaymentStatus: domain.PaymentUnpaid, DeliveryStatus: domain.DeliveryNotDelivered})

	if resp := doJSON(t, http.MethodPatch, ts.URL+"/api/admin/orders/LIV-202610000", token, map[string]string{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty patch = %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodPatch, ts.URL+"/api/admin/orders/LIV-202610000", token, map[string]string{"paymentStatus": "paid"}); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("patch = %d", resp.StatusCode)
	}
	o, _, _ := st.GetOrder(context.Background(), "LIV-202610000")
	if o.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("payment status = %s", o.PaymentStatus)
	}
	if resp := doJSON(t, http.MethodPatch, ts.URL+"/api/admin/orders/LIV-000", token, map[string]string{"paymentStatus": "paid"}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing order patch = %d", resp.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ts, _ := newTestServer(t, func(cfg *Config) {
		cfg.Redis = client
		cfg.LoginRateLimitPerMinute = 1
	})
	login(t, ts.URL)
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/admin/login", "", loginRequest{Email: testEmail, Password: testPassword})
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("second login = %d", resp.StatusCode)
	}
}

func TestWebhookVerification(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *Config) { cfg.WhatsAppVerifyToken = "vt" })
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=42", "", nil)
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "42" {
		t.Fatalf("verify = %d %q", resp.StatusCode, buf.String())
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong token = %d", resp.StatusCode)
	}
}

func TestWebhookRepliesToTextMessages(t *testing.T) {
	wa := &fakeWhatsApp{}
	ts, st := newTestServer(t, func(cfg *Config) {
		cfg.WhatsApp = wa
		cfg.WhatsAppAppSecret = "app-secret"
	})
	payload := []byte(`{"entry":[{"changes":[{"value":{"messages":[
		{"id":"wamid.1","from":"244923000111","type":"text","text":{"body":"Tem stock?"}},
		{"id":"wamid.2","from":"244923000111","type":"image"}
	]}}]}]}`)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(payload)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/whatsapp/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(wa.read) != 1 || wa.read[0] != "wamid.1" {
		t.Fatalf("read = %v", wa.read)
	}
	if len(wa.sent) != 1 || wa.sent[0] != "244923000111|eco: Client Query: Tem stock?" {
		t.Fatalf("sent = %v", wa.sent)
	}
	logs, _ := st.ListChatLogs(context.Background(), 10)
	if len(logs) != 1 {
		t.Fatalf("chat logs = %d", len(logs))
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/whatsapp/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", resp.StatusCode)
	}
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		status int
		msg    string
		want   string
	}{
		{http.StatusUnauthorized, "unauthorized", "AUTH_INVALID_TOKEN"},
		{http.StatusTooManyRequests, "too many orders", "SYSTEM_RATE_LIMITED"},
		{http.StatusConflict, "conflict: category exists", "SHOP_CONFLICT"},
		{http.StatusBadRequest, "invalid input: unknown product", "SHOP_INVALID_REQUEST"},
		{http.StatusInternalServerError, "internal error", "SYSTEM_INTERNAL_ERROR"},
	}
	for _, tc := range tests {
		if got := errorCodeFor(tc.status, tc.msg); got != tc.want {
			t.Fatalf("errorCodeFor(%d, %q) = %q, want %q", tc.status, tc.msg, got, tc.want)
		}
	}
}
