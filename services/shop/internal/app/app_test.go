package app

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"neokudilonga/pkg/auth"
	"neokudilonga/pkg/cache"
	"neokudilonga/pkg/catalog"
	"neokudilonga/pkg/domain"
	"neokudilonga/pkg/queue"
	"neokudilonga/pkg/store"
	"neokudilonga/pkg/tagcache"
)

type fakeQueue struct {
	refs []string
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, kind, orderRef string) (queue.Job, error) {
	if q.err != nil {
		return queue.Job{}, q.err
	}
	q.refs = append(q.refs, orderRef)
	return queue.Job{ID: "job-" + orderRef, Kind: kind, OrderRef: orderRef}, nil
}

type fakeGenerator struct {
	system, user string
	reply        string
	err          error
}

func (g *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	g.system, g.user = systemPrompt, userPrompt
	return g.reply, g.err
}

type testEnv struct {
	app   *App
	store *store.MemoryStore
	mail  *fakeQueue
	gen   *fakeGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed := []domain.Product{
		{ID: "math5", Name: domain.LocalizedText{PT: "Matemática 5", EN: "Maths 5"}, Price: 5000, Stock: 3, Type: domain.TypeBook, StockStatus: domain.InStock},
		{ID: "port5", Name: domain.LocalizedText{PT: "Português 5"}, Price: 4000, Stock: 3, Type: domain.TypeBook, StockStatus: domain.InStock},
		{ID: "uno", Name: domain.LocalizedText{PT: "Uno"}, Price: 3000, Stock: 1, Type: domain.TypeGame, StockStatus: domain.InStock},
		{ID: "gone", Name: domain.LocalizedText{PT: "Esgotado"}, Price: 1000, Type: domain.TypeBook, StockStatus: domain.SoldOut},
	}
	for _, p := range seed {
		if err := st.SaveProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	if err := st.SaveSchool(ctx, domain.School{ID: "csa", Name: domain.LocalizedText{PT: "Colégio São Armando"}, Abbreviation: "CSA", AllowPickup: true}); err != nil {
		t.Fatalf("seed school: %v", err)
	}
	if err := st.SaveReadingPlanItems(ctx, []domain.ReadingPlanItem{
		{ID: "p1", ProductID: "math5", SchoolID: "csa", Grade: "5", Status: domain.PlanMandatory},
		{ID: "p2", ProductID: "port5", SchoolID: "csa", Grade: "5", Status: domain.PlanRecommended},
	}); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	if err := st.SaveCategory(ctx, domain.Category{ID: "Escolar", Name: domain.LocalizedText{PT: "Escolar"}, Type: domain.TypeBook}); err != nil {
		t.Fatalf("seed category: %v", err)
	}

	tags, err := tagcache.New(tagcache.NewMemoryBackend(), nil)
	if err != nil {
		t.Fatalf("tagcache: %v", err)
	}
	views, err := cache.New(cache.NewMemoryBackend(), "test")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	hash, err := auth.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	env := &testEnv{store: st, mail: &fakeQueue{}, gen: &fakeGenerator{reply: "Olá!"}}
	env.app, err = New(Config{
		Store:             st,
		Tags:              tags,
		Views:             views,
		Mail:              env.mail,
		Generator:         env.gen,
		AdminEmail:        "admin@neokudilonga.com",
		AdminPasswordHash: hash,
		RebandAids:        true,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app.now = func() time.Time { return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC) }
	env.app.randDigits = func() int { return 12345 }
	return env
}

func baseCheckout() CheckoutRequest {
	return CheckoutRequest{
		GuardianName:    "Maria",
		Phone:           "+244 923 000 111",
		Email:           "maria@example.com",
		Language:        "pt",
		DeliveryOption:  domain.DeliveryHome,
		DeliveryAddress: "Rua 1, Talatona",
		PaymentMethod:   "transferencia",
		Items:           []CartItem{{ProductID: "uno", Quantity: 2}},
	}
}

func TestCheckoutPricesFromCatalog(t *testing.T) {
	env := newTestEnv(t)
	order, err := env.app.Checkout(context.Background(), baseCheckout())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if order.Reference != "LIV-202612345" {
		t.Fatalf("reference = %q", order.Reference)
	}
	if order.DeliveryFee != 2000 || order.Total != 8000 {
		t.Fatalf("fee/total = %d/%d", order.DeliveryFee, order.Total)
	}
	if order.PaymentStatus != domain.PaymentUnpaid || order.DeliveryStatus != domain.DeliveryNotDelivered {
		t.Fatalf("statuses = %s/%s", order.PaymentStatus, order.DeliveryStatus)
	}
	if order.Items[0].Price != 3000 || order.Items[0].Name.PT != "Uno" {
		t.Fatalf("item snapshot = %+v", order.Items[0])
	}
	if len(env.mail.refs) != 1 || env.mail.refs[0] != order.Reference {
		t.Fatalf("mail refs = %v", env.mail.refs)
	}
	got, err := env.app.Order(context.Background(), order.Reference)
	if err != nil || got.Total != order.Total {
		t.Fatalf("Order = %+v, %v", got, err)
	}
}

func TestCheckoutSchoolOrder(t *testing.T) {
	env := newTestEnv(t)
	req := baseCheckout()
	req.Items = []CartItem{{ProductID: "math5", Quantity: 1, KitID: "csa-5-mandatory", KitName: "5ª Classe"}}
	req.DeliveryOption = domain.DeliverySchoolCollect
	req.StudentName = "João"
	req.StudentClass = "5A"

	order, err := env.app.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if order.Reference != "CSA-202612345" || order.SchoolID != "csa" {
		t.Fatalf("order = %s school %s", order.Reference, order.SchoolID)
	}
	if order.DeliveryFee != 0 || order.Total != 5000 || order.DeliveryAddress != "" {
		t.Fatalf("fee/total/address = %d/%d/%q", order.DeliveryFee, order.Total, order.DeliveryAddress)
	}
}

func TestCheckoutRetriesTakenReference(t *testing.T) {
	env := newTestEnv(t)
	digits := []int{12345, 12345, 54321}
	env.app.randDigits = func() int {
		d := digits[0]
		digits = digits[1:]
		return d
	}
	first, err := env.app.Checkout(context.Background(), baseCheckout())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := env.app.Checkout(context.Background(), baseCheckout())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Reference != "LIV-202612345" || second.Reference != "LIV-202654321" {
		t.Fatalf("references = %s, %s", first.Reference, second.Reference)
	}
}

func TestCheckoutValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CheckoutRequest)
		want   error
	}{
		{"empty cart", func(r *CheckoutRequest) { r.Items = nil }, ErrEmptyCart},
		{"bad email", func(r *CheckoutRequest) { r.Email = "maria" }, ErrInvalidInput},
		{"bad payment", func(r *CheckoutRequest) { r.PaymentMethod = "bitcoin" }, ErrInvalidInput},
		{"bad delivery", func(r *CheckoutRequest) { r.DeliveryOption = "drone" }, ErrInvalidInput},
		{"missing address", func(r *CheckoutRequest) { r.DeliveryAddress = " " }, ErrInvalidInput},
		{"unknown product", func(r *CheckoutRequest) { r.Items[0].ProductID = "nope" }, ErrInvalidInput},
		{"sold out", func(r *CheckoutRequest) { r.Items[0].ProductID = "gone" }, ErrInvalidInput},
		{"zero quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 0 }, ErrInvalidInput},
		{"quantity over limit", func(r *CheckoutRequest) { r.Items[0].Quantity = maxLineQuantity + 1 }, ErrInvalidInput},
		{"huge quantity", func(r *CheckoutRequest) { r.Items[0].Quantity = 1<<60 + 1 }, ErrInvalidInput},
		{"pickup without school", func(r *CheckoutRequest) { r.DeliveryOption = domain.DeliverySchoolCollect }, ErrInvalidInput},
		{"school order without student", func(r *CheckoutRequest) { r.Items[0].ProductID = "math5" }, ErrInvalidInput},
		{"unknown school", func(r *CheckoutRequest) { r.SchoolID = "xyz" }, ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := baseCheckout()
			tc.mutate(&req)
			_, err := env.app.Checkout(context.Background(), req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if len(env.mail.refs) != 0 {
				t.Fatalf("mail enqueued for rejected order")
			}
		})
	}
}

func TestCheckoutRejectsOverflowingTotal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pricey := domain.Product{ID: "vault", Name: domain.LocalizedText{PT: "Cofre"}, Price: math.MaxInt64 / 10, Type: domain.TypeGame, StockStatus: domain.InStock}
	if err := env.store.SaveProduct(ctx, pricey); err != nil {
		t.Fatalf("save product: %v", err)
	}
	req := baseCheckout()
	req.Items = []CartItem{{ProductID: "vault", Quantity: 5}, {ProductID: "vault", Quantity: 6}}
	if _, err := env.app.Checkout(ctx, req); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	orders, err := env.store.ListOrders(ctx)
	if err != nil || len(orders) != 0 {
		t.Fatalf("orders = %v, %v; want none stored", orders, err)
	}
}

func TestCheckoutSurvivesMailQueueFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mail.err = errors.New("redis down")
	if _, err := env.app.Checkout(context.Background(), baseCheckout()); err != nil {
		t.Fatalf("checkout: %v", err)
	}
}

func TestOrdersCacheInvalidatedOnWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if orders, _ := env.app.Orders(ctx); len(orders) != 0 {
		t.Fatalf("orders = %d", len(orders))
	}
	order, err := env.app.Checkout(ctx, baseCheckout())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	orders, _ := env.app.Orders(ctx)
	if len(orders) != 1 {
		t.Fatalf("orders after checkout = %d", len(orders))
	}
	paid := domain.PaymentPaid
	if err := env.app.UpdateOrderStatus(ctx, order.Reference, OrderStatusPatch{PaymentStatus: &paid}); err != nil {
		t.Fatalf("update: %v", err)
	}
	orders, _ = env.app.Orders(ctx)
	if orders[0].PaymentStatus != domain.PaymentPaid {
		t.Fatalf("payment status = %s", orders[0].PaymentStatus)
	}
	if err := env.app.UpdateOrderStatus(ctx, order.Reference, OrderStatusPatch{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty patch err = %v", err)
	}
	bogus := domain.DeliveryStatus("lost")
	if err := env.app.UpdateOrderStatus(ctx, order.Reference, OrderStatusPatch{DeliveryStatus: &bogus}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bogus status err = %v", err)
	}
	if err := env.app.DeleteOrder(ctx, order.Reference); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.app.DeleteOrder(ctx, order.Reference); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestCatalogReadsServedFromCacheUntilAdminWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.app.Products(ctx); err != nil {
		t.Fatalf("products: %v", err)
	}
	// Direct store write bypasses invalidation: the cached list is served.
	_ = env.store.SaveProduct(ctx, domain.Product{ID: "extra", Name: domain.LocalizedText{PT: "Extra"}, Type: domain.TypeBook})
	products, _ := env.app.Products(ctx)
	if len(products) != 4 {
		t.Fatalf("cached products = %d", len(products))
	}
	if _, err := env.app.CreateProduct(ctx, ProductInput{Product: domain.Product{Name: domain.LocalizedText{PT: "Novo"}, Price: 100}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	products, _ = env.app.Products(ctx)
	if len(products) != 6 {
		t.Fatalf("products after admin write = %d", len(products))
	}
}

func TestSchoolPlanCachedAndInvalidated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	view, err := env.app.SchoolPlan(ctx, "csa", domain.LangPT)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(view.Grades) != 1 || view.Grades[0].MandatoryKit.Price != 5000 || view.Grades[0].CompleteKit.Price != 9000 {
		t.Fatalf("grades = %+v", view.Grades)
	}
	if _, err := env.app.SchoolPlan(ctx, "csa", domain.LangPT); err != nil {
		t.Fatalf("plan: %v", err)
	}
	stats, _ := env.app.CacheStats(ctx)
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	_, err = env.app.UpdateProduct(ctx, "port5", ProductInput{
		Product:     domain.Product{Name: domain.LocalizedText{PT: "Português 5"}, Price: 4000},
		ReadingPlan: []PlanEntry{{ID: "p2", SchoolID: "csa", Grade: "5", Status: domain.PlanMandatory}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	view, _ = env.app.SchoolPlan(ctx, "csa", domain.LangPT)
	if got := view.Grades[0].MandatoryKit.Price; got != 9000 {
		t.Fatalf("mandatory kit after update = %d", got)
	}
	if _, err := env.app.SchoolPlan(ctx, "missing", domain.LangPT); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing school err = %v", err)
	}
}

func TestUpdateProductDiffsPlanAndMapsAidGrades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	detail, err := env.app.UpdateProduct(ctx, "math5", ProductInput{
		Product: domain.Product{Name: domain.LocalizedText{PT: "Matemática 5"}, Price: 5500},
		ReadingPlan: []PlanEntry{
			{SchoolID: "csa", Grade: "2", Status: domain.PlanDidacticAids},
		},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	items, _ := env.store.ListReadingPlanByProduct(ctx, "math5")
	if len(items) != 1 || items[0].ID == "p1" || items[0].ID == "" {
		t.Fatalf("plan items = %+v", items)
	}
	if items[0].Grade != catalog.GradeKeyBand5to9 || detail.ReadingPlan[0].Grade != catalog.GradeKeyBand5to9 {
		t.Fatalf("grade = %q", items[0].Grade)
	}
	if _, err := env.app.UpdateProduct(ctx, "nope", ProductInput{Product: domain.Product{Name: domain.LocalizedText{PT: "x"}}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing product err = %v", err)
	}
	_, err = env.app.UpdateProduct(ctx, "math5", ProductInput{Product: domain.Product{Name: domain.LocalizedText{PT: "x"}, Price: -1}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative price err = %v", err)
	}
}

func TestCategoryRename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.app.CreateCategory(ctx, domain.Category{Name: domain.LocalizedText{PT: "Jogos"}, Type: domain.TypeGame}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.app.CreateCategory(ctx, domain.Category{ID: "Jogos"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := env.app.UpdateCategory(ctx, "Escolar", domain.Category{ID: "Jogos"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("rename clash err = %v", err)
	}
	c, err := env.app.UpdateCategory(ctx, "Escolar", domain.Category{ID: "Manuais", Name: domain.LocalizedText{PT: "Manuais"}})
	if err != nil || c.ID != "Manuais" {
		t.Fatalf("rename = %+v, %v", c, err)
	}
	categories, _ := env.app.Categories(ctx)
	if len(categories) != 2 || categories[1].ID != "Manuais" {
		t.Fatalf("categories = %+v", categories)
	}
}

func TestReorderSchools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.app.SaveSchool(ctx, domain.School{ID: "alpha", Name: domain.LocalizedText{PT: "Alpha"}}, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := env.app.ReorderSchools(ctx, []string{"alpha", "csa"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	schools, _ := env.app.Schools(ctx)
	if schools[0].ID != "alpha" || schools[1].ID != "csa" {
		t.Fatalf("order = %s, %s", schools[0].ID, schools[1].ID)
	}
	if err := env.app.ReorderSchools(ctx, []string{"csa", "csa"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate ids err = %v", err)
	}
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	if err := env.app.AdminLogin(" Admin@Neokudilonga.com ", "correct horse battery"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.app.AdminLogin("admin@neokudilonga.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password err = %v", err)
	}
	if err := env.app.AdminLogin("other@neokudilonga.com", "correct horse battery"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong email err = %v", err)
	}
}

func TestImportExportProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	input := "id,title,price,unit,type,images,author,stockStatus,description\n" +
		"uno,Uno Deluxe,\"3.500 Kz\",,game,,Mattel,,<p>Jogo de <b>cartas</b></p>\n" +
		",Livro Novo,1200,7,book,\"https://a/1.png, https://a/2.png\",Autor,sold_out,\n" +
		"bad,,100,,,,,,\n"
	res, err := env.app.ImportProducts(ctx, strings.NewReader(input), FormatCSV)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Added != 1 || res.Updated != 1 || len(res.Failed) != 1 || res.Failed[0].Row != 4 {
		t.Fatalf("result = %+v", res)
	}
	uno, _ := env.app.Product(ctx, "uno")
	if uno.Price != 3500 || uno.Stock != 5 || uno.Publisher != "Mattel" || uno.Category != "Escolar" {
		t.Fatalf("uno = %+v", uno)
	}
	if uno.Images.Primary() != catalog.PlaceholderImageURL {
		t.Fatalf("uno image = %v", uno.Images)
	}
	if uno.Description == nil || uno.Description.PT != "Jogo de cartas" {
		t.Fatalf("uno description = %+v", uno.Description)
	}

	var buf bytes.Buffer
	if err := env.app.ExportProducts(ctx, &buf, FormatCSV); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "id,name_pt,") || !strings.Contains(out, "Livro Novo") || !strings.Contains(out, `"https://a/1.png,https://a/2.png"`) {
		t.Fatalf("export = %s", out)
	}
}

func TestImportExportProductsXLSX(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"id", "name", "price", "stock", "type", "description", "images"},
		{"atlas", "Atlas de Angola", 7500, 2, "book", "<p>Mapas <i>ilustrados</i></p>", "https://a/atlas.png"},
		{},
		{"", "", 100, "", "", "", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("build workbook: %v", err)
		}
	}
	var in bytes.Buffer
	if err := book.Write(&in); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	res, err := env.app.ImportProducts(ctx, &in, FormatXLSX)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Added != 1 || res.Updated != 0 || len(res.Failed) != 1 || res.Failed[0].Row != 4 {
		t.Fatalf("result = %+v", res)
	}
	atlas, err := env.app.Product(ctx, "atlas")
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if atlas.Price != 7500 || atlas.Stock != 2 || atlas.Category != "Escolar" || atlas.Description.PT != "Mapas ilustrados" {
		t.Fatalf("atlas = %+v", atlas)
	}

	var out bytes.Buffer
	if err := env.app.ExportProducts(ctx, &out, FormatXLSX); err != nil {
		t.Fatalf("export: %v", err)
	}
	exported, err := excelize.OpenReader(&out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer exported.Close()
	got, err := exported.GetRows("Products")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 6 || got[0][0] != "id" || got[0][5] != "price" {
		t.Fatalf("exported rows = %v", got)
	}
	found := false
	for _, row := range got[1:] {
		if row[0] == "atlas" && row[1] == "Atlas de Angola" && row[5] == "7500" {
			found = true
		}
	}
	if !found {
		t.Fatalf("atlas missing from export: %v", got)
	}
}

func TestParseSheetFormat(t *testing.T) {
	tests := map[string]SheetFormat{
		"":                    FormatXLSX,
		"xlsx":                FormatXLSX,
		"CSV":                 FormatCSV,
		"produtos.csv":        FormatCSV,
		"produtos.xlsx":       FormatXLSX,
		"text/csv; charset=x": FormatCSV,
	}
	for in, want := range tests {
		if got := ParseSheetFormat(in); got != want {
			t.Fatalf("ParseSheetFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAnswerBuildsContextAndLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, err := env.app.Checkout(ctx, baseCheckout())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	reply := env.app.Answer(ctx, "Onde está a minha encomenda?", "244923000111", "wamid.1")
	if reply != "Olá!" {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(env.gen.system, "Ref: "+order.Reference) || !strings.Contains(env.gen.system, "- Matemática 5: 5000 AOA (in_stock)") ||
		!strings.Contains(env.gen.system, "- Escolar (book)") {
		t.Fatalf("system prompt = %s", env.gen.system)
	}
	if env.gen.user != "Client Query: Onde está a minha encomenda?" {
		t.Fatalf("user prompt = %q", env.gen.user)
	}
	logs, _ := env.app.ChatLogs(ctx)
	if len(logs) != 1 || logs[0].Source != "whatsapp" || logs[0].MessageID != "wamid.1" {
		t.Fatalf("logs = %+v", logs)
	}

	env.app.Answer(ctx, "olá", "", "")
	if !strings.Contains(env.gen.system, "No orders found for this number.") {
		t.Fatalf("empty phone matched orders: %s", env.gen.system)
	}
}

func TestAnswerFallsBackOnError(t *testing.T) {
	env := newTestEnv(t)
	env.gen.err = errors.New("quota")
	if got := env.app.Answer(context.Background(), "olá", "923000111", ""); got != ChatFallback {
		t.Fatalf("reply = %q", got)
	}
	logs, _ := env.app.ChatLogs(context.Background())
	if len(logs) != 0 {
		t.Fatalf("failed exchange logged: %+v", logs)
	}
}

func TestUploadWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.UploadProductImage(context.Background(), "uno", "a.png", "image/png", strings.NewReader("x"), 1)
	if !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("err = %v", err)
	}
}
