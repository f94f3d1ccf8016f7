package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"neokudilonga/internal/util"
	"neokudilonga/pkg/catalog"
	"neokudilonga/pkg/domain"
)

const (
	defaultImportStock = 5
	productsSheet      = "Products"
)

// SheetFormat is a spreadsheet encoding accepted by product import/export.
type SheetFormat string

const (
	FormatXLSX SheetFormat = "xlsx"
	FormatCSV  SheetFormat = "csv"
)

// ParseSheetFormat resolves a format name or a file name. Anything that is
// not CSV is read as an xlsx workbook.
func ParseSheetFormat(name string) SheetFormat {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == string(FormatCSV) || filepath.Ext(name) == ".csv" || strings.HasPrefix(name, "text/csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// ContentType is the MIME type of an exported file.
func (f SheetFormat) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

var exportHeader = []string{
	"id", "name_pt", "name_en", "description_pt", "description_en", "price", "stock",
	"type", "stockStatus", "category", "publisher", "author", "image", "highlight",
}

// ExportProducts writes the catalog in format. Multiple images are joined
// with commas in a single column.
func (a *App) ExportProducts(ctx context.Context, w io.Writer, format SheetFormat) error {
	products, err := a.store.ListProducts(ctx)
	if err != nil {
		return err
	}
	if format == FormatCSV {
		return writeProductsCSV(w, products)
	}
	return writeProductsXLSX(w, products)
}

func exportRow(p domain.Product) []string {
	var descPT, descEN string
	if p.Description != nil {
		descPT, descEN = p.Description.PT, p.Description.EN
	}
	return []string{
		p.ID, p.Name.PT, p.Name.EN, descPT, descEN,
		strconv.FormatInt(p.Price, 10), strconv.Itoa(p.Stock),
		string(p.Type), string(p.StockStatus), p.Category, p.Publisher, p.Author,
		strings.Join(p.Images, ","), strconv.FormatBool(p.Highlight),
	}
}

func writeProductsCSV(w io.Writer, products []domain.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write(exportRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeProductsXLSX writes one "Products" sheet. Price and stock are stored
// as numbers so the sheet can be summed.
func writeProductsXLSX(w io.Writer, products []domain.Product) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), productsSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(productsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, p := range products {
		row := make([]any, 0, len(exportHeader))
		for col, v := range exportRow(p) {
			switch exportHeader[col] {
			case "price":
				row = append(row, p.Price)
			case "stock":
				row = append(row, p.Stock)
			default:
				row = append(row, v)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(productsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}

type ImportFailure struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportResult struct {
	Added   int             `json:"added"`
	Updated int             `json:"updated"`
	Failed  []ImportFailure `json:"failed"`
}

// sheetRow is one data row with its 1-based line in the source file. err
// is set when the row itself could not be decoded.
type sheetRow struct {
	line  int
	cells []string
	err   error
}

// ImportProducts upserts products from a CSV file or the first sheet of an
// xlsx workbook. Rows are handled independently; a bad row is reported and
// skipped.
func (a *App) ImportProducts(ctx context.Context, r io.Reader, format SheetFormat) (ImportResult, error) {
	var (
		header []string
		rows   []sheetRow
		err    error
	)
	if format == FormatCSV {
		header, rows, err = readCSVRows(r)
	} else {
		header, rows, err = readXLSXRows(r)
	}
	if err != nil {
		return ImportResult{}, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	defaultCategory, err := a.defaultBookCategory(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Failed: []ImportFailure{}}
	for _, row := range rows {
		if row.err != nil {
			res.Failed = append(res.Failed, ImportFailure{Row: row.line, Error: row.err.Error()})
			continue
		}
		get := func(names ...string) string {
			for _, n := range names {
				if i, ok := cols[n]; ok && i < len(row.cells) {
					if v := strings.TrimSpace(row.cells[i]); v != "" {
						return v
					}
				}
			}
			return ""
		}
		p, err := productFromRow(get, defaultCategory)
		if err != nil {
			res.Failed = append(res.Failed, ImportFailure{Row: row.line, Error: err.Error()})
			continue
		}
		_, exists, err := a.store.GetProduct(ctx, p.ID)
		if err == nil {
			err = a.store.SaveProduct(ctx, p)
		}
		switch {
		case err != nil:
			res.Failed = append(res.Failed, ImportFailure{Row: row.line, Error: err.Error()})
		case exists:
			res.Updated++
		default:
			res.Added++
		}
	}
	if res.Added+res.Updated > 0 {
		a.invalidateCatalog(ctx, TagProducts)
	}
	util.LoggerFromContext(ctx).Info("products imported", "format", format, "added", res.Added, "updated", res.Updated, "failed", len(res.Failed))
	return res, nil
}

func readCSVRows(r io.Reader) ([]string, []sheetRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, invalid("empty csv")
	}
	if err != nil {
		return nil, nil, invalid("read csv header: %v", err)
	}
	var rows []sheetRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rows = append(rows, sheetRow{line: line, cells: record, err: err})
	}
	return header, rows, nil
}

// readXLSXRows reads the first sheet of a workbook. Blank rows are skipped
// but still count for line numbers.
func readXLSXRows(r io.Reader) ([]string, []sheetRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, invalid("read workbook: %v", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, invalid("workbook has no sheets")
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, invalid("read sheet %q: %v", sheets[0], err)
	}
	if len(all) == 0 {
		return nil, nil, invalid("empty workbook")
	}
	var rows []sheetRow
	for i, cells := range all[1:] {
		if strings.TrimSpace(strings.Join(cells, "")) == "" {
			continue
		}
		rows = append(rows, sheetRow{line: i + 2, cells: cells})
	}
	return all[0], rows, nil
}

func (a *App) defaultBookCategory(ctx context.Context) (string, error) {
	categories, err := a.categories(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range categories {
		if c.Type == domain.TypeBook {
			return c.ID, nil
		}
	}
	return "", nil
}

func productFromRow(get func(names ...string) string, defaultCategory string) (domain.Product, error) {
	p := domain.Product{
		ID: get("id"),
		Name: domain.LocalizedText{
			PT: get("name_pt", "name", "title"),
			EN: get("name_en"),
		},
		Type:       domain.ParseProductType(get("type")),
		Category:   get("category"),
		Publisher:  get("publisher", "author"),
		Author:     get("author"),
		DataAIHint: get("dataaihint"),
	}
	if p.Name.IsZero() {
		return domain.Product{}, errors.New("missing name")
	}
	if p.ID == "" {
		p.ID = util.NewID()
	}
	if desc := catalog.PlainTextLocalized(domain.LocalizedText{PT: get("description_pt", "description"), EN: get("description_en")}); !desc.IsZero() {
		p.Description = &desc
	}

	price, err := parseDigits(get("price"))
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid price: %w", err)
	}
	p.Price = price
	p.Stock = defaultImportStock
	if raw := get("stock", "unit"); raw != "" {
		n, err := parseDigits(raw)
		if err != nil {
			return domain.Product{}, fmt.Errorf("invalid stock: %w", err)
		}
		p.Stock = int(n)
	}

	switch s := domain.StockStatus(strings.ToLower(get("stockstatus"))); s {
	case domain.OutOfStock, domain.SoldOut:
		p.StockStatus = s
	default:
		p.StockStatus = domain.InStock
	}
	if p.Category == "" {
		p.Category = defaultCategory
	}
	p.Highlight, _ = strconv.ParseBool(get("highlight"))

	raw := get("image", "images")
	for _, img := range strings.Split(raw, ",") {
		if img = strings.TrimSpace(img); img != "" {
			p.Images = append(p.Images, img)
		}
	}
	if len(p.Images) == 0 {
		p.Images = domain.ImageList{catalog.PlaceholderImageURL}
	}
	return p, p.Validate()
}

// parseDigits keeps only the decimal digits of raw, so "5.000 Kz" is 5000.
// Blank input is zero.
func parseDigits(raw string) (int64, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, nil
	}
	return strconv.ParseInt(b.String(), 10, 64)
}
