package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"kantina/backend/internal/domain"
)

func TestWriteCSVOneRowPerLine(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testInput()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv back: %v", err)
	}
	// Header + 4 lines across 3 orders with lines + 1 placeholder for ord-4.
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}
	if rows[0][0] != "order_id" || rows[0][7] != "line_total" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][0] != "ord-1" || rows[1][5] != "Item A" || rows[1][7] != "100.00" {
		t.Fatalf("unexpected first line row: %v", rows[1])
	}
	if rows[1][4] != "120.00" {
		t.Fatalf("expected order total 120.00, got %q", rows[1][4])
	}
}

func TestWriteCSVPlaceholderForEmptyOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testInput()); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv back: %v", err)
	}

	var placeholder []string
	for _, row := range rows[1:] {
		if row[0] == "ord-4" {
			placeholder = row
		}
	}
	if placeholder == nil {
		t.Fatalf("expected a placeholder row for the zero-line order")
	}
	if placeholder[5] != "" || placeholder[6] != "0" || placeholder[7] != "0.00" {
		t.Fatalf("unexpected placeholder row: %v", placeholder)
	}
}

func TestWriteCSVQuotesSpecialCharacters(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Input{
		Orders: []domain.Order{
			{ID: "ord-1", BranchID: "b1", PaymentType: domain.PaymentCash, TotalCentavos: 500, Status: domain.OrderStatusPaid, CreatedAt: created},
		},
		Lines: []domain.OrderLine{
			{OrderID: "ord-1", MenuItemID: "item-x", Qty: 1, UnitPriceCentavos: 500, LineTotalCentavos: 500},
		},
		Items: map[string]domain.MenuItem{
			"item-x": {ID: "item-x", Name: `Adobo "Special", large`},
		},
		Branches: []domain.Branch{{ID: "b1", Name: "Main, Branch"}},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, in); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	raw := buf.String()
	if !strings.Contains(raw, `"Adobo ""Special"", large"`) {
		t.Fatalf("expected doubled quotes around item name, got:\n%s", raw)
	}
	if !strings.Contains(raw, `"Main, Branch"`) {
		t.Fatalf("expected branch name quoted, got:\n%s", raw)
	}

	rows, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv back: %v", err)
	}
	if rows[1][5] != `Adobo "Special", large` {
		t.Fatalf("round trip lost quoting: %q", rows[1][5])
	}
}

func TestCSVFilenameEmbedsRange(t *testing.T) {
	got := CSVFilename("2024-03-01", "2024-03-07")
	if got != "sales_2024-03-01_2024-03-07.csv" {
		t.Fatalf("unexpected filename %q", got)
	}
}
