package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"kantina/backend/internal/domain"
)

func TestFinalizeReplacementVoidsAndPays(t *testing.T) {
	databaseURL := os.Getenv("KANTINA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KANTINA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	branchID := fmt.Sprintf("branch-it-%d", stamp)
	itemID := fmt.Sprintf("item-it-%d", stamp)
	oldID := fmt.Sprintf("ord-it-old-%d", stamp)
	newID := fmt.Sprintf("ord-it-new-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id IN ($1, $2)`, oldID, newID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id IN ($1, $2)`, oldID, newID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, itemID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name) VALUES ($1, 'Integration Branch')
	`, branchID); err != nil {
		t.Fatalf("insert branch: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, category, price_centavos, is_active)
		VALUES ($1, 'Integration Silog', 'silog', 3000, true)
	`, itemID); err != nil {
		t.Fatalf("insert menu item: %v", err)
	}

	line := domain.OrderLine{MenuItemID: itemID, Qty: 2, UnitPriceCentavos: 3000, LineTotalCentavos: 6000}
	if _, err := s.CreateOrder(ctx, domain.Order{
		ID: oldID, BranchID: branchID, PaymentType: domain.PaymentCash,
		TotalCentavos: 6000, Status: domain.OrderStatusNew,
		CreatedAt: time.Now().UTC(), Lines: []domain.OrderLine{line},
	}); err != nil {
		t.Fatalf("create old order: %v", err)
	}
	if _, err := s.CreateOrder(ctx, domain.Order{
		ID: newID, BranchID: branchID, PaymentType: domain.PaymentCash,
		TotalCentavos: 6000, Status: domain.OrderStatusDraft, Replaces: oldID,
		CreatedAt: time.Now().UTC(), Lines: []domain.OrderLine{line},
	}); err != nil {
		t.Fatalf("create draft: %v", err)
	}

	// Drop one unit; the draft save must delete-then-insert and update the total.
	replaced := domain.OrderLine{OrderID: newID, MenuItemID: itemID, Qty: 1, UnitPriceCentavos: 3000, LineTotalCentavos: 3000}
	if err := s.ReplaceOrderLines(ctx, newID, []domain.OrderLine{replaced}, 3000); err != nil {
		t.Fatalf("replace lines: %v", err)
	}

	at := time.Now().UTC()
	oldOrder, newOrder, err := s.FinalizeReplacement(ctx, oldID, newID, "integration test void", "owner", at)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if oldOrder.Status != domain.OrderStatusVoided || newOrder.Status != domain.OrderStatusPaid {
		t.Fatalf("unexpected statuses: %s / %s", oldOrder.Status, newOrder.Status)
	}
	if oldOrder.ReplacedBy != newID || oldOrder.VoidReason != "integration test void" {
		t.Fatalf("void metadata not persisted: %+v", oldOrder)
	}
	if newOrder.TotalCentavos != 3000 {
		t.Fatalf("expected replacement total 3000, got %d", newOrder.TotalCentavos)
	}

	// Replay must be a no-op success.
	if _, _, err := s.FinalizeReplacement(ctx, oldID, newID, "integration test void", "owner", at); err != nil {
		t.Fatalf("finalize replay: %v", err)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, oldID).Scan(&status); err != nil {
		t.Fatalf("query old status: %v", err)
	}
	if status != domain.OrderStatusVoided {
		t.Fatalf("expected VOIDED in the database, got %s", status)
	}

	var lineCount int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM order_lines WHERE order_id = $1`, newID).Scan(&lineCount); err != nil {
		t.Fatalf("query line count: %v", err)
	}
	if lineCount != 1 {
		t.Fatalf("expected 1 replacement line, got %d", lineCount)
	}
}
