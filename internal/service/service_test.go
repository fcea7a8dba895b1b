package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"kantina/backend/internal/domain"
	"kantina/backend/internal/store"
	"kantina/backend/internal/store/memory"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()

	s := memory.New()
	s.AddBranch(domain.Branch{ID: "branch-main", Name: "Main Branch"})
	s.AddBranch(domain.Branch{ID: "branch-annex", Name: "Annex Branch"})
	s.AddMenuItem(domain.MenuItem{ID: "item-a", Name: "Item A", Category: "silog", PriceCentavos: 5000, Active: true})
	s.AddMenuItem(domain.MenuItem{ID: "item-b", Name: "Item B", Category: "silog", PriceCentavos: 2000, Active: true})
	s.AddMenuItem(domain.MenuItem{ID: "item-x", Name: "Item X", Category: "merienda", PriceCentavos: 3000, Active: true})
	s.AddMenuItem(domain.MenuItem{ID: "item-y", Name: "Item Y", Category: "merienda", PriceCentavos: 4500, Active: true})
	s.AddMenuItem(domain.MenuItem{ID: "item-off", Name: "Retired", Category: "drinks", PriceCentavos: 1000, Active: false})

	if err := s.CreateProfile(context.Background(), domain.Profile{
		Username: "cashier", Role: domain.RoleCashier, BranchID: "branch-main", Active: true,
	}); err != nil {
		t.Fatalf("seed cashier: %v", err)
	}
	return s
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := newTestStore(t)
	svc := New(repo, nil, domain.AppSettings{RefreshSeconds: 60, RefreshEnabled: false})
	t.Cleanup(svc.Close)
	return svc, repo
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "owner", Role: domain.RoleOwner})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func TestPlaceOrderSnapshotsPricesAndTotals(t *testing.T) {
	svc, repo := newTestService(t)

	// Item A at 50.00 x2 plus Item B at 20.00 x1 comes to 120.00.
	resp, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: "cash",
		CartItems: []domain.CartItem{
			{MenuItemID: "item-a", Qty: 2},
			{MenuItemID: "item-b", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	order := resp.Order
	if order.TotalCentavos != 12000 {
		t.Fatalf("expected total 12000, got %d", order.TotalCentavos)
	}
	if order.Status != domain.OrderStatusNew {
		t.Fatalf("expected status NEW, got %s", order.Status)
	}
	if order.BranchID != "branch-main" {
		t.Fatalf("expected cashier branch, got %s", order.BranchID)
	}
	if order.PaymentType != domain.PaymentCash {
		t.Fatalf("expected CASH, got %s", order.PaymentType)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(order.Lines))
	}
	if order.Lines[0].LineTotalCentavos != 10000 || order.Lines[1].LineTotalCentavos != 2000 {
		t.Fatalf("unexpected line totals: %+v", order.Lines)
	}

	stored, err := repo.GetOrderByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if len(stored.Lines) != 2 || stored.TotalCentavos != 12000 {
		t.Fatalf("stored order mismatch: %+v", stored)
	}
}

func TestPlaceOrderMergesDuplicateCartEntries(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: domain.PaymentGCash,
		CartItems: []domain.CartItem{
			{MenuItemID: "item-a", Qty: 1},
			{MenuItemID: "item-a", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if len(resp.Order.Lines) != 1 || resp.Order.Lines[0].Qty != 3 {
		t.Fatalf("expected one merged line of qty 3, got %+v", resp.Order.Lines)
	}
}

func TestPlaceOrderRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name string
		req  domain.PlaceOrderRequest
	}{
		{"empty cart", domain.PlaceOrderRequest{PaymentType: domain.PaymentCash}},
		{"bad payment", domain.PlaceOrderRequest{PaymentType: "CHECK", CartItems: []domain.CartItem{{MenuItemID: "item-a", Qty: 1}}}},
		{"unknown item", domain.PlaceOrderRequest{PaymentType: domain.PaymentCash, CartItems: []domain.CartItem{{MenuItemID: "item-zzz", Qty: 1}}}},
		{"inactive item", domain.PlaceOrderRequest{PaymentType: domain.PaymentCash, CartItems: []domain.CartItem{{MenuItemID: "item-off", Qty: 1}}}},
	}
	for _, c := range cases {
		if _, err := svc.PlaceOrder(cashierCtx(), c.req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", c.name, err)
		}
	}
}

func TestPlaceOrderOwnerNeedsExplicitBranch(t *testing.T) {
	svc, _ := newTestService(t)

	req := domain.PlaceOrderRequest{
		PaymentType: domain.PaymentCash,
		CartItems:   []domain.CartItem{{MenuItemID: "item-a", Qty: 1}},
	}
	if _, err := svc.PlaceOrder(ownerCtx(), req); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without branch, got %v", err)
	}

	req.BranchID = "branch-annex"
	resp, err := svc.PlaceOrder(ownerCtx(), req)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if resp.Order.BranchID != "branch-annex" {
		t.Fatalf("expected explicit branch, got %s", resp.Order.BranchID)
	}
}

func TestSummaryCountsOnlySales(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: domain.PaymentCash,
		CartItems:   []domain.CartItem{{MenuItemID: "item-a", Qty: 2}, {MenuItemID: "item-b", Qty: 1}},
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	summary, err := svc.Summary(ownerCtx(), yesterday, tomorrow)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Orders != 1 || summary.TotalSalesCentavos != 12000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.TopItems) != 2 || summary.TopItems[0].Name != "Item A" {
		t.Fatalf("unexpected top items: %+v", summary.TopItems)
	}
}

// fakeCache is a minimal in-process CatalogCache for asserting cache-aside
// behavior; TTLs are ignored.
type fakeCache struct {
	branches  []domain.Branch
	menu      []domain.MenuItem
	summaries map[string]domain.ReportSummary
}

func newFakeCache() *fakeCache {
	return &fakeCache{summaries: map[string]domain.ReportSummary{}}
}

func (f *fakeCache) GetBranches(context.Context) ([]domain.Branch, bool, error) {
	return f.branches, f.branches != nil, nil
}

func (f *fakeCache) SetBranches(_ context.Context, branches []domain.Branch, _ time.Duration) error {
	f.branches = branches
	return nil
}

func (f *fakeCache) GetMenu(context.Context) ([]domain.MenuItem, bool, error) {
	return f.menu, f.menu != nil, nil
}

func (f *fakeCache) SetMenu(_ context.Context, items []domain.MenuItem, _ time.Duration) error {
	f.menu = items
	return nil
}

func (f *fakeCache) GetSummary(_ context.Context, key string) (*domain.ReportSummary, bool, error) {
	summary, found := f.summaries[key]
	if !found {
		return nil, false, nil
	}
	return &summary, true, nil
}

func (f *fakeCache) SetSummary(_ context.Context, key string, summary *domain.ReportSummary, _ time.Duration) error {
	f.summaries[key] = *summary
	return nil
}

func TestSummaryServedFromCacheUntilRecompute(t *testing.T) {
	repo := newTestStore(t)
	catalog := newFakeCache()
	svc := New(repo, catalog, domain.AppSettings{RefreshSeconds: 60})
	t.Cleanup(svc.Close)

	if _, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: domain.PaymentCash,
		CartItems:   []domain.CartItem{{MenuItemID: "item-a", Qty: 1}},
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	first, err := svc.Summary(ownerCtx(), yesterday, tomorrow)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if first.TotalSalesCentavos != 5000 {
		t.Fatalf("unexpected first total %d", first.TotalSalesCentavos)
	}

	// A second order lands, but the warm entry keeps serving until refreshed.
	if _, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: domain.PaymentCash,
		CartItems:   []domain.CartItem{{MenuItemID: "item-b", Qty: 1}},
	}); err != nil {
		t.Fatalf("place second order: %v", err)
	}

	cached, err := svc.Summary(ownerCtx(), yesterday, tomorrow)
	if err != nil {
		t.Fatalf("cached summary: %v", err)
	}
	if cached.TotalSalesCentavos != 5000 {
		t.Fatalf("expected cached total 5000, got %d", cached.TotalSalesCentavos)
	}

	// Dropping the entry forces a recompute that sees both orders.
	delete(catalog.summaries, yesterday+"_"+tomorrow)
	fresh, err := svc.Summary(ownerCtx(), yesterday, tomorrow)
	if err != nil {
		t.Fatalf("fresh summary: %v", err)
	}
	if fresh.TotalSalesCentavos != 7000 {
		t.Fatalf("expected recomputed total 7000, got %d", fresh.TotalSalesCentavos)
	}
}

func TestSummaryRejectsBadRange(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Summary(ownerCtx(), "2024-03-07", "2024-03-01"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for reversed range, got %v", err)
	}
	if _, err := svc.Summary(ownerCtx(), "yesterday", "today"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for garbage dates, got %v", err)
	}
}

func TestOrdersInRangeIncludesVoidedWithLines(t *testing.T) {
	svc, _ := newTestService(t)

	placed, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: domain.PaymentCash,
		CartItems:   []domain.CartItem{{MenuItemID: "item-x", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if _, err := svc.StartVoidAndReplace(ownerCtx(), placed.Order.ID); err != nil {
		t.Fatalf("start void/replace: %v", err)
	}
	if _, err := svc.FinalizeReplacement(ownerCtx(), "wrong item"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	list, err := svc.OrdersInRange(ownerCtx(), yesterday, tomorrow)
	if err != nil {
		t.Fatalf("orders in range: %v", err)
	}
	if len(list.Orders) != 2 {
		t.Fatalf("expected voided original plus replacement, got %d orders", len(list.Orders))
	}
	for _, order := range list.Orders {
		if len(order.Lines) == 0 {
			t.Fatalf("order %s missing lines", order.ID)
		}
	}
}

func TestExportCSVWritesParsableRows(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.PlaceOrder(cashierCtx(), domain.PlaceOrderRequest{
		PaymentType: domain.PaymentCash,
		CartItems:   []domain.CartItem{{MenuItemID: "item-a", Qty: 2}, {MenuItemID: "item-b", Qty: 1}},
	}); err != nil {
		t.Fatalf("place order: %v", err)
	}

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	var buf bytes.Buffer
	if err := svc.ExportCSV(ownerCtx(), yesterday, tomorrow, &buf); err != nil {
		t.Fatalf("export csv: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 line rows, got %d", len(rows))
	}
	if rows[1][2] != "Main Branch" {
		t.Fatalf("expected branch name joined into csv, got %q", rows[1][2])
	}
}

func TestSettingsRoundTripAndValidation(t *testing.T) {
	svc, _ := newTestService(t)

	settings, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.RefreshSeconds != 60 {
		t.Fatalf("expected default 60, got %d", settings.RefreshSeconds)
	}

	if _, err := svc.UpdateSettings(cashierCtx(), domain.AppSettings{RefreshSeconds: 30, RefreshEnabled: true}); err == nil {
		t.Fatalf("expected cashier to be rejected")
	}
	if _, err := svc.UpdateSettings(ownerCtx(), domain.AppSettings{RefreshSeconds: 2, RefreshEnabled: true}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for interval below floor, got %v", err)
	}

	saved, err := svc.UpdateSettings(ownerCtx(), domain.AppSettings{RefreshSeconds: 30, RefreshEnabled: true})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if saved.RefreshSeconds != 30 || !saved.RefreshEnabled {
		t.Fatalf("unexpected saved settings: %+v", saved)
	}

	reloaded, err := svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("reload settings: %v", err)
	}
	if reloaded != saved {
		t.Fatalf("settings did not persist: %+v vs %+v", reloaded, saved)
	}
}

func TestSessionReturnsProfileBranch(t *testing.T) {
	svc, _ := newTestService(t)

	sess, err := svc.Session(cashierCtx())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Username != "cashier" || sess.Role != domain.RoleCashier || sess.BranchID != "branch-main" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	sess, err = svc.Session(ownerCtx())
	if err != nil {
		t.Fatalf("owner session: %v", err)
	}
	if sess.BranchID != "" {
		t.Fatalf("owner has no branch, got %q", sess.BranchID)
	}
}

func TestReconciliationRequiresOwner(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Reconciliation(cashierCtx()); err == nil {
		t.Fatalf("expected cashier to be rejected")
	}
	rep, err := svc.Reconciliation(ownerCtx())
	if err != nil {
		t.Fatalf("reconciliation: %v", err)
	}
	if len(rep.StaleDrafts) != 0 || len(rep.UnpairedReplacement) != 0 {
		t.Fatalf("expected clean report, got %+v", rep)
	}
}
