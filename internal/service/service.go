package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"kantina/backend/internal/cache"
	"kantina/backend/internal/domain"
	"kantina/backend/internal/report"
	"kantina/backend/internal/store"
	"kantina/backend/internal/timerange"
	"kantina/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	catalogTTL      = 30 * time.Minute
	summaryTTL      = 10 * time.Minute
	staleDraftAfter = 24 * time.Hour
)

type Service struct {
	repo    store.Repository
	catalog cache.CatalogCache

	refresher *report.Refresher

	defaultSettings domain.AppSettings

	mu      sync.Mutex
	editors map[string]*editor
}

func New(repo store.Repository, catalog cache.CatalogCache, defaults domain.AppSettings) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if defaults.RefreshSeconds < 5 {
		defaults.RefreshSeconds = 60
	}

	s := &Service{
		repo:            repo,
		catalog:         catalog,
		defaultSettings: defaults,
		editors:         make(map[string]*editor),
	}
	s.refresher = report.NewRefresher(s.refreshSnapshot)
	return s
}

// StartRefresher applies the persisted refresh settings (or the configured
// defaults when none were saved yet) and starts the background snapshot loop.
func (s *Service) StartRefresher(ctx context.Context) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		log.Printf("[service] WARN: failed to load settings, using defaults: %v", err)
		settings = s.defaultSettings
	}
	s.refresher.Update(time.Duration(settings.RefreshSeconds)*time.Second, settings.RefreshEnabled)
}

// Close tears down the refresh loop. Safe to call more than once.
func (s *Service) Close() {
	s.refresher.Stop()
}

func (s *Service) Branches(ctx context.Context) ([]domain.Branch, error) {
	if branches, found, err := s.catalog.GetBranches(ctx); err == nil && found {
		return branches, nil
	}

	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.SetBranches(ctx, branches, catalogTTL); err != nil {
		log.Printf("[service] WARN: failed to cache branches: %v", err)
	}
	return branches, nil
}

func (s *Service) Menu(ctx context.Context) ([]domain.MenuItem, error) {
	if items, found, err := s.catalog.GetMenu(ctx); err == nil && found {
		return items, nil
	}

	items, err := s.repo.ListMenuItems(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.SetMenu(ctx, items, catalogTTL); err != nil {
		log.Printf("[service] WARN: failed to cache menu: %v", err)
	}
	return items, nil
}

// PlaceOrder snapshots unit prices from the menu at submit time, persists one
// NEW order header plus its lines, and returns the stored order. The branch
// comes from the cashier's profile; owners must name one explicitly.
func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlaceOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.PlaceOrderResponse{}, fmt.Errorf("authenticated actor required")
	}

	branchID, err := s.resolveBranch(ctx, actor, req.BranchID)
	if err != nil {
		return domain.PlaceOrderResponse{}, err
	}

	paymentType := strings.ToUpper(strings.TrimSpace(req.PaymentType))
	if paymentType != domain.PaymentCash && paymentType != domain.PaymentGCash {
		return domain.PlaceOrderResponse{}, fmt.Errorf("%w: unsupported payment type %q", store.ErrValidation, req.PaymentType)
	}

	cart := normalizeCart(req.CartItems)
	if len(cart) == 0 {
		return domain.PlaceOrderResponse{}, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	itemIDs := make([]string, 0, len(cart))
	for _, item := range cart {
		itemIDs = append(itemIDs, item.MenuItemID)
	}
	items, err := s.repo.GetMenuItemsByIDs(ctx, itemIDs)
	if err != nil {
		return domain.PlaceOrderResponse{}, err
	}

	lines := make([]domain.OrderLine, 0, len(cart))
	total := int64(0)
	for _, entry := range cart {
		item, exists := items[entry.MenuItemID]
		if !exists || !item.Active {
			return domain.PlaceOrderResponse{}, fmt.Errorf("%w: unknown or inactive menu item %q", store.ErrValidation, entry.MenuItemID)
		}
		lineTotal := int64(entry.Qty) * item.PriceCentavos
		lines = append(lines, domain.OrderLine{
			MenuItemID:        item.ID,
			Qty:               entry.Qty,
			UnitPriceCentavos: item.PriceCentavos,
			LineTotalCentavos: lineTotal,
		})
		total += lineTotal
	}

	order := domain.Order{
		ID:            xid.New("ord"),
		BranchID:      branchID,
		PaymentType:   paymentType,
		TotalCentavos: total,
		Status:        domain.OrderStatusNew,
		CreatedAt:     time.Now().UTC(),
		Lines:         lines,
	}

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.PlaceOrderResponse{}, err
	}

	log.Printf("[service] order placed id=%s branch=%s total=%d lines=%d by=%s", created.ID, created.BranchID, created.TotalCentavos, len(created.Lines), actor.Username)
	return domain.PlaceOrderResponse{Order: *created}, nil
}

func (s *Service) resolveBranch(ctx context.Context, actor domain.Actor, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if actor.Role == domain.RoleOwner {
		if requested == "" {
			return "", fmt.Errorf("%w: branch_id is required", store.ErrValidation)
		}
		return requested, nil
	}

	profile, err := s.repo.GetProfile(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: no profile for cashier %q", store.ErrValidation, actor.Username)
		}
		return "", err
	}
	if profile.BranchID == "" {
		return "", fmt.Errorf("%w: cashier %q has no branch assigned", store.ErrValidation, actor.Username)
	}
	return profile.BranchID, nil
}

// rangeInput performs the three dependent loads of the reporting flow: order
// headers in range, their lines, then the menu items those lines reference.
func (s *Service) rangeInput(ctx context.Context, from string, to string) (report.Input, error) {
	fromUTC, toUTC, err := timerange.UTCBounds(from, to)
	if err != nil {
		return report.Input{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	orders, err := s.repo.ListOrdersInRange(ctx, fromUTC, toUTC)
	if err != nil {
		return report.Input{}, err
	}

	orderIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		orderIDs = append(orderIDs, order.ID)
	}
	lines, err := s.repo.ListOrderLinesByOrderIDs(ctx, orderIDs)
	if err != nil {
		return report.Input{}, err
	}

	distinct := map[string]struct{}{}
	for _, line := range lines {
		distinct[line.MenuItemID] = struct{}{}
	}
	itemIDs := make([]string, 0, len(distinct))
	for id := range distinct {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)
	items, err := s.repo.GetMenuItemsByIDs(ctx, itemIDs)
	if err != nil {
		return report.Input{}, err
	}

	branches, err := s.Branches(ctx)
	if err != nil {
		return report.Input{}, err
	}

	return report.Input{
		From:     from,
		To:       to,
		Orders:   orders,
		Lines:    lines,
		Items:    items,
		Branches: branches,
	}, nil
}

// Summary serves the cached snapshot when one is warm (the refresher keeps
// today's entry fresh) and recomputes on a miss.
func (s *Service) Summary(ctx context.Context, from string, to string) (domain.ReportSummary, error) {
	if cached, found, err := s.catalog.GetSummary(ctx, summaryKey(from, to)); err == nil && found && cached != nil {
		return *cached, nil
	}
	return s.computeSummary(ctx, from, to)
}

// computeSummary always recomputes, then rewrites the cache entry.
func (s *Service) computeSummary(ctx context.Context, from string, to string) (domain.ReportSummary, error) {
	in, err := s.rangeInput(ctx, from, to)
	if err != nil {
		return domain.ReportSummary{}, err
	}

	summary := report.Summarize(in, time.Now())
	if err := s.catalog.SetSummary(ctx, summaryKey(from, to), &summary, summaryTTL); err != nil {
		log.Printf("[service] WARN: failed to cache summary: %v", err)
	}
	return summary, nil
}

// OrdersInRange returns headers with lines attached, voided and draft orders
// included, for the dashboard order list.
func (s *Service) OrdersInRange(ctx context.Context, from string, to string) (domain.OrderListResponse, error) {
	in, err := s.rangeInput(ctx, from, to)
	if err != nil {
		return domain.OrderListResponse{}, err
	}

	linesByOrder := make(map[string][]domain.OrderLine, len(in.Orders))
	for _, line := range in.Lines {
		linesByOrder[line.OrderID] = append(linesByOrder[line.OrderID], line)
	}
	orders := make([]domain.Order, 0, len(in.Orders))
	for _, order := range in.Orders {
		order.Lines = linesByOrder[order.ID]
		orders = append(orders, order)
	}
	return domain.OrderListResponse{Orders: orders}, nil
}

func (s *Service) ExportCSV(ctx context.Context, from string, to string, w io.Writer) error {
	in, err := s.rangeInput(ctx, from, to)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, in)
}

func (s *Service) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	settings, err := s.repo.GetAppSettings(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.defaultSettings, nil
		}
		return domain.AppSettings{}, err
	}
	return settings, nil
}

// UpdateSettings persists the refresh configuration and immediately resets
// the background loop to match it.
func (s *Service) UpdateSettings(ctx context.Context, settings domain.AppSettings) (domain.AppSettings, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.AppSettings{}, fmt.Errorf("owner role required")
	}
	if settings.RefreshSeconds < 5 || settings.RefreshSeconds > 3600 {
		return domain.AppSettings{}, fmt.Errorf("%w: refresh_seconds must be between 5 and 3600", store.ErrValidation)
	}

	if err := s.repo.SaveAppSettings(ctx, settings); err != nil {
		return domain.AppSettings{}, err
	}
	s.refresher.Update(time.Duration(settings.RefreshSeconds)*time.Second, settings.RefreshEnabled)
	return settings, nil
}

// refreshSnapshot recomputes today's summary into the cache. Errors are
// logged, never retried; the next tick simply tries again.
func (s *Service) refreshSnapshot(ctx context.Context) {
	today := time.Now().In(timerange.BusinessZone).Format("2006-01-02")
	if _, err := s.computeSummary(ctx, today, today); err != nil {
		log.Printf("[service] WARN: snapshot refresh failed: %v", err)
	}
}

// Reconciliation surfaces the two partial states the void/replace workflow is
// documented to leave behind so an operator can clean them up by hand.
func (s *Service) Reconciliation(ctx context.Context) (domain.ReconciliationReport, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.ReconciliationReport{}, fmt.Errorf("owner role required")
	}

	now := time.Now().UTC()
	drafts, err := s.repo.ListStaleDrafts(ctx, now.Add(-staleDraftAfter))
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	unpaired, err := s.repo.ListUnpairedReplacements(ctx)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}

	return domain.ReconciliationReport{
		StaleDrafts:         drafts,
		UnpairedReplacement: unpaired,
		CheckedAt:           now.Format(time.RFC3339),
	}, nil
}

func (s *Service) Session(ctx context.Context) (domain.SessionResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SessionResponse{}, fmt.Errorf("authenticated actor required")
	}

	resp := domain.SessionResponse{Username: actor.Username, Role: actor.Role}
	profile, err := s.repo.GetProfile(ctx, actor.Username)
	if err == nil {
		resp.BranchID = profile.BranchID
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SessionResponse{}, err
	}
	return resp, nil
}

func summaryKey(from string, to string) string {
	return from + "_" + to
}

func normalizeCart(items []domain.CartItem) []domain.CartItem {
	merged := map[string]int{}
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.MenuItemID)
		if id == "" || item.Qty < 1 {
			continue
		}
		if _, seen := merged[id]; !seen {
			order = append(order, id)
		}
		merged[id] += item.Qty
	}

	normalized := make([]domain.CartItem, 0, len(order))
	for _, id := range order {
		normalized = append(normalized, domain.CartItem{MenuItemID: id, Qty: merged[id]})
	}
	return normalized
}
