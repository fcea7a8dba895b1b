package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kantina/backend/internal/domain"
	"kantina/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	branches     map[string]domain.Branch
	menuItems    map[string]domain.MenuItem
	ordersByID   map[string]*domain.Order
	linesByOrder map[string][]domain.OrderLine
	settings     *domain.AppSettings
	profiles     map[string]domain.Profile
}

func New() *Store {
	return &Store{
		branches:     map[string]domain.Branch{},
		menuItems:    map[string]domain.MenuItem{},
		ordersByID:   map[string]*domain.Order{},
		linesByOrder: map[string][]domain.OrderLine{},
		profiles:     map[string]domain.Profile{},
	}
}

// NewSeeded builds a store pre-loaded with demo branches, a small menu and
// one owner plus one cashier account for dev/demo mode. Credentials come from
// SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults are
// used with a warning when unset. Production runs use PostgreSQL.
func NewSeeded() *Store {
	s := New()

	s.branches["branch-main"] = domain.Branch{ID: "branch-main", Name: "Main Branch"}
	s.branches["branch-annex"] = domain.Branch{ID: "branch-annex", Name: "Annex Branch"}

	for _, item := range []domain.MenuItem{
		{ID: "item-silog-01", Name: "Tapsilog", Category: "silog", PriceCentavos: 12000, Active: true},
		{ID: "item-silog-02", Name: "Longsilog", Category: "silog", PriceCentavos: 10000, Active: true},
		{ID: "item-merienda-01", Name: "Pancit Bihon", Category: "merienda", PriceCentavos: 5000, Active: true},
		{ID: "item-merienda-02", Name: "Lumpia (3 pcs)", Category: "merienda", PriceCentavos: 2000, Active: true},
		{ID: "item-drink-01", Name: "Gulaman", Category: "drinks", PriceCentavos: 2500, Active: true},
		{ID: "item-drink-02", Name: "Kape", Category: "drinks", PriceCentavos: 1500, Active: false},
	} {
		s.menuItems[item.ID] = item
	}

	for username, profile := range seedProfiles() {
		s.profiles[username] = profile
	}

	return s
}

func seedProfiles() map[string]domain.Profile {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	profiles := map[string]domain.Profile{}
	for _, p := range []struct {
		username string
		password string
		role     string
		branchID string
	}{
		{"owner", ownerPwd, domain.RoleOwner, ""},
		{"cashier", cashierPwd, domain.RoleCashier, "branch-main"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", p.username, err)
		}
		profiles[p.username] = domain.Profile{
			Username:  p.username,
			Role:      p.role,
			BranchID:  p.branchID,
			Password:  string(hash),
			Active:    true,
			CreatedAt: now,
		}
	}
	return profiles
}

func envOr(key string, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

func (s *Store) ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.MenuItem, 0, len(s.menuItems))
	for _, item := range s.menuItems {
		if activeOnly && !item.Active {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *Store) GetMenuItemsByIDs(ctx context.Context, ids []string) (map[string]domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.MenuItem, len(ids))
	for _, id := range ids {
		if item, ok := s.menuItems[id]; ok {
			result[id] = item
		}
	}
	return result, nil
}

func (s *Store) AddMenuItem(item domain.MenuItem) {
	s.mu.Lock()
	s.menuItems[item.ID] = item
	s.mu.Unlock()
}

func (s *Store) AddBranch(branch domain.Branch) {
	s.mu.Lock()
	s.branches[branch.ID] = branch
	s.mu.Unlock()
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" || order.BranchID == "" || order.PaymentType == "" || order.Status == "" {
		return nil, store.ErrValidation
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ordersByID[order.ID]; exists {
		return nil, store.ErrConflict
	}
	if _, exists := s.branches[order.BranchID]; !exists {
		return nil, store.ErrValidation
	}

	lines := make([]domain.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	for i := range lines {
		lines[i].OrderID = order.ID
	}

	header := order
	header.Lines = nil
	s.ordersByID[order.ID] = &header
	s.linesByOrder[order.ID] = lines

	created := header
	created.Lines = lines
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	header, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order := *header
	order.Lines = append([]domain.OrderLine(nil), s.linesByOrder[id]...)
	return &order, nil
}

func (s *Store) ListOrdersInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ordersByID))
	for _, header := range s.ordersByID {
		if header.CreatedAt.Before(from) || !header.CreatedAt.Before(to) {
			continue
		}
		orders = append(orders, *header)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *Store) ListOrderLinesByOrderIDs(ctx context.Context, orderIDs []string) ([]domain.OrderLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]domain.OrderLine, 0, len(orderIDs)*4)
	for _, id := range orderIDs {
		lines = append(lines, s.linesByOrder[id]...)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].OrderID != lines[j].OrderID {
			return lines[i].OrderID < lines[j].OrderID
		}
		return lines[i].MenuItemID < lines[j].MenuItemID
	})
	return lines, nil
}

func (s *Store) ReplaceOrderLines(ctx context.Context, orderID string, lines []domain.OrderLine, totalCentavos int64) error {
	if orderID == "" {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	header, ok := s.ordersByID[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if header.Status != domain.OrderStatusDraft {
		return store.ErrConflict
	}

	replaced := make([]domain.OrderLine, len(lines))
	copy(replaced, lines)
	for i := range replaced {
		replaced[i].OrderID = orderID
	}
	s.linesByOrder[orderID] = replaced
	header.TotalCentavos = totalCentavos
	return nil
}

func (s *Store) FinalizeReplacement(ctx context.Context, oldOrderID string, newOrderID string, reason string, voidedBy string, at time.Time) (*domain.Order, *domain.Order, error) {
	if oldOrderID == "" || newOrderID == "" || reason == "" || voidedBy == "" {
		return nil, nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newOrder, ok := s.ordersByID[newOrderID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	oldOrder, ok := s.ordersByID[oldOrderID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if newOrder.Replaces != oldOrderID {
		return nil, nil, store.ErrConflict
	}

	switch newOrder.Status {
	case domain.OrderStatusDraft:
		newOrder.Status = domain.OrderStatusPaid
	case domain.OrderStatusPaid:
		// Replay of a half-applied finalize; continue with the old side.
	default:
		return nil, nil, store.ErrConflict
	}

	switch {
	case oldOrder.Status != domain.OrderStatusVoided:
		voidedAt := at.UTC()
		oldOrder.Status = domain.OrderStatusVoided
		oldOrder.VoidedAt = &voidedAt
		oldOrder.VoidedBy = voidedBy
		oldOrder.VoidReason = reason
		oldOrder.ReplacedBy = newOrderID
	case oldOrder.ReplacedBy == newOrderID:
		// Already voided against this replacement.
	default:
		return nil, nil, store.ErrConflict
	}

	oldCopy := *oldOrder
	newCopy := *newOrder
	return &oldCopy, &newCopy, nil
}

func (s *Store) ListStaleDrafts(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drafts := make([]domain.Order, 0, 4)
	for _, header := range s.ordersByID {
		if header.Status == domain.OrderStatusDraft && header.CreatedAt.Before(olderThan) {
			drafts = append(drafts, *header)
		}
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].CreatedAt.Before(drafts[j].CreatedAt) })
	return drafts, nil
}

func (s *Store) ListUnpairedReplacements(ctx context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unpaired := make([]domain.Order, 0, 4)
	for _, header := range s.ordersByID {
		if header.Status != domain.OrderStatusPaid || header.Replaces == "" {
			continue
		}
		source, ok := s.ordersByID[header.Replaces]
		if ok && source.Status != domain.OrderStatusVoided {
			unpaired = append(unpaired, *header)
		}
	}
	sort.Slice(unpaired, func(i, j int) bool { return unpaired[i].CreatedAt.Before(unpaired[j].CreatedAt) })
	return unpaired, nil
}

func (s *Store) GetAppSettings(ctx context.Context) (domain.AppSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return domain.AppSettings{}, store.ErrNotFound
	}
	return *s.settings, nil
}

func (s *Store) SaveAppSettings(ctx context.Context, settings domain.AppSettings) error {
	if settings.RefreshSeconds < 5 {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	saved := settings
	s.settings = &saved
	return nil
}

func (s *Store) CreateProfile(ctx context.Context, profile domain.Profile) error {
	if profile.Username == "" || profile.Role == "" {
		return store.ErrValidation
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.Username]; exists {
		return store.ErrConflict
	}
	s.profiles[profile.Username] = profile
	return nil
}

func (s *Store) GetProfile(ctx context.Context, username string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &profile, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]domain.Profile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		profiles = append(profiles, profile)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Username < profiles[j].Username })
	return profiles, nil
}

func (s *Store) UpdateProfilePassword(ctx context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[username]
	if !ok {
		return store.ErrNotFound
	}
	profile.Password = password
	s.profiles[username] = profile
	return nil
}
