package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kantina/backend/internal/domain"
	"kantina/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM branches
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error) {
	query := `
		SELECT id, name, category, price_centavos, is_active
		FROM menu_items
		ORDER BY category, name
	`
	if activeOnly {
		query = `
			SELECT id, name, category, price_centavos, is_active
			FROM menu_items
			WHERE is_active = true
			ORDER BY category, name
		`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0, 64)
	for rows.Next() {
		var item domain.MenuItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.PriceCentavos, &item.Active); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetMenuItemsByIDs(ctx context.Context, ids []string) (map[string]domain.MenuItem, error) {
	result := make(map[string]domain.MenuItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_centavos, is_active
		FROM menu_items
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.MenuItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.PriceCentavos, &item.Active); err != nil {
			return nil, err
		}
		result[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateOrder inserts the order header and all of its lines in one
// transaction, so a header can never exist without its lines.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" || order.BranchID == "" || order.PaymentType == "" || order.Status == "" {
		return nil, store.ErrValidation
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, branch_id, payment_type, total_centavos, status, replaces, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, order.ID, order.BranchID, order.PaymentType, order.TotalCentavos, order.Status, nullIfEmpty(order.Replaces), order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, menu_item_id, qty, unit_price_centavos, line_total_centavos)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, line.MenuItemID, line.Qty, line.UnitPriceCentavos, line.LineTotalCentavos)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	for i := range created.Lines {
		created.Lines[i].OrderID = created.ID
	}
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.scanOrder(ctx, s.db.QueryRowContext(ctx, `
		SELECT id, branch_id, payment_type, total_centavos, status,
		       replaces, replaced_by, voided_at, voided_by, void_reason, created_at
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, err
	}

	lines, err := s.ListOrderLinesByOrderIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (s *Store) ListOrdersInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, payment_type, total_centavos, status,
		       replaces, replaced_by, voided_at, voided_by, void_reason, created_at
		FROM orders
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 128)
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) ListOrderLinesByOrderIDs(ctx context.Context, orderIDs []string) ([]domain.OrderLine, error) {
	if len(orderIDs) == 0 {
		return []domain.OrderLine{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, menu_item_id, qty, unit_price_centavos, line_total_centavos
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, menu_item_id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, len(orderIDs)*4)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.OrderID, &line.MenuItemID, &line.Qty, &line.UnitPriceCentavos, &line.LineTotalCentavos); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// ReplaceOrderLines swaps the full line set of a DRAFT order and writes the
// matching total, all in one transaction. Lines are never diffed: the whole
// set is deleted and re-inserted, which makes an unchanged save a no-op.
func (s *Store) ReplaceOrderLines(ctx context.Context, orderID string, lines []domain.OrderLine, totalCentavos int64) error {
	if orderID == "" {
		return store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status != domain.OrderStatusDraft {
		return store.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, menu_item_id, qty, unit_price_centavos, line_total_centavos)
			VALUES ($1,$2,$3,$4,$5)
		`, orderID, line.MenuItemID, line.Qty, line.UnitPriceCentavos, line.LineTotalCentavos)
		if err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET total_centavos = $2 WHERE id = $1
	`, orderID, totalCentavos); err != nil {
		return err
	}

	return tx.Commit()
}

// FinalizeReplacement flips the pair in one transaction: the replacement goes
// DRAFT -> PAID and the source goes to VOIDED with its audit metadata and
// back-reference. Each side is guarded by its current status so a replay of a
// half-applied finalize converges instead of corrupting the pairing.
func (s *Store) FinalizeReplacement(ctx context.Context, oldOrderID string, newOrderID string, reason string, voidedBy string, at time.Time) (*domain.Order, *domain.Order, error) {
	if oldOrderID == "" || newOrderID == "" || reason == "" || voidedBy == "" {
		return nil, nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var newStatus string
	var replaces sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT status, replaces FROM orders WHERE id = $1 FOR UPDATE
	`, newOrderID).Scan(&newStatus, &replaces)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if !replaces.Valid || replaces.String != oldOrderID {
		return nil, nil, store.ErrConflict
	}

	var oldStatus string
	var replacedBy sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT status, replaced_by FROM orders WHERE id = $1 FOR UPDATE
	`, oldOrderID).Scan(&oldStatus, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}

	switch newStatus {
	case domain.OrderStatusDraft:
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = $2 WHERE id = $1
		`, newOrderID, domain.OrderStatusPaid); err != nil {
			return nil, nil, err
		}
	case domain.OrderStatusPaid:
		// Already flipped by a previous attempt; fall through to the old side.
	default:
		return nil, nil, store.ErrConflict
	}

	switch {
	case oldStatus != domain.OrderStatusVoided:
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $2, voided_at = $3, voided_by = $4, void_reason = $5, replaced_by = $6
			WHERE id = $1
		`, oldOrderID, domain.OrderStatusVoided, at, voidedBy, reason, newOrderID); err != nil {
			return nil, nil, err
		}
	case replacedBy.Valid && replacedBy.String == newOrderID:
		// Already voided against this replacement; nothing to do.
	default:
		return nil, nil, store.ErrConflict
	}

	oldOrder, err := s.scanOrder(ctx, tx.QueryRowContext(ctx, `
		SELECT id, branch_id, payment_type, total_centavos, status,
		       replaces, replaced_by, voided_at, voided_by, void_reason, created_at
		FROM orders WHERE id = $1
	`, oldOrderID))
	if err != nil {
		return nil, nil, err
	}
	newOrder, err := s.scanOrder(ctx, tx.QueryRowContext(ctx, `
		SELECT id, branch_id, payment_type, total_centavos, status,
		       replaces, replaced_by, voided_at, voided_by, void_reason, created_at
		FROM orders WHERE id = $1
	`, newOrderID))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return oldOrder, newOrder, nil
}

func (s *Store) ListStaleDrafts(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, payment_type, total_centavos, status,
		       replaces, replaced_by, voided_at, voided_by, void_reason, created_at
		FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`, domain.OrderStatusDraft, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) ListUnpairedReplacements(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.branch_id, n.payment_type, n.total_centavos, n.status,
		       n.replaces, n.replaced_by, n.voided_at, n.voided_by, n.void_reason, n.created_at
		FROM orders n
		JOIN orders o ON o.id = n.replaces
		WHERE n.status = $1 AND n.replaces IS NOT NULL AND o.status <> $2
		ORDER BY n.created_at
	`, domain.OrderStatusPaid, domain.OrderStatusVoided)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) GetAppSettings(ctx context.Context) (domain.AppSettings, error) {
	var settings domain.AppSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT refresh_seconds, refresh_enabled
		FROM app_settings
		WHERE id = 1
	`).Scan(&settings.RefreshSeconds, &settings.RefreshEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AppSettings{}, store.ErrNotFound
		}
		return domain.AppSettings{}, err
	}
	return settings, nil
}

func (s *Store) SaveAppSettings(ctx context.Context, settings domain.AppSettings) error {
	if settings.RefreshSeconds < 5 {
		return store.ErrValidation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings (id, refresh_seconds, refresh_enabled, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id)
		DO UPDATE SET refresh_seconds = EXCLUDED.refresh_seconds, refresh_enabled = EXCLUDED.refresh_enabled, updated_at = now()
	`, settings.RefreshSeconds, settings.RefreshEnabled)
	return err
}

func (s *Store) CreateProfile(ctx context.Context, profile domain.Profile) error {
	if profile.Username == "" || profile.Role == "" {
		return store.ErrValidation
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (username, role, branch_id, password, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, profile.Username, profile.Role, nullIfEmpty(profile.BranchID), profile.Password, profile.Active, profile.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) GetProfile(ctx context.Context, username string) (*domain.Profile, error) {
	var profile domain.Profile
	var branchID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT username, role, branch_id, password, active, created_at
		FROM profiles
		WHERE username = $1
	`, username).Scan(&profile.Username, &profile.Role, &branchID, &profile.Password, &profile.Active, &profile.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	profile.BranchID = branchID.String
	profile.CreatedAt = profile.CreatedAt.UTC()
	return &profile, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, role, branch_id, password, active, created_at
		FROM profiles
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]domain.Profile, 0, 16)
	for rows.Next() {
		var profile domain.Profile
		var branchID sql.NullString
		if err := rows.Scan(&profile.Username, &profile.Role, &branchID, &profile.Password, &profile.Active, &profile.CreatedAt); err != nil {
			return nil, err
		}
		profile.BranchID = branchID.String
		profile.CreatedAt = profile.CreatedAt.UTC()
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *Store) UpdateProfilePassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(_ context.Context, row rowScanner) (*domain.Order, error) {
	order, err := scanOrderRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func scanOrderRow(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var replaces, replacedBy, voidedBy, voidReason sql.NullString
	var voidedAt sql.NullTime
	err := row.Scan(&order.ID, &order.BranchID, &order.PaymentType, &order.TotalCentavos, &order.Status,
		&replaces, &replacedBy, &voidedAt, &voidedBy, &voidReason, &order.CreatedAt)
	if err != nil {
		return nil, err
	}
	order.Replaces = replaces.String
	order.ReplacedBy = replacedBy.String
	order.VoidedBy = voidedBy.String
	order.VoidReason = voidReason.String
	if voidedAt.Valid {
		at := voidedAt.Time.UTC()
		order.VoidedAt = &at
	}
	order.CreatedAt = order.CreatedAt.UTC()
	return &order, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
