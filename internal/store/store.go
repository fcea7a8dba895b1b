package store

import (
	"context"
	"errors"
	"time"

	"kantina/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflicting order status")
)

type Repository interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error)
	GetMenuItemsByIDs(ctx context.Context, ids []string) (map[string]domain.MenuItem, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Order, error)
	ListOrderLinesByOrderIDs(ctx context.Context, orderIDs []string) ([]domain.OrderLine, error)

	ReplaceOrderLines(ctx context.Context, orderID string, lines []domain.OrderLine, totalCentavos int64) error
	FinalizeReplacement(ctx context.Context, oldOrderID string, newOrderID string, reason string, voidedBy string, at time.Time) (*domain.Order, *domain.Order, error)

	ListStaleDrafts(ctx context.Context, olderThan time.Time) ([]domain.Order, error)
	ListUnpairedReplacements(ctx context.Context) ([]domain.Order, error)

	GetAppSettings(ctx context.Context) (domain.AppSettings, error)
	SaveAppSettings(ctx context.Context, settings domain.AppSettings) error

	CreateProfile(ctx context.Context, profile domain.Profile) error
	GetProfile(ctx context.Context, username string) (*domain.Profile, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
	UpdateProfilePassword(ctx context.Context, username string, password string) error
}
