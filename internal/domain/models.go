package domain

import "time"

type Branch struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MenuItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	PriceCentavos int64  `json:"price_centavos"`
	Active        bool   `json:"active"`
}

type OrderLine struct {
	OrderID           string `json:"order_id"`
	MenuItemID        string `json:"menu_item_id"`
	Qty               int    `json:"qty"`
	UnitPriceCentavos int64  `json:"unit_price_centavos"`
	LineTotalCentavos int64  `json:"line_total_centavos"`
}

type Order struct {
	ID            string      `json:"id"`
	BranchID      string      `json:"branch_id"`
	PaymentType   string      `json:"payment_type"`
	TotalCentavos int64       `json:"total_centavos"`
	Status        string      `json:"status"`
	Replaces      string      `json:"replaces,omitempty"`
	ReplacedBy    string      `json:"replaced_by,omitempty"`
	VoidedAt      *time.Time  `json:"voided_at,omitempty"`
	VoidedBy      string      `json:"voided_by,omitempty"`
	VoidReason    string      `json:"void_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	Lines         []OrderLine `json:"lines,omitempty"`
}

// Profile ties an auth identity to a role and, for cashiers, a home branch.
type Profile struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id,omitempty"`
	Password  string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AppSettings struct {
	RefreshSeconds int  `json:"refresh_seconds"`
	RefreshEnabled bool `json:"refresh_enabled"`
}

type CartItem struct {
	MenuItemID string `json:"menu_item_id"`
	Qty        int    `json:"qty"`
}

type PlaceOrderRequest struct {
	BranchID    string     `json:"branch_id,omitempty"`
	PaymentType string     `json:"payment_type"`
	CartItems   []CartItem `json:"cart_items"`
}

type PlaceOrderResponse struct {
	Order Order `json:"order"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type SessionResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
}

// EditorLine is one entry of the in-memory replacement editor: one distinct
// menu item with its quantity and the unit price snapshot it was copied or
// added with.
type EditorLine struct {
	MenuItemID        string `json:"menu_item_id"`
	Name              string `json:"name"`
	Qty               int    `json:"qty"`
	UnitPriceCentavos int64  `json:"unit_price_centavos"`
}

type EditorState struct {
	State         string       `json:"state"`
	OldOrderID    string       `json:"old_order_id,omitempty"`
	NewOrderID    string       `json:"new_order_id,omitempty"`
	Lines         []EditorLine `json:"lines"`
	TotalCentavos int64        `json:"total_centavos"`
}

type StartVoidReplaceRequest struct {
	OrderID string `json:"order_id"`
}

type EditLineRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Qty        int    `json:"qty,omitempty"`
}

type FinalizeRequest struct {
	Reason string `json:"reason"`
}

type FinalizeResponse struct {
	OldOrder Order `json:"old_order"`
	NewOrder Order `json:"new_order"`
}

type PaymentSplit struct {
	PaymentType   string `json:"payment_type"`
	Orders        int64  `json:"orders"`
	TotalCentavos int64  `json:"total_centavos"`
}

type BranchTotal struct {
	BranchID      string `json:"branch_id"`
	BranchName    string `json:"branch_name"`
	Orders        int64  `json:"orders"`
	TotalCentavos int64  `json:"total_centavos"`
}

type ItemTotal struct {
	MenuItemID      string `json:"menu_item_id"`
	Name            string `json:"name"`
	Qty             int64  `json:"qty"`
	RevenueCentavos int64  `json:"revenue_centavos"`
}

type ReportSummary struct {
	From               string         `json:"from"`
	To                 string         `json:"to"`
	Orders             int64          `json:"orders"`
	TotalSalesCentavos int64          `json:"total_sales_centavos"`
	ByPayment          []PaymentSplit `json:"by_payment"`
	ByBranch           []BranchTotal  `json:"by_branch"`
	TopItems           []ItemTotal    `json:"top_items"`
	GeneratedAt        string         `json:"generated_at"`
}

type OrderListResponse struct {
	Orders []Order `json:"orders"`
}

type PasswordResetRequest struct {
	Mode        string `json:"mode"`
	NewPassword string `json:"newPassword"`
}

// ReconciliationReport surfaces the partial states the void/replace workflow
// is allowed to leave behind: DRAFT orders nobody finalized, and replacement
// orders already PAID whose source order never flipped to VOIDED.
type ReconciliationReport struct {
	StaleDrafts         []Order `json:"stale_drafts"`
	UnpairedReplacement []Order `json:"unpaired_replacements"`
	CheckedAt           string  `json:"checked_at"`
}

const (
	OrderStatusNew    = "NEW"
	OrderStatusDraft  = "DRAFT"
	OrderStatusPaid   = "PAID"
	OrderStatusVoided = "VOIDED"
)

const (
	PaymentCash  = "CASH"
	PaymentGCash = "GCASH"
)

const (
	RoleOwner   = "owner"
	RoleCashier = "cashier"
)

const (
	EditorStateIdle      = "IDLE"
	EditorStateEditing   = "EDITING"
	EditorStateFinalized = "FINALIZED"
)
