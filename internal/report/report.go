// Package report derives dashboard aggregates and exports from range-loaded
// orders. All joins (line -> item name, order -> branch name) happen here,
// in memory, mirroring how the data is loaded: orders first, then lines keyed
// by order id, then items keyed by the distinct item ids referenced.
package report

import (
	"fmt"
	"sort"
	"time"

	"kantina/backend/internal/domain"
)

// Input is one range load. Orders carries headers of every status; DRAFT and
// VOIDED orders are excluded from sales aggregates but kept available for the
// order list and export.
type Input struct {
	From     string
	To       string
	Orders   []domain.Order
	Lines    []domain.OrderLine
	Items    map[string]domain.MenuItem
	Branches []domain.Branch
}

const TopItemsLimit = 10

// Summarize recomputes every aggregate from scratch. It is pure: same input,
// same output, no store access.
func Summarize(in Input, now time.Time) domain.ReportSummary {
	summary := domain.ReportSummary{
		From:        in.From,
		To:          in.To,
		ByPayment:   []domain.PaymentSplit{},
		ByBranch:    []domain.BranchTotal{},
		TopItems:    []domain.ItemTotal{},
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}

	branchNames := make(map[string]string, len(in.Branches))
	for _, b := range in.Branches {
		branchNames[b.ID] = b.Name
	}

	counted := make(map[string]bool, len(in.Orders))
	byPayment := map[string]*domain.PaymentSplit{
		domain.PaymentCash:  {PaymentType: domain.PaymentCash},
		domain.PaymentGCash: {PaymentType: domain.PaymentGCash},
	}
	byBranch := map[string]*domain.BranchTotal{}

	for _, order := range in.Orders {
		if !CountsAsSale(order.Status) {
			continue
		}
		counted[order.ID] = true
		summary.Orders++
		summary.TotalSalesCentavos += order.TotalCentavos

		if split, ok := byPayment[order.PaymentType]; ok {
			split.Orders++
			split.TotalCentavos += order.TotalCentavos
		}

		bt, ok := byBranch[order.BranchID]
		if !ok {
			bt = &domain.BranchTotal{BranchID: order.BranchID, BranchName: branchNames[order.BranchID]}
			byBranch[order.BranchID] = bt
		}
		bt.Orders++
		bt.TotalCentavos += order.TotalCentavos
	}

	summary.ByPayment = []domain.PaymentSplit{*byPayment[domain.PaymentCash], *byPayment[domain.PaymentGCash]}

	for _, bt := range byBranch {
		summary.ByBranch = append(summary.ByBranch, *bt)
	}
	sort.Slice(summary.ByBranch, func(i, j int) bool {
		if summary.ByBranch[i].TotalCentavos != summary.ByBranch[j].TotalCentavos {
			return summary.ByBranch[i].TotalCentavos > summary.ByBranch[j].TotalCentavos
		}
		return summary.ByBranch[i].BranchID < summary.ByBranch[j].BranchID
	})

	summary.TopItems = topItems(in.Lines, counted, in.Items)
	return summary
}

// CountsAsSale reports whether an order status contributes to sales
// aggregates. The status column is free text in practice, so anything
// unrecognized is left out rather than guessed at.
func CountsAsSale(status string) bool {
	return status == domain.OrderStatusNew || status == domain.OrderStatusPaid
}

// topItems ranks by revenue descending with menu item id ascending as the
// tie-break, so equal-revenue items always come back in the same order.
// Items no longer in the catalog (deactivated or deleted) still rank; their
// id stands in for the missing name.
func topItems(lines []domain.OrderLine, counted map[string]bool, items map[string]domain.MenuItem) []domain.ItemTotal {
	byItem := map[string]*domain.ItemTotal{}
	for _, line := range lines {
		if !counted[line.OrderID] {
			continue
		}
		it, ok := byItem[line.MenuItemID]
		if !ok {
			name := line.MenuItemID
			if item, exists := items[line.MenuItemID]; exists {
				name = item.Name
			}
			it = &domain.ItemTotal{MenuItemID: line.MenuItemID, Name: name}
			byItem[line.MenuItemID] = it
		}
		it.Qty += int64(line.Qty)
		it.RevenueCentavos += line.LineTotalCentavos
	}

	ranked := make([]domain.ItemTotal, 0, len(byItem))
	for _, it := range byItem {
		ranked = append(ranked, *it)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].RevenueCentavos != ranked[j].RevenueCentavos {
			return ranked[i].RevenueCentavos > ranked[j].RevenueCentavos
		}
		return ranked[i].MenuItemID < ranked[j].MenuItemID
	})
	if len(ranked) > TopItemsLimit {
		ranked = ranked[:TopItemsLimit]
	}
	return ranked
}

// FormatCentavos renders an int64 centavo amount as pesos with two decimals,
// e.g. 12000 -> "120.00".
func FormatCentavos(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
