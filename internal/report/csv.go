package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"kantina/backend/internal/domain"
)

var csvHeader = []string{
	"order_id", "created_at", "branch_name", "payment_type", "order_total",
	"item_name", "qty", "line_total",
}

// CSVFilename embeds the selected date range in the download name.
func CSVFilename(from string, to string) string {
	return fmt.Sprintf("sales_%s_%s.csv", from, to)
}

// WriteCSV emits one row per order line in order/created_at sequence, plus a
// single placeholder row for any order that has no lines at all. encoding/csv
// handles the quoting rules (commas, quotes and newlines in values).
func WriteCSV(w io.Writer, in Input) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	branchNames := make(map[string]string, len(in.Branches))
	for _, b := range in.Branches {
		branchNames[b.ID] = b.Name
	}
	linesByOrder := make(map[string][]domain.OrderLine, len(in.Orders))
	for _, line := range in.Lines {
		linesByOrder[line.OrderID] = append(linesByOrder[line.OrderID], line)
	}

	for _, order := range in.Orders {
		base := []string{
			order.ID,
			order.CreatedAt.UTC().Format(time.RFC3339),
			branchNames[order.BranchID],
			order.PaymentType,
			FormatCentavos(order.TotalCentavos),
		}

		lines := linesByOrder[order.ID]
		if len(lines) == 0 {
			if err := writer.Write(append(base, "", "0", "0.00")); err != nil {
				return err
			}
			continue
		}

		for _, line := range lines {
			name := line.MenuItemID
			if item, ok := in.Items[line.MenuItemID]; ok {
				name = item.Name
			}
			row := append(base[:5:5], name, strconv.Itoa(line.Qty), FormatCentavos(line.LineTotalCentavos))
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}
