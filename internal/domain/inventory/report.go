package inventory

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/sheet"
)

var stockHeader = []interface{}{"ID", "Name", "Unit", "Quantity", "Min Quantity", "Price", "Supplier", "Low Stock"}

func writeStockReport(w io.Writer, items []*Material) error {
	rows := make([][]interface{}, 0, len(items))
	for _, m := range items {
		rows = append(rows, []interface{}{
			m.ID.String(), m.Name, m.Unit, m.Quantity, m.MinQuantity, m.Price, m.Supplier, m.LowStock(),
		})
	}
	return sheet.Write(w, "Stock", stockHeader, rows)
}

// Import sheets carry a header row followed by
// material_id | quantity | price | supplier | note.
func parseImportSheet(r io.Reader) ([]CreateImportInput, error) {
	rows, err := sheet.ReadRows(r)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if len(rows) < 2 {
		return nil, invalid("sheet has no import rows")
	}

	var out []CreateImportInput
	for i, row := range rows[1:] {
		line := i + 2
		if blankRow(row) {
			continue
		}
		cell := func(n int) string {
			if n < len(row) {
				return strings.TrimSpace(row[n])
			}
			return ""
		}
		id, err := uuid.Parse(cell(0))
		if err != nil {
			return nil, invalid("row %d: invalid material_id", line)
		}
		qty, err := strconv.ParseInt(cell(1), 10, 64)
		if err != nil {
			return nil, invalid("row %d: invalid quantity", line)
		}
		var price int64
		if p := cell(2); p != "" {
			if price, err = strconv.ParseInt(p, 10, 64); err != nil {
				return nil, invalid("row %d: invalid price", line)
			}
		}
		out = append(out, CreateImportInput{
			MaterialID: id,
			Quantity:   qty,
			Price:      price,
			Supplier:   cell(3),
			Note:       cell(4),
		})
	}
	if len(out) == 0 {
		return nil, invalid("sheet has no import rows")
	}
	return out, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ImportTemplate writes an empty import sheet with the expected header.
func ImportTemplate(w io.Writer) error {
	if err := sheet.Write(w, "Imports", []interface{}{"material_id", "quantity", "price", "supplier", "note"}, nil); err != nil {
		return fmt.Errorf("import template: %w", err)
	}
	return nil
}
