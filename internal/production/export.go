package production

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteCostSheet renders the cost breakdown of run as an xlsx workbook: one row per ledger line,
// one per allocated overhead and a closing total. Amounts are written as decimal strings.
func WriteCostSheet(w io.Writer, run Run) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	header := []interface{}{"kind", "item", "quantity", "unit_cost", "line_cost"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("cost sheet header: %w", err)
	}

	row := 2
	put := func(values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("cost sheet row %d: %w", row, err)
		}
		row++
		return nil
	}

	for _, item := range run.Items {
		kind := "product"
		if item.Key.IsMaterial() {
			kind = "material"
		}
		line := item.Cost.Mul(item.Quantity)
		if err := put([]interface{}{kind, item.Key.String(), item.Quantity.String(), item.Cost.String(), line.String()}); err != nil {
			return err
		}
	}
	for _, c := range run.CostItems {
		if err := put([]interface{}{"overhead", c.Name, "", "", c.Cost.String()}); err != nil {
			return err
		}
	}
	if err := put([]interface{}{"total", run.Code, "", "", TotalCost(run.Items, run.CostItems).String()}); err != nil {
		return err
	}
	return f.Write(w)
}
