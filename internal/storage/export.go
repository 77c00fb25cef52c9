package storage

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const contractSheet = "Contract"

// ExportContractToExcel renders a contract with its priced items as an xlsx workbook.
func ExportContractToExcel(c Contract) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), contractSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := [][2]any{
		{"Contract Number", c.Number},
		{"Customer", c.CustomerName},
		{"Contact", c.CustomerContact},
		{"Date", c.ContractDate.Format("2006-01-02")},
		{"From", c.FromAddress},
		{"To", c.ToAddress},
		{"Distance (km)", c.DistanceKm.InexactFloat64()},
		{"Floors (from / to)", fmt.Sprintf("%d / %d", c.FromFloors, c.ToFloors)},
		{"Price Tier", c.PriceTier},
		{"Status", c.Status},
	}
	for i, kv := range header {
		row := i + 1
		f.SetCellValue(contractSheet, cell(1, row), kv[0])
		f.SetCellValue(contractSheet, cell(2, row), kv[1])
	}

	itemsStart := len(header) + 2
	columns := []string{"Item", "Size", "Quantity", "Unit Price", "Assembly", "Disassembly", "Total"}
	for col, title := range columns {
		f.SetCellValue(contractSheet, cell(col+1, itemsStart), title)
	}

	for i, item := range c.Items {
		row := itemsStart + i + 1
		values := []any{
			item.ItemName,
			item.Size,
			item.Quantity,
			item.UnitPrice.InexactFloat64(),
			item.AssemblyPrice.InexactFloat64(),
			item.DisassemblyPrice.InexactFloat64(),
			item.TotalPrice.InexactFloat64(),
		}
		for col, v := range values {
			f.SetCellValue(contractSheet, cell(col+1, row), v)
		}
	}

	totalRow := itemsStart + len(c.Items) + 2
	f.SetCellValue(contractSheet, cell(6, totalRow), "Grand Total")
	f.SetCellValue(contractSheet, cell(7, totalRow), c.TotalPrice.InexactFloat64())

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	f.SetCellStyle(contractSheet, cell(1, 1), cell(1, len(header)), bold)
	f.SetCellStyle(contractSheet, cell(1, itemsStart), cell(len(columns), itemsStart), bold)
	f.SetCellStyle(contractSheet, cell(6, totalRow), cell(7, totalRow), bold)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
