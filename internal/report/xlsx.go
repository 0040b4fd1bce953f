package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Expenses"
	XLSXMime    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportStamp = "2006-01-02 15:04:05"
)

var exportHeaders = []string{"Date", "Category", "Amount", "Description", "Receipt", "Status", "Submitted At", "Applicant", "Department"}

// ExportFileName is the download name for an export made at now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("expenses_%s.xlsx", now.Format("2006-01-02"))
}

// WriteXLSX writes rows as a single-sheet workbook with a totals row.
func WriteXLSX(w io.Writer, rows []AdminRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	dataStyle, err := f.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return fmt.Errorf("data style: %w", err)
	}
	totalStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Size: 11},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Border: border,
	})
	if err != nil {
		return fmt.Errorf("total style: %w", err)
	}

	widths := map[string]float64{"A": 12, "B": 16, "C": 12, "D": 40, "E": 10, "F": 12, "G": 20, "H": 18, "I": 16}
	for col, width := range widths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width %s: %w", col, err)
		}
	}

	if err := f.SetSheetRow(SheetName, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "I1", headerStyle); err != nil {
		return err
	}

	var total int64
	for i, r := range rows {
		row := i + 2

		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.UTC().Format(exportStamp)
		}
		receipt := "no"
		if r.Receipt != "" {
			receipt = "yes"
		}

		values := []any{r.Date, string(r.Category), r.Amount, r.Description, receipt, string(r.Status), submitted, r.OwnerName, r.Department}
		if err := f.SetSheetRow(SheetName, fmt.Sprintf("A%d", row), &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if err := f.SetCellStyle(SheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), dataStyle); err != nil {
			return err
		}
		total += r.Amount
	}

	totalRow := len(rows) + 2
	if err := f.SetCellValue(SheetName, fmt.Sprintf("A%d", totalRow), "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(SheetName, fmt.Sprintf("C%d", totalRow), total); err != nil {
		return err
	}
	if err := f.SetCellValue(SheetName, fmt.Sprintf("D%d", totalRow), fmt.Sprintf("%d records", len(rows))); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("I%d", totalRow), totalStyle); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
