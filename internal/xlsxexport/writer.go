package xlsxexport

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"medbill/internal/domain"
)

const sheetName = "Results"

// columns returns the header row: filename and status, the seven invoice
// fields under their human-facing labels, then the error column. The
// labels come from the shared alias table so the export never drifts
// from the API schema.
func columns() []string {
	cols := []string{"Filename", "Status"}
	cols = append(cols, domain.FieldLabels()...)
	return append(cols, "Error")
}

// Write renders batch conversion results as an xlsx workbook.
func Write(w io.Writer, results []domain.ConvertResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}

	if err := writeRow(f, 1, columns()); err != nil {
		return err
	}
	for i := range results {
		if err := writeRow(f, i+2, resultToRow(&results[i])); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, row int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("writing cell %s: %w", cell, err)
		}
	}
	return nil
}

func resultToRow(res *domain.ConvertResult) []string {
	if res.Error != nil {
		row := []string{res.Filename, "failed"}
		for range domain.Fields {
			row = append(row, "")
		}
		return append(row, fmt.Sprintf("[%s/%s] %s", res.Error.Stage, res.Error.Code, res.Error.Message))
	}

	row := []string{res.Filename, "ok"}
	rec := res.Data
	if rec == nil {
		rec = &domain.InvoiceRecord{}
	}
	row = append(row,
		amountCell(rec.TotalAmount),
		textCell(rec.Payee),
		textCell(rec.VisitDate),
		amountCell(rec.InsurancePayment),
		amountCell(rec.PersonalPayment),
		amountCell(rec.PersonalAccountPayment),
		amountCell(rec.PersonalCashPayment),
	)
	return append(row, "")
}

func amountCell(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func textCell(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
