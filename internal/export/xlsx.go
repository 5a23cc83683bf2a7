package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

const (
	// Sheet is the name of the records sheet.
	Sheet = "PortalServTax"

	// SkippedSheet lists inputs that produced no record. It is only added
	// when there is something to list.
	SkippedSheet = "Ignorados"

	moneyFormat = "#,##0.00"
	moneyWidth  = 18
	textWidth   = 22
	headerFill  = "FF69B4"
)

// WriteXLSX writes the table as a workbook.
func WriteXLSX(w io.Writer, t *types.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), Sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	head := header()
	if err := f.SetSheetRow(Sheet, "A1", &head); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range t.Records {
		row := t.Records[i].Values()
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(Sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i+1, err)
		}
	}

	if err := formatColumns(f, styles, len(t.Records)); err != nil {
		return err
	}
	if err := f.SetPanes(Sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if len(t.Skipped) > 0 {
		if err := writeSkippedSheet(f, styles, t.Skipped); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type sheetStyles struct {
	header int
	money  int
}

func newStyles(f *excelize.File) (sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerFill}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("failed to create header style: %w", err)
	}

	numFmt := moneyFormat
	money, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("failed to create money style: %w", err)
	}
	return sheetStyles{header: header, money: money}, nil
}

// formatColumns applies header style, widths and the money number format.
func formatColumns(f *excelize.File, s sheetStyles, records int) error {
	last, err := excelize.ColumnNumberToName(len(types.Columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(Sheet, "A1", last+"1", s.header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, c := range types.Columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(textWidth)
		if c.Kind == types.KindMoney {
			width = moneyWidth
			if records > 0 {
				if err := f.SetCellStyle(Sheet, col+"2", fmt.Sprintf("%s%d", col, records+1), s.money); err != nil {
					return fmt.Errorf("failed to style column %s: %w", c.Name, err)
				}
			}
		}
		if err := f.SetColWidth(Sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", c.Name, err)
		}
	}
	return nil
}

func writeSkippedSheet(f *excelize.File, s sheetStyles, skipped []types.Skip) error {
	if _, err := f.NewSheet(SkippedSheet); err != nil {
		return fmt.Errorf("failed to add sheet %s: %w", SkippedSheet, err)
	}
	head := []any{types.FieldArquivo, "Motivo"}
	if err := f.SetSheetRow(SkippedSheet, "A1", &head); err != nil {
		return err
	}
	for i, sk := range skipped {
		row := []any{sk.Name, reason(sk)}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SkippedSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write skipped input %s: %w", sk.Name, err)
		}
	}
	if err := f.SetCellStyle(SkippedSheet, "A1", "B1", s.header); err != nil {
		return err
	}
	return f.SetColWidth(SkippedSheet, "A", "B", 48)
}
