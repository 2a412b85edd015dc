// Package export renders submission records as Excel workbooks.
package export

import (
	"bytes"
	"fmt"
	"strings"

	"chata-intake/internal/submission"

	"github.com/xuri/excelize/v2"
)

// SheetName worksheet holding the records
const SheetName = "Assessments"

// multiline columns get wrap-text and a wider column
var wideColumns = map[string]float64{
	"sensoryProfile":        60,
	"socialCommunication":   60,
	"behaviorInterests":     60,
	"milestones":            55,
	"assessmentLog":         45,
	"presentingConcerns":    40,
	"developmentalHistory":  40,
	"clinicalObservations":  40,
	"strengths":             40,
	"priorityAreas":         40,
	"differentialDiagnosis": 40,
	"recommendations":       40,
	"diagnosticFormulation": 40,
}

// XLSX one row per record, columns in submission.Fields order, frozen header
func XLSX(records []submission.Record) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create wrap style: %w", err)
	}

	for i, field := range submission.Fields {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		cell := col + "1"
		if err := f.SetCellValue(SheetName, cell, field); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		width := 18.0
		if w, ok := wideColumns[field]; ok {
			width = w
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
		if _, ok := wideColumns[field]; ok && len(records) > 0 {
			last := fmt.Sprintf("%s%d", col, len(records)+1)
			if err := f.SetCellStyle(SheetName, col+"2", last, wrapStyle); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set wrap style: %w", err)
			}
		}
	}

	for rowIdx, rec := range records {
		row := rowIdx + 2
		for colIdx, field := range submission.Fields {
			value, ok := rec[field]
			if !ok || value == nil || value == "" {
				continue
			}
			if s, isString := value.(string); isString && strings.HasPrefix(s, "data:image/") {
				// embedded charts stay in the sheet, not in the workbook
				value = "attached"
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at %s: %w", cell, err)
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}
