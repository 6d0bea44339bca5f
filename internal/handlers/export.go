package handlers

import (
	"bytes"
	"strings"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportFilename  = "links.xlsx"
	exportSheet     = "Links"
)

var exportHeader = []string{"code", "short_url", "target_url", "visit_count", "created_at", "expires_at"}

// buildLinksWorkbook строит книгу с одной строкой на ссылку в порядке recs.
func buildLinksWorkbook(recs []*model.LinkRecord, shortURL func(string) string) (*bytes.Buffer, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), exportSheet); err != nil {
		return nil, err
	}
	header := exportHeader
	if err := xl.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, rec := range recs {
		expires := ""
		if rec.ExpiresAt != nil {
			expires = rec.ExpiresAt.UTC().Format(time.RFC3339)
		}
		row := []any{
			rec.Code,
			shortURL(rec.Code),
			trimSheetValue(rec.TargetURL),
			rec.VisitCount,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			expires,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := xl.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	return xl.WriteToBuffer()
}

// trimSheetValue обрезает значение ячейки до лимита Excel.
func trimSheetValue(s string) string {
	const maxCell = 32767
	if len(s) > maxCell {
		return strings.ToValidUTF8(s[:maxCell], "")
	}
	return s
}
