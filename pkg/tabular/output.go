package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// Columns は出力ファイルの列です。
var Columns = []string{
	ColumnFacilityName, ColumnLocality, "website", "emails", "telefoons", "adressen", "managers", "error",
}

const (
	listSeparator   = ", "
	recordSeparator = " | "
	sheetName       = "Resultaten"
)

// Row はレコードを Columns の順に並んだ文字列に変換します。
// メールと電話は ", "、住所と責任者は " | " で連結します。
func Row(rec types.ExtractionRecord) []string {
	return []string{
		rec.Query.FacilityName,
		rec.Query.Locality,
		rec.URL,
		strings.Join(rec.Emails, listSeparator),
		strings.Join(rec.Phones, listSeparator),
		strings.Join(rec.Addresses, recordSeparator),
		strings.Join(rec.Managers, recordSeparator),
		rec.Error,
	}
}

// WriteFile はレコードを path に書き出します。形式は拡張子から判定します。
func WriteFile(path string, records []types.ExtractionRecord) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("出力ファイルの作成に失敗しました: %w", err)
	}
	if err := Write(f, format, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write はレコードを指定した形式で w に書き出します。
func Write(w io.Writer, format Format, records []types.ExtractionRecord) error {
	switch format {
	case FormatXLSX:
		return writeXLSX(w, records)
	case FormatCSV:
		return writeCSV(w, records)
	case FormatPDF:
		return writePDF(w, records, time.Now())
	default:
		return fmt.Errorf("不明なファイル形式です: %q", format)
	}
}

func writeCSV(w io.Writer, records []types.ExtractionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, records []types.ExtractionRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("シート名の設定に失敗しました: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("見出し行の書き込みに失敗しました: %w", err)
	}

	for i, rec := range records {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := Row(rec)
		row := make([]interface{}, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := f.SetSheetRow(sheetName, cellName, &row); err != nil {
			return fmt.Errorf("%d行目の書き込みに失敗しました: %w", i+2, err)
		}
	}

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "H1", style)
	}
	_ = f.SetColWidth(sheetName, "A", "C", 28)
	_ = f.SetColWidth(sheetName, "D", "H", 40)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("Excelファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}

// writePDF はレコードごとに見出しと項目を並べた一覧を書き出します。
func writePDF(w io.Writer, records []types.ExtractionRecord, now time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	// コアフォントは cp1252 のため UTF-8 から変換する
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr("Locatiemanager gegevens"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, now.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for i, rec := range records {
		values := Row(rec)

		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 6, tr(fmt.Sprintf("%d. %s (%s)", i+1, values[0], values[1])), "", "L", false)

		pdf.SetFont("Helvetica", "", 9)
		for j := 2; j < len(Columns); j++ {
			if values[j] == "" {
				continue
			}
			pdf.MultiCell(0, 5, tr(Columns[j]+": "+values[j]), "", "L", false)
		}
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("PDFの書き込みに失敗しました: %w", err)
	}
	return nil
}
