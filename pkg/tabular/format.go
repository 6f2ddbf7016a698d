package tabular

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format は入出力ファイルの形式です。
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// fileNamePrefix は出力ファイル名の接頭辞です。
const fileNamePrefix = "locatiemanager-gegevens"

// ParseFormat は文字列を Format に変換します。
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))); f {
	case FormatXLSX, FormatCSV, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("不明なファイル形式です: %q (xlsx, csv, pdf)", s)
	}
}

// FormatFromPath は拡張子から Format を判定します。
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ContentType は HTTP レスポンス用の Content-Type を返します。
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// DefaultFileName は "locatiemanager-gegevens-YYYY-MM-DD-HH-MM.<ext>" 形式の出力ファイル名を返します。
func DefaultFileName(now time.Time, f Format) string {
	return fmt.Sprintf("%s-%s.%s", fileNamePrefix, now.Format("2006-01-02-15-04"), f)
}
