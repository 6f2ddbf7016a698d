package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// 入力ファイルの必須列
const (
	ColumnFacilityName = "locatienaam"
	ColumnLocality     = "plaats"
)

// ErrInvalidInput は入力ファイルに必須列や必須値が欠けていることを示します。
var ErrInvalidInput = errors.New("入力ファイルが不正です")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadQueriesFile は拡張子 (.xlsx / .csv) に応じて入力ファイルを読み込みます。
func ReadQueriesFile(path string) ([]types.Query, error) {
	format, err := FormatFromPath(path)
	if err != nil || format == FormatPDF {
		return nil, fmt.Errorf("%w: 対応していない入力形式です: %s (.xlsx または .csv)", ErrInvalidInput, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("入力ファイルを開けませんでした: %w", err)
	}
	defer f.Close()

	return ReadQueries(f, format)
}

// ReadQueries は xlsx または csv からクエリを読み込みます。
// 見出し行は大文字小文字と前後の空白を無視して照合します。
func ReadQueries(r io.Reader, format Format) ([]types.Query, error) {
	var rows [][]string
	var err error

	switch format {
	case FormatXLSX:
		rows, err = readXLSXRows(r)
	case FormatCSV:
		rows, err = readCSVRows(r)
	default:
		return nil, fmt.Errorf("%w: 対応していない入力形式です: %s", ErrInvalidInput, format)
	}
	if err != nil {
		return nil, err
	}
	return queriesFromRows(rows)
}

func readXLSXRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: Excelファイルを読み込めませんでした: %v", ErrInvalidInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: シートがありません", ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: シート %q を読み込めませんでした: %v", ErrInvalidInput, sheets[0], err)
	}
	return rows, nil
}

func readCSVRows(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("CSVの読み込みに失敗しました: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: CSVを解析できませんでした: %v", ErrInvalidInput, err)
	}
	return rows, nil
}

// sniffDelimiter は見出し行からオランダ語版 Excel が出力するセミコロン区切りを判定します。
func sniffDelimiter(data []byte) rune {
	header := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		header = data[:i]
	}
	if bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(",")) {
		return ';'
	}
	return ','
}

func queriesFromRows(rows [][]string) ([]types.Query, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: 見出し行がありません", ErrInvalidInput)
	}

	nameCol, placeCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case ColumnFacilityName:
			nameCol = i
		case ColumnLocality:
			placeCol = i
		}
	}
	if nameCol < 0 || placeCol < 0 {
		return nil, fmt.Errorf("%w: 列 '%s' と '%s' が必要です", ErrInvalidInput, ColumnFacilityName, ColumnLocality)
	}

	queries := make([]types.Query, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		q := types.Query{
			FacilityName: cell(row, nameCol),
			Locality:     cell(row, placeCol),
		}
		if q.FacilityName == "" || q.Locality == "" {
			return nil, fmt.Errorf("%w: %d行目に '%s' または '%s' がありません", ErrInvalidInput, i+2, ColumnFacilityName, ColumnLocality)
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
