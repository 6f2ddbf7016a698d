package tabular

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

func TestReadQueries_CSV(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []types.Query
		wantErr bool
	}{
		{
			name:  "headers are case insensitive",
			input: " Locatienaam ,PLAATS\nKDV De Zon,Utrecht\nBSO Regenboog, Amersfoort\n",
			want: []types.Query{
				{FacilityName: "KDV De Zon", Locality: "Utrecht"},
				{FacilityName: "BSO Regenboog", Locality: "Amersfoort"},
			},
		},
		{
			name:  "semicolon with BOM and extra columns",
			input: "\xEF\xBB\xBFid;plaats;locatienaam\n1;Utrecht;KDV De Zon\n;;\n",
			want:  []types.Query{{FacilityName: "KDV De Zon", Locality: "Utrecht"}},
		},
		{
			name:    "missing column",
			input:   "naam,plaats\nKDV De Zon,Utrecht\n",
			wantErr: true,
		},
		{
			name:    "missing value",
			input:   "locatienaam,plaats\nKDV De Zon,\n",
			wantErr: true,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadQueries(strings.NewReader(tt.input), FormatCSV)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadQueries_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Plaats", "Locatienaam"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Utrecht", "Zonnekind"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"Zeist", "De Boomhut"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	got, err := ReadQueries(&buf, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, []types.Query{
		{FacilityName: "Zonnekind", Locality: "Utrecht"},
		{FacilityName: "De Boomhut", Locality: "Zeist"},
	}, got)
}

func TestReadQueries_InvalidFile(t *testing.T) {
	_, err := ReadQueries(strings.NewReader("geen excel"), FormatXLSX)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ReadQueriesFile(filepath.Join(t.TempDir(), "input.pdf"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

var sampleRecords = []types.ExtractionRecord{
	{
		Query:     types.Query{FacilityName: "KDV De Zon", Locality: "Utrecht"},
		URL:       "https://kdv-zon.nl/",
		Method:    types.ResolutionPrimary,
		Emails:    []string{"info@kdv-zon.nl", "jan@kdv-zon.nl"},
		Phones:    []string{"+31 30 1234567"},
		Addresses: []string{"3511 AB", "Hoofdstraat 12"},
		Managers:  []string{"Jan de Vries (manager)"},
	},
	{
		Query:  types.Query{FacilityName: "Zonnekind", Locality: "Utrecht"},
		Method: types.ResolutionNone,
		Error:  "Geen website gevonden",
	},
}

func TestRow(t *testing.T) {
	assert.Equal(t, []string{
		"KDV De Zon", "Utrecht", "https://kdv-zon.nl/",
		"info@kdv-zon.nl, jan@kdv-zon.nl",
		"+31 30 1234567",
		"3511 AB | Hoofdstraat 12",
		"Jan de Vries (manager)",
		"",
	}, Row(sampleRecords[0]))

	assert.Equal(t, []string{"Zonnekind", "Utrecht", "", "", "", "", "", "Geen website gevonden"}, Row(sampleRecords[1]))
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleRecords))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, Row(sampleRecords[1]), rows[2])
}

func TestWrite_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleRecords))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "info@kdv-zon.nl, jan@kdv-zon.nl", rows[1][3])
	assert.Equal(t, "Geen website gevonden", rows[2][7])
}

func TestWrite_PDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPDF, sampleRecords))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName(time.Now(), FormatCSV))
	require.NoError(t, WriteFile(path, sampleRecords))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), strings.Join(Columns, ",")))

	assert.Error(t, WriteFile(filepath.Join(t.TempDir(), "out.txt"), sampleRecords))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "xlsx", want: FormatXLSX},
		{in: ".CSV", want: FormatCSV},
		{in: " pdf ", want: FormatPDF},
		{in: "json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultFileName(t *testing.T) {
	now := time.Date(2025, 3, 7, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "locatiemanager-gegevens-2025-03-07-09-05.xlsx", DefaultFileName(now, FormatXLSX))
	assert.Equal(t, "locatiemanager-gegevens-2025-03-07-09-05.pdf", DefaultFileName(now, FormatPDF))
}
