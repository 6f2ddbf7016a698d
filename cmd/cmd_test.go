package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/fetcher"
	"github.com/j0rgje/KDVcontactscraper/pkg/tabular"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

func TestEnsureScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "kdv-zon.nl", want: "https://kdv-zon.nl"},
		{in: " kdv-zon.nl/contact ", want: "https://kdv-zon.nl/contact"},
		{in: "http://kdv-zon.nl", want: "http://kdv-zon.nl"},
		{in: "https://kdv-zon.nl/", want: "https://kdv-zon.nl/"},
		{in: "ftp://kdv-zon.nl", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ensureScheme(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputPath(t *testing.T) {
	now := time.Date(2025, 3, 7, 9, 5, 0, 0, time.UTC)

	got, err := outputPath("", "csv", now)
	require.NoError(t, err)
	assert.Equal(t, "locatiemanager-gegevens-2025-03-07-09-05.csv", got)

	got, err = outputPath("out/result.pdf", "csv", now)
	require.NoError(t, err)
	assert.Equal(t, "out/result.pdf", got)

	_, err = outputPath("result.txt", "xlsx", now)
	assert.Error(t, err)
	_, err = outputPath("", "docx", now)
	assert.Error(t, err)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf}

	q := types.Query{FacilityName: "KDV De Zon", Locality: "Utrecht"}
	p.QueryStarted(0, 2, q)
	p.QueryFinished(0, 2, types.ExtractionRecord{Query: q, URL: "https://kdv-zon.nl/", Emails: []string{"a@kdv-zon.nl"}}, time.Second)
	p.QueryFinished(1, 2, types.ExtractionRecord{Query: types.Query{FacilityName: "Zonnekind"}, Error: "Geen website gevonden"}, time.Second)

	out := buf.String()
	assert.Contains(t, out, "Verwerk 1/2: KDV De Zon (Utrecht)")
	assert.Contains(t, out, "✅ [1] KDV De Zon: https://kdv-zon.nl/")
	assert.Contains(t, out, "❌ [2] Zonnekind: Geen website gevonden")
}

func TestPrintSummary(t *testing.T) {
	records := []types.ExtractionRecord{
		{Query: types.Query{FacilityName: "KDV De Zon", Locality: "Utrecht"}},
		{Query: types.Query{FacilityName: "Zonnekind", Locality: "Utrecht"}, Error: "Geen website gevonden"},
	}
	var buf bytes.Buffer
	printSummary(&buf, records, types.Summary{Total: 2, Succeeded: 1, Failed: 1}, "out.xlsx")

	out := buf.String()
	assert.Contains(t, out, "完了: 成功 1 件, 失敗 1 件")
	assert.Contains(t, out, "出力ファイル: out.xlsx")
	assert.Contains(t, out, "Zonnekind (Utrecht): Geen website gevonden")
	assert.NotContains(t, out, "KDV De Zon (Utrecht):")
}

func TestRunScrape(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><p>Contact: info@kdv-zon.nl, 030-1234567</p></body></html>`)
	}))
	defer site.Close()

	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("q") == "Zonnekind Utrecht kinderopvang" {
			fmt.Fprint(w, `<html><body></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body><a class="result__a" href="%s/">KDV De Zon</a></body></html>`, site.URL)
	}))
	defer search.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "locaties.csv")
	require.NoError(t, os.WriteFile(input, []byte("locatienaam,plaats\nKDV De Zon,Utrecht\nZonnekind,Utrecht\n"), 0o600))
	output := filepath.Join(dir, "resultaat.csv")

	cfg := config.Default()
	cfg.Search.DuckDuckGoEndpoint = search.URL
	cfg.Fetch.Strategies = []string{fetcher.StrategyDirect}
	cfg.Batch.Delay = 0
	cfg.Cache.Backend = config.CacheNone

	var out bytes.Buffer
	summary, err := runScrape(context.Background(), cfg, scrapeOptions{input: input, output: output}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.NotEmpty(t, summary.RunID)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tabular.Columns, rows[0])
	assert.Equal(t, "info@kdv-zon.nl", rows[1][3])
	assert.Equal(t, "+31 30 1234567", rows[1][4])
	assert.Equal(t, "Geen website gevonden", rows[2][7])

	assert.Contains(t, out.String(), "Verwerk 2/2: Zonnekind (Utrecht)")
	assert.Contains(t, out.String(), "Zonnekind (Utrecht): Geen website gevonden")
}

func TestRunScrape_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "locaties.csv")
	require.NoError(t, os.WriteFile(input, []byte("naam,plaats\nKDV De Zon,Utrecht\n"), 0o600))

	_, err := runScrape(context.Background(), config.Default(), scrapeOptions{input: input, format: "xlsx"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, tabular.ErrInvalidInput)

	_, err = runScrape(context.Background(), config.Default(), scrapeOptions{input: filepath.Join(dir, "missing.xlsx")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunScrape_StoreRequiresURL(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "locaties.csv")
	require.NoError(t, os.WriteFile(input, []byte("locatienaam,plaats\nKDV De Zon,Utrecht\n"), 0o600))

	_, err := runScrape(context.Background(), config.Default(),
		scrapeOptions{input: input, output: filepath.Join(dir, "out.csv"), save: true}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "store.postgres_url")
}
