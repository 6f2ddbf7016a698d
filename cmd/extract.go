package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/j0rgje/KDVcontactscraper/internal/pipeline"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/scraper"
)

var (
	rawURL      string
	extractDeep bool
)

// runExtractionPipeline は、1つのURLに取得ラダーと抽出を適用するメインロジックです。
func runExtractionPipeline(ctx context.Context, cfg *config.Config, targetURL string) (scraper.Page, error) {
	p, err := pipeline.Build(ctx, cfg)
	if err != nil {
		return scraper.Page{}, err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Batch.QueryTimeout)
	defer cancel()

	page, err := p.Scraper.ScrapeURL(ctx, targetURL)
	if err != nil {
		return page, fmt.Errorf("連絡先の抽出エラー (URL: %s): %w", targetURL, err)
	}
	return page, nil
}

// printPage は抽出結果と各戦略の試行結果を表示します。
func printPage(w io.Writer, page scraper.Page) {
	fmt.Fprintln(w, "--- 取得の試行 ---")
	for _, a := range page.Attempts {
		if a.OK() {
			fmt.Fprintf(w, "✅ %s\n", a.Method)
			continue
		}
		fmt.Fprintf(w, "❌ %s: %s(%d) %s\n", a.Method, a.Status, a.StatusCode, a.Err)
	}

	fmt.Fprintln(w, "--- 抽出された連絡先 ---")
	fmt.Fprintf(w, "emails:    %s\n", strings.Join(page.Contacts.Emails, ", "))
	fmt.Fprintf(w, "telefoons: %s\n", strings.Join(page.Contacts.Phones, ", "))
	fmt.Fprintf(w, "adressen:  %s\n", strings.Join(page.Contacts.Addresses, " | "))
	fmt.Fprintf(w, "managers:  %s\n", strings.Join(page.Contacts.Managers, " | "))
	methods := make([]string, 0, len(page.Sources))
	for method := range page.Sources {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		c := page.Sources[method]
		fmt.Fprintf(w, "[%s] メール %d 件, 電話 %d 件, 住所 %d 件, 責任者 %d 件\n",
			method, len(c.Emails), len(c.Phones), len(c.Addresses), len(c.Managers))
	}
	fmt.Fprintln(w, "-----------------------")
}

var extractCmd = &cobra.Command{
	Use:   "extract [URL]",
	Short: "指定されたURLから連絡先 (メール、電話、住所、責任者) を抽出します",
	Long:  `検索を行わず、指定されたURLまたは標準入力のURLに取得ラダーと抽出を適用します。`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("設定が初期化されていません。rootコマンドのPreRunを確認してください")
		}
		if cmd.Flags().Changed("deep") {
			cfg.Extract.Deep = extractDeep
		}

		// 1. 処理対象URLの決定 (引数 → フラグ → 標準入力)
		urlToProcess := rawURL
		if len(args) == 1 {
			urlToProcess = args[0]
		}
		if urlToProcess == "" {
			log.Println("URLが指定されていないため、標準入力からURLを読み込みます...")
			scanner := bufio.NewScanner(os.Stdin)
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("標準入力の読み取りエラー: %w", err)
				}
				return fmt.Errorf("URLが入力されていません")
			}
			urlToProcess = strings.TrimSpace(scanner.Text())
		}

		// 2. URLのスキーム補完とバリデーション
		processedURL, err := ensureScheme(urlToProcess)
		if err != nil {
			return fmt.Errorf("URLスキームの処理エラー: %w", err)
		}

		// 3. メインロジックの実行
		page, err := runExtractionPipeline(cmd.Context(), cfg, processedURL)
		printPage(cmd.OutOrStdout(), page)
		return err
	},
}

func init() {
	extractCmd.Flags().StringVarP(&rawURL, "url", "u", "", "抽出対象のURL")
	extractCmd.Flags().BoolVar(&extractDeep, "deep", false, "連絡先ページへのリンクを辿って抽出する")
}
