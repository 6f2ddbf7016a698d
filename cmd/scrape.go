package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/internal/pipeline"
	"github.com/j0rgje/KDVcontactscraper/internal/store"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/scraper"
	"github.com/j0rgje/KDVcontactscraper/pkg/tabular"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// scrapeOptions は scrape コマンドのフラグを保持します。
type scrapeOptions struct {
	input       string
	output      string
	format      string
	deep        bool
	combine     bool
	save        bool
	concurrency int
	delay       time.Duration
}

var scrapeOpts scrapeOptions

// progressPrinter はクエリごとの進捗を標準出力に表示する scraper.Observer です。
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) QueryStarted(index, total int, q types.Query) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Verwerk %d/%d: %s (%s)\n", index+1, total, q.FacilityName, q.Locality)
}

func (p *progressPrinter) QueryFinished(index, _ int, rec types.ExtractionRecord, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.Failed() {
		fmt.Fprintf(p.w, "❌ [%d] %s: %s (%s)\n", index+1, rec.Query.FacilityName, rec.Error, elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(p.w, "✅ [%d] %s: %s (メール %d 件, 電話 %d 件, %s)\n",
		index+1, rec.Query.FacilityName, rec.URL, len(rec.Emails), len(rec.Phones), elapsed.Round(time.Millisecond))
}

// applyScrapeFlags は明示的に指定されたフラグで設定を上書きします。
func applyScrapeFlags(cmd *cobra.Command, cfg *config.Config, opts scrapeOptions) {
	flags := cmd.Flags()
	if flags.Changed("deep") {
		cfg.Extract.Deep = opts.deep
	}
	if flags.Changed("combine") && opts.combine {
		cfg.Fetch.Mode = "combine"
	}
	if flags.Changed("concurrency") {
		cfg.Batch.Concurrency = opts.concurrency
	}
	if flags.Changed("delay") {
		cfg.Batch.Delay = opts.delay
	}
}

// outputPath は出力先を決定します。--output 未指定の場合は日時付きのファイル名をカレントディレクトリに作成します。
func outputPath(output, format string, now time.Time) (string, error) {
	if output != "" {
		if _, err := tabular.FormatFromPath(output); err != nil {
			return "", err
		}
		return output, nil
	}
	f, err := tabular.ParseFormat(format)
	if err != nil {
		return "", err
	}
	return tabular.DefaultFileName(now, f), nil
}

// runScrape は入力ファイルを読み込み、全クエリを処理して結果ファイルを書き出すメインロジックです。
func runScrape(ctx context.Context, cfg *config.Config, opts scrapeOptions, out io.Writer) (types.Summary, error) {
	// 1. 入力の検証 (ネットワークアクセスの前に行う)
	queries, err := tabular.ReadQueriesFile(opts.input)
	if err != nil {
		return types.Summary{}, err
	}
	path, err := outputPath(opts.output, opts.format, time.Now())
	if err != nil {
		return types.Summary{}, err
	}
	if err := cfg.Validate(); err != nil {
		return types.Summary{}, err
	}

	var runStore *store.PostgresStore
	if opts.save {
		if cfg.Store.PostgresURL == "" {
			return types.Summary{}, fmt.Errorf("--store には store.postgres_url (KDV_STORE_POSTGRES_URL) の設定が必要です")
		}
		runStore, err = store.NewPostgresStore(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return types.Summary{}, err
		}
		defer runStore.Close()
	}

	// 2. 依存性の初期化
	p, err := pipeline.Build(ctx, cfg, pipeline.WithObservers(&progressPrinter{w: out}))
	if err != nil {
		return types.Summary{}, err
	}
	defer p.Close()

	// 3. メインロジックの実行
	started := time.Now()
	zap.L().Info("バッチ処理を開始します",
		zap.Int("queries", len(queries)),
		zap.Int("concurrency", cfg.Batch.Concurrency),
		zap.Duration("delay", cfg.Batch.Delay),
		zap.Bool("deep", cfg.Extract.Deep),
	)
	records := p.Scraper.Run(ctx, queries)

	summary := scraper.Summarize(records)
	summary.RunID = uuid.New().String()
	summary.StartedAt = started
	summary.FinishedAt = time.Now()

	// 4. 結果の出力
	if err := tabular.WriteFile(path, records); err != nil {
		return summary, err
	}
	printSummary(out, records, summary, path)

	if runStore != nil {
		if err := runStore.SaveRun(ctx, summary, records); err != nil {
			return summary, fmt.Errorf("実行履歴の保存に失敗しました: %w", err)
		}
		fmt.Fprintf(out, "実行履歴を保存しました (run_id: %s)\n", summary.RunID)
	}
	return summary, nil
}

// printSummary は集計と、失敗したクエリの一覧を表示します。
func printSummary(w io.Writer, records []types.ExtractionRecord, summary types.Summary, path string) {
	fmt.Fprintln(w, "--- スクレイピング結果 ---")
	fmt.Fprintf(w, "完了: 成功 %d 件, 失敗 %d 件 (所要時間: %s)\n",
		summary.Succeeded, summary.Failed, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	fmt.Fprintf(w, "出力ファイル: %s\n", path)

	if summary.Failed == 0 {
		return
	}
	fmt.Fprintln(w, "--- 失敗したクエリ ---")
	for _, rec := range records {
		if rec.Failed() {
			fmt.Fprintf(w, "%s (%s): %s\n", rec.Query.FacilityName, rec.Query.Locality, rec.Error)
		}
	}
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "入力ファイル (xlsx/csv) の施設ごとに連絡先を収集し、結果ファイルを書き出します",
	Long: `入力ファイルの列 'locatienaam' と 'plaats' から施設のウェブサイトを検索し、
メールアドレス、電話番号、住所、責任者を抽出して xlsx / csv / pdf に書き出します。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("設定が初期化されていません。rootコマンドのPreRunを確認してください")
		}
		applyScrapeFlags(cmd, cfg, scrapeOpts)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err := runScrape(ctx, cfg, scrapeOpts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeOpts.input, "input", "i", "", "入力ファイル (.xlsx または .csv)")
	scrapeCmd.Flags().StringVarP(&scrapeOpts.output, "output", "o", "",
		"出力ファイル (拡張子で形式を判定, 未指定の場合は locatiemanager-gegevens-<日時>.<形式>)")
	scrapeCmd.Flags().StringVarP(&scrapeOpts.format, "format", "f", string(tabular.FormatXLSX), "--output 未指定時の出力形式 (xlsx, csv, pdf)")
	scrapeCmd.Flags().BoolVar(&scrapeOpts.deep, "deep", false, "連絡先ページへのリンクを辿って抽出する")
	scrapeCmd.Flags().BoolVar(&scrapeOpts.combine, "combine", false, "全ての取得戦略の結果を統合する")
	scrapeCmd.Flags().BoolVar(&scrapeOpts.save, "store", false, "実行履歴を PostgreSQL に保存する")
	scrapeCmd.Flags().IntVarP(&scrapeOpts.concurrency, "concurrency", "c", scraper.DefaultConcurrency, "最大並列実行数")
	scrapeCmd.Flags().DurationVar(&scrapeOpts.delay, "delay", scraper.DefaultDelay, "クエリ間の待機時間")
	_ = scrapeCmd.MarkFlagRequired("input")
}
