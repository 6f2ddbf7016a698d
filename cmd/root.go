package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/logger"
)

const appName = "kdv-scraper"

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	ConfigFile string // --config 設定ファイル (YAML/JSON/TOML)
	LogLevel   string // --log-level ログレベル (debug, info, warn, error)
}

var Flags AppFlags
var appConfig *config.Config

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&Flags.ConfigFile, "config", "", "設定ファイルのパス (未指定の場合は既定値と KDV_* 環境変数)")
	rootCmd.PersistentFlags().StringVar(&Flags.LogLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	// .env は任意
	_ = godotenv.Load()

	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return err
	}
	if Flags.LogLevel != "" {
		cfg.Log.Level = Flags.LogLevel
	}

	if _, _, err := logger.Init(os.Stderr, cfg.Log.Level, clibase.Flags.Verbose); err != nil {
		return fmt.Errorf("ロガーの初期化に失敗しました: %w", err)
	}
	zap.L().Debug("設定を読み込みました",
		zap.String("config", Flags.ConfigFile),
		zap.Strings("strategies", cfg.Fetch.Strategies),
		zap.String("mode", cfg.Fetch.Mode),
		zap.Bool("serpapi", cfg.Search.SerpAPIKey != ""),
	)

	appConfig = cfg
	return nil
}

// GetConfig は、PreRun で読み込まれた設定を返します。
func GetConfig() *config.Config {
	return appConfig
}

// Execute は、clibase を使用してルートコマンドを実行します。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		scrapeCmd,
		extractCmd,
		resolveCmd,
		serveCmd,
	)
}
