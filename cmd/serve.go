package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/j0rgje/KDVcontactscraper/internal/metrics"
	"github.com/j0rgje/KDVcontactscraper/internal/pipeline"
	"github.com/j0rgje/KDVcontactscraper/internal/server"
	"github.com/j0rgje/KDVcontactscraper/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP API サーバーを起動します",
	Long:  `POST /api/scrape, POST /api/scrape/export, GET /api/runs, GET /api/health, GET /metrics を提供します。`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("設定が初期化されていません。rootコマンドのPreRunを確認してください")
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		logger := zap.L()
		ctx := cmd.Context()

		m := metrics.NewMetrics(prometheus.DefaultRegisterer)
		p, err := pipeline.Build(ctx, cfg, pipeline.WithMetrics(m))
		if err != nil {
			return err
		}
		defer p.Close()

		opts := []server.Option{
			server.WithLogger(logger),
			server.WithMetrics(m, prometheus.DefaultGatherer),
		}
		if pinger, ok := p.Cache.(server.Pinger); ok {
			opts = append(opts, server.WithHealthCheck("redis", pinger))
		}
		if cfg.Store.PostgresURL != "" {
			pgStore, err := store.NewPostgresStore(ctx, cfg.Store.PostgresURL)
			if err != nil {
				return err
			}
			defer pgStore.Close()
			opts = append(opts, server.WithStore(pgStore))
		}

		srv, err := server.NewServer(cfg.Server, p.Scraper, opts...)
		if err != nil {
			return err
		}

		// Graceful Shutdown
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTPサーバーを起動できませんでした: %w", err)
			}
			return nil
		case <-quit:
		}

		logger.Info("HTTPサーバーを停止します")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗しました: %w", err)
		}
		logger.Info("HTTPサーバーを停止しました")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレス (例: :8080)")
}
