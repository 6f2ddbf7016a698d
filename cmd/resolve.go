package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/j0rgje/KDVcontactscraper/internal/pipeline"
	"github.com/j0rgje/KDVcontactscraper/pkg/config"
	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// runResolve はクエリ1件のウェブサイトを検索して表示します。
func runResolve(ctx context.Context, cfg *config.Config, q types.Query, w io.Writer) (types.ResolvedSite, error) {
	p, err := pipeline.Build(ctx, cfg)
	if err != nil {
		return types.ResolvedSite{}, err
	}
	defer p.Close()

	fmt.Fprintf(w, "検索語: %s\n", p.Resolver.SearchQuery(q))
	site := p.Resolver.Resolve(ctx, q)
	if !site.Found() {
		fmt.Fprintln(w, "❌ Geen website gevonden")
		return site, nil
	}
	fmt.Fprintf(w, "✅ %s (%s)\n", site.URL, site.Method)
	return site, nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <locatienaam> <plaats>",
	Short: "施設名と所在地からウェブサイトを検索します",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("設定が初期化されていません。rootコマンドのPreRunを確認してください")
		}
		_, err := runResolve(cmd.Context(), cfg, types.Query{FacilityName: args[0], Locality: args[1]}, cmd.OutOrStdout())
		return err
	},
}
