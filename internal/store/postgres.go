package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// ErrNotFound は指定した実行履歴が存在しないことを示します。
var ErrNotFound = errors.New("store: not found")

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	run_id      TEXT PRIMARY KEY,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS scrape_records (
	run_id      TEXT NOT NULL REFERENCES scrape_runs(run_id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	locatienaam TEXT NOT NULL,
	plaats      TEXT NOT NULL,
	website     TEXT NOT NULL DEFAULT '',
	resolution  TEXT NOT NULL,
	emails      TEXT[] NOT NULL DEFAULT '{}',
	phones      TEXT[] NOT NULL DEFAULT '{}',
	addresses   TEXT[] NOT NULL DEFAULT '{}',
	managers    TEXT[] NOT NULL DEFAULT '{}',
	sources     JSONB,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);`

// PostgresStore はバッチ実行の結果を PostgreSQL に保存します。
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore は接続プールを生成し、テーブルを作成します。
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("データベースに接続できませんでした: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema は必要なテーブルが無ければ作成します。
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("スキーマの作成に失敗しました: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// SaveRun は集計とレコードを1つのトランザクションで保存します。
func (s *PostgresStore) SaveRun(ctx context.Context, summary types.Summary, records []types.ExtractionRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO scrape_runs (run_id, total, succeeded, failed, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		summary.RunID, summary.Total, summary.Succeeded, summary.Failed, summary.StartedAt, summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("実行履歴の保存に失敗しました: %w", err)
	}

	if len(records) > 0 {
		batch := &pgx.Batch{}
		for i, rec := range records {
			sources, err := encodeSources(rec.Sources)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO scrape_records
				(run_id, position, locatienaam, plaats, website, resolution, emails, phones, addresses, managers, sources, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				summary.RunID, i, rec.Query.FacilityName, rec.Query.Locality, rec.URL, string(rec.Method),
				nonNil(rec.Emails), nonNil(rec.Phones), nonNil(rec.Addresses), nonNil(rec.Managers),
				sources, rec.Error,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("レコードの保存に失敗しました: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns は新しい順に最大 limit 件の実行履歴を返します。
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]types.Summary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT run_id, total, succeeded, failed, started_at, finished_at
		 FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.Summary
	for rows.Next() {
		var r types.Summary
		if err := rows.Scan(&r.RunID, &r.Total, &r.Succeeded, &r.Failed, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRecords は実行履歴のレコードを入力順に返します。
func (s *PostgresStore) GetRecords(ctx context.Context, runID string) ([]types.ExtractionRecord, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scrape_runs WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(ctx,
		`SELECT locatienaam, plaats, website, resolution, emails, phones, addresses, managers, sources, error
		 FROM scrape_records WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.ExtractionRecord
	for rows.Next() {
		var rec types.ExtractionRecord
		var method string
		var sources []byte
		if err := rows.Scan(
			&rec.Query.FacilityName, &rec.Query.Locality, &rec.URL, &method,
			&rec.Emails, &rec.Phones, &rec.Addresses, &rec.Managers, &sources, &rec.Error,
		); err != nil {
			return nil, err
		}
		rec.Method = types.ResolutionMethod(method)
		if rec.Sources, err = decodeSources(sources); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func encodeSources(sources map[string]types.Contacts) ([]byte, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("sources のエンコードに失敗しました: %w", err)
	}
	return data, nil
}

func decodeSources(data []byte) (map[string]types.Contacts, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var sources map[string]types.Contacts
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("sources のデコードに失敗しました: %w", err)
	}
	return sources, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
