package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// PostgresSellerRepo はPostgreSQLを使用した出品者リポジトリ。
type PostgresSellerRepo struct {
	db *sql.DB
}

// NewPostgresSellerRepo はPostgresSellerRepoを生成する。
func NewPostgresSellerRepo(db *sql.DB) *PostgresSellerRepo {
	return &PostgresSellerRepo{db: db}
}

// SyncFromConfig は設定ファイル上の出品者をUPSERTし、
// 設定から外れた出品者をソフト削除する。全体を1トランザクションで適用する。
func (r *PostgresSellerRepo) SyncFromConfig(ctx context.Context, sellers []model.Seller) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.PersistenceError{Op: "sync_sellers", Err: err}
	}
	defer tx.Rollback()

	now := time.Now()
	usernames := make([]string, 0, len(sellers))

	for _, s := range sellers {
		usernames = append(usernames, s.Username)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sellers (username, display_name, notify_new, notify_price,
			                      notify_edit, notify_delete, interval_minutes, status,
			                      created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			 ON CONFLICT (username) DO UPDATE SET
			     display_name = EXCLUDED.display_name,
			     notify_new = EXCLUDED.notify_new,
			     notify_price = EXCLUDED.notify_price,
			     notify_edit = EXCLUDED.notify_edit,
			     notify_delete = EXCLUDED.notify_delete,
			     interval_minutes = EXCLUDED.interval_minutes,
			     status = EXCLUDED.status,
			     updated_at = EXCLUDED.updated_at`,
			s.Username, s.DisplayName, s.NotifyNew, s.NotifyPrice,
			s.NotifyEdit, s.NotifyDelete, s.IntervalMinutes, model.SellerStatusActive,
			now,
		)
		if err != nil {
			return &model.PersistenceError{Op: "upsert_seller", Err: err}
		}
	}

	// 設定に存在しない出品者はポーリングのみ停止する。
	// 出品・履歴の行は削除しない（ソフト削除）。
	_, err = tx.ExecContext(ctx,
		`UPDATE sellers SET status = $1, updated_at = $2
		 WHERE username <> ALL($3) AND status <> $1`,
		model.SellerStatusDisabled, now, pq.Array(usernames),
	)
	if err != nil {
		return &model.PersistenceError{Op: "disable_sellers", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &model.PersistenceError{Op: "sync_sellers_commit", Err: err}
	}
	return nil
}

// ListActive は監視対象の出品者一覧をusername昇順で返す。
func (r *PostgresSellerRepo) ListActive(ctx context.Context) ([]model.Seller, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT username, display_name, notify_new, notify_price,
		        notify_edit, notify_delete, interval_minutes, status,
		        created_at, updated_at
		 FROM sellers WHERE status = $1 ORDER BY username`,
		model.SellerStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("出品者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sellers []model.Seller
	for rows.Next() {
		var s model.Seller
		if err := rows.Scan(
			&s.Username, &s.DisplayName, &s.NotifyNew, &s.NotifyPrice,
			&s.NotifyEdit, &s.NotifyDelete, &s.IntervalMinutes, &s.Status,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("出品者行の読み取りに失敗しました: %w", err)
		}
		sellers = append(sellers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("出品者一覧の走査に失敗しました: %w", err)
	}

	return sellers, nil
}

// FindByUsername は指定usernameの出品者を取得する。見つからない場合はnilを返す。
func (r *PostgresSellerRepo) FindByUsername(ctx context.Context, username string) (*model.Seller, error) {
	s := &model.Seller{}
	err := r.db.QueryRowContext(ctx,
		`SELECT username, display_name, notify_new, notify_price,
		        notify_edit, notify_delete, interval_minutes, status,
		        created_at, updated_at
		 FROM sellers WHERE username = $1`,
		username,
	).Scan(
		&s.Username, &s.DisplayName, &s.NotifyNew, &s.NotifyPrice,
		&s.NotifyEdit, &s.NotifyDelete, &s.IntervalMinutes, &s.Status,
		&s.CreatedAt, &s.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("出品者の取得に失敗しました: %w", err)
	}

	return s, nil
}
