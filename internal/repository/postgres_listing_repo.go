package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// PostgresListingRepo はPostgreSQLを使用した出品リポジトリ（状態ストア実装）。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

const listingColumns = `seller, listing_id, title, price, currency, stock,
	        description_hash, url, category, status, last_seen, created_at, updated_at`

// LoadActiveBySeller は指定出品者のstatus=activeな出品を返す。
// 未観測の出品者の場合は空スライスを返す（コールドスタート）。
func (r *PostgresListingRepo) LoadActiveBySeller(ctx context.Context, seller string) ([]model.Listing, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+`
		 FROM listings WHERE seller = $1 AND status = $2
		 ORDER BY listing_id`,
		seller, model.ListingStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("出品スナップショットの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("出品スナップショットの走査に失敗しました: %w", err)
	}

	return listings, nil
}

// ApplySnapshot は1サイクル分の状態遷移を単一トランザクションで適用する。
// トゥームストーン化・UPSERT・change_log追記・price_history追記のいずれかが
// 失敗した場合は全体をロールバックし、前回スナップショットを無傷のまま残す。
func (r *PostgresListingRepo) ApplySnapshot(ctx context.Context, seller string, newListings []model.Listing, events []model.ChangeEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.PersistenceError{Op: "apply_snapshot_begin", Err: err}
	}
	defer tx.Rollback()

	now := time.Now()

	// (a) 今回スナップショットに含まれない出品をremovedへ。
	// トゥームストーンは削除履歴の照会のため永続的に保持する。
	currentIDs := make([]string, 0, len(newListings))
	for _, l := range newListings {
		currentIDs = append(currentIDs, l.ListingID)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE listings SET status = $1, updated_at = $2
		 WHERE seller = $3 AND status = $4 AND listing_id <> ALL($5)`,
		model.ListingStatusRemoved, now, seller, model.ListingStatusActive, pq.Array(currentIDs),
	)
	if err != nil {
		return &model.PersistenceError{Op: "tombstone_listings", Err: err}
	}

	// (b) 今回スナップショットの全出品をactiveとしてUPSERT。
	for _, l := range newListings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO listings (seller, listing_id, title, price, currency, stock,
			                       description_hash, url, category, status, last_seen,
			                       created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
			 ON CONFLICT (seller, listing_id) DO UPDATE SET
			     title = EXCLUDED.title,
			     price = EXCLUDED.price,
			     currency = EXCLUDED.currency,
			     stock = EXCLUDED.stock,
			     description_hash = EXCLUDED.description_hash,
			     url = EXCLUDED.url,
			     category = EXCLUDED.category,
			     status = EXCLUDED.status,
			     last_seen = EXCLUDED.last_seen,
			     updated_at = EXCLUDED.updated_at`,
			seller, l.ListingID, l.Title, l.Price, l.Currency, l.Stock,
			l.DescriptionHash, l.URL, l.Category, model.ListingStatusActive, l.LastSeen,
			now,
		)
		if err != nil {
			return &model.PersistenceError{Op: "upsert_listing", Err: err}
		}
	}

	// (c) 変更イベントをchange_logへ追記。
	for _, ev := range events {
		payload, err := marshalEventPayload(ev)
		if err != nil {
			return &model.PersistenceError{Op: "marshal_event", Err: err}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO change_log (id, seller, listing_id, kind, detected_at, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New().String(), ev.Seller, ev.ListingID, ev.Kind, ev.DetectedAt, payload,
		)
		if err != nil {
			return &model.PersistenceError{Op: "append_change_log", Err: err}
		}
	}

	// (d) 価格変更イベントをprice_historyへ追記。
	for _, ev := range events {
		if ev.Kind != model.ChangeKindPriceChange {
			continue
		}
		var delta interface{}
		if !ev.PriceUnbounded {
			delta = ev.PercentDelta
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO price_history (seller, listing_id, old_price, new_price, percent_delta, changed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			ev.Seller, ev.ListingID, ev.OldPrice, ev.NewPrice, delta, ev.DetectedAt,
		)
		if err != nil {
			return &model.PersistenceError{Op: "append_price_history", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &model.PersistenceError{Op: "apply_snapshot_commit", Err: err}
	}
	return nil
}

// FindByID は指定出品を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, seller, listingID string) (*model.Listing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+`
		 FROM listings WHERE seller = $1 AND listing_id = $2`,
		seller, listingID,
	)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// PriceHistory は指定出品の価格変更履歴をchanged_at降順で返す。
func (r *PostgresListingRepo) PriceHistory(ctx context.Context, listingID string, limit int) ([]model.PriceHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT listing_id, old_price, new_price, percent_delta, changed_at
		 FROM price_history WHERE listing_id = $1
		 ORDER BY changed_at DESC LIMIT $2`,
		listingID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("価格履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.PriceHistoryEntry
	for rows.Next() {
		var e model.PriceHistoryEntry
		var delta decimal.NullDecimal
		if err := rows.Scan(&e.ListingID, &e.OldPrice, &e.NewPrice, &delta, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("価格履歴行の読み取りに失敗しました: %w", err)
		}
		if delta.Valid {
			e.PercentDelta = delta.Decimal
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("価格履歴の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// RecentChanges は指定出品者の変更ログをdetected_at降順で返す。
func (r *PostgresListingRepo) RecentChanges(ctx context.Context, seller string, limit int) ([]model.ChangeLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seller, listing_id, kind, detected_at, payload
		 FROM change_log WHERE seller = $1
		 ORDER BY detected_at DESC LIMIT $2`,
		seller, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("変更ログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.ChangeLogEntry
	for rows.Next() {
		var e model.ChangeLogEntry
		if err := rows.Scan(&e.ID, &e.Seller, &e.ListingID, &e.Kind, &e.DetectedAt, &e.Payload); err != nil {
			return nil, fmt.Errorf("変更ログ行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("変更ログの走査に失敗しました: %w", err)
	}

	return entries, nil
}

// GetStats は監視全体の集計値を返す。
func (r *PostgresListingRepo) GetStats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = $1),
		        COUNT(DISTINCT seller)
		 FROM listings`,
		model.ListingStatusActive,
	).Scan(&stats.TotalListings, &stats.ActiveListings, &stats.SellerCount)
	if err != nil {
		return model.Stats{}, fmt.Errorf("出品集計の取得に失敗しました: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_log
		 WHERE detected_at >= date_trunc('day', now())`,
	).Scan(&stats.ChangesToday)
	if err != nil {
		return model.Stats{}, fmt.Errorf("本日の変更件数の取得に失敗しました: %w", err)
	}

	return stats, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanListing は出品1行を読み取る。
func scanListing(row rowScanner) (model.Listing, error) {
	var l model.Listing
	err := row.Scan(
		&l.Seller, &l.ListingID, &l.Title, &l.Price, &l.Currency, &l.Stock,
		&l.DescriptionHash, &l.URL, &l.Category, &l.Status, &l.LastSeen,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Listing{}, err
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("出品行の読み取りに失敗しました: %w", err)
	}
	return l, nil
}

// listingPayload はnew/removedイベントのペイロードJSON。
type listingPayload struct {
	Title    string `json:"title"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Stock    int    `json:"stock"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

// pricePayload はprice_changeイベントのペイロードJSON。
type pricePayload struct {
	OldPrice     string `json:"old_price"`
	NewPrice     string `json:"new_price"`
	PercentDelta string `json:"percent_delta,omitempty"`
	Unbounded    bool   `json:"unbounded,omitempty"`
}

// editPayload はeditedイベントのペイロードJSON。
type editPayload struct {
	ChangedFields []string `json:"changed_fields"`
}

// marshalEventPayload は変更イベントの種別に応じたペイロードJSONを生成する。
func marshalEventPayload(ev model.ChangeEvent) ([]byte, error) {
	switch ev.Kind {
	case model.ChangeKindNew, model.ChangeKindRemoved:
		p := listingPayload{}
		if ev.Listing != nil {
			p = listingPayload{
				Title:    ev.Listing.Title,
				Price:    ev.Listing.Price.StringFixed(2),
				Currency: ev.Listing.Currency,
				Stock:    ev.Listing.Stock,
				URL:      ev.Listing.URL,
				Category: ev.Listing.Category,
			}
		}
		return json.Marshal(p)
	case model.ChangeKindPriceChange:
		p := pricePayload{
			OldPrice:  ev.OldPrice.StringFixed(2),
			NewPrice:  ev.NewPrice.StringFixed(2),
			Unbounded: ev.PriceUnbounded,
		}
		if !ev.PriceUnbounded {
			p.PercentDelta = ev.PercentDelta.String()
		}
		return json.Marshal(p)
	case model.ChangeKindEdited:
		return json.Marshal(editPayload{ChangedFields: ev.ChangedFields})
	default:
		return nil, fmt.Errorf("未知のイベント種別です: %s", ev.Kind)
	}
}
