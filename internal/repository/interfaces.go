// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// SellerRepository は出品者データの永続化インターフェース。
type SellerRepository interface {
	// SyncFromConfig は設定ファイル上の出品者をUPSERTし、
	// 設定から外れた出品者をソフト削除（status=disabled）する。
	// 出品やイベント履歴の行は参照可能なまま保持される。
	SyncFromConfig(ctx context.Context, sellers []model.Seller) error

	// ListActive は監視対象（status=active）の出品者一覧を返す。
	ListActive(ctx context.Context) ([]model.Seller, error)

	// FindByUsername は指定usernameの出品者を取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Seller, error)
}

// ListingRepository は出品スナップショットと変更履歴の永続化インターフェース。
// 永続化されるエンティティ（出品・価格履歴・変更ログ）の唯一の書き込み主体であり、
// サイクルの状態遷移はApplySnapshotの単一トランザクションを通じて直列化される。
type ListingRepository interface {
	// LoadActiveBySeller は指定出品者のstatus=activeな出品を返す。
	// 未観測の出品者（コールドスタート）の場合は空スライスを返す。
	LoadActiveBySeller(ctx context.Context, seller string) ([]model.Listing, error)

	// ApplySnapshot は1サイクル分の状態遷移をアトミックに適用する:
	//   (a) newListingsに含まれない出品をremovedに変更
	//   (b) newListingsの全出品をactiveとしてUPSERT
	//   (c) eventsをchange_logへ追記
	//   (d) price_changeイベントをprice_historyへ追記
	// いずれかが失敗した場合は全体をロールバックし、PersistenceErrorを返す。
	// 半端に適用されたスナップショットが次サイクルで実変更として
	// 差分検出されることを防ぐため、必ず全適用か無適用のどちらかになる。
	ApplySnapshot(ctx context.Context, seller string, newListings []model.Listing, events []model.ChangeEvent) error

	// FindByID は指定出品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, seller, listingID string) (*model.Listing, error)

	// PriceHistory は指定出品の価格変更履歴をchanged_at降順で返す。
	PriceHistory(ctx context.Context, listingID string, limit int) ([]model.PriceHistoryEntry, error)

	// RecentChanges は指定出品者の変更ログをdetected_at降順で返す。
	RecentChanges(ctx context.Context, seller string, limit int) ([]model.ChangeLogEntry, error)

	// GetStats は監視全体の集計値を返す。運用API向けの読み取り専用操作。
	GetStats(ctx context.Context) (model.Stats, error)
}
