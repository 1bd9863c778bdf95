package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChangeKind は変更イベントの種別を表す。
type ChangeKind string

const (
	// ChangeKindNew は新規出品を表す。
	ChangeKindNew ChangeKind = "new"
	// ChangeKindPriceChange は価格変更を表す。
	ChangeKindPriceChange ChangeKind = "price_change"
	// ChangeKindEdited はタイトル・説明・在庫・カテゴリの編集を表す。
	ChangeKindEdited ChangeKind = "edited"
	// ChangeKindRemoved は出品削除を表す。
	ChangeKindRemoved ChangeKind = "removed"
)

// ChangeEvent は1回の差分検出で発見された変更を表す。
// 一度書き込まれたら不変であり、change_logへ追記専用で永続化される。
// ペイロードは種別ごとに異なる:
//   - new / removed: Listingスナップショット
//   - price_change: OldPrice / NewPrice / PercentDelta（OldPriceが0の場合はPriceUnbounded）
//   - edited: ChangedFields（変更されたフィールド名の集合）
type ChangeEvent struct {
	Seller     string
	ListingID  string
	Kind       ChangeKind
	DetectedAt time.Time

	// new / removed 用
	Listing *Listing

	// price_change 用
	OldPrice       decimal.Decimal
	NewPrice       decimal.Decimal
	PercentDelta   decimal.Decimal
	PriceUnbounded bool // 旧価格が0のため変化率が定義できない場合にtrue

	// edited 用
	ChangedFields []string
}

// PriceHistoryEntry は検出された価格変更1件の履歴を表す。
// 追記専用であり、更新も削除もされない。
type PriceHistoryEntry struct {
	ListingID    string
	OldPrice     decimal.Decimal
	NewPrice     decimal.Decimal
	PercentDelta decimal.Decimal
	ChangedAt    time.Time
}

// ChangeLogEntry はchange_logテーブルの1行を表す。
// 運用APIでの履歴照会に使用する。
type ChangeLogEntry struct {
	ID         string
	Seller     string
	ListingID  string
	Kind       ChangeKind
	DetectedAt time.Time
	Payload    []byte // 種別ごとのペイロードJSON
}
