// Package model はドメインモデルを定義する。
package model

import "time"

// Seller は監視対象のマーケットプレイス出品者を表す。
// 設定ファイルから作成され、設定リロード時のみ変更される。
type Seller struct {
	Username        string
	DisplayName     string
	NotifyNew       bool
	NotifyPrice     bool
	NotifyEdit      bool
	NotifyDelete    bool
	IntervalMinutes int // 0の場合はグローバル間隔を使用する
	Status          SellerStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SellerStatus は出品者の監視状態を表す。
type SellerStatus string

const (
	// SellerStatusActive は監視中の状態。
	SellerStatusActive SellerStatus = "active"
	// SellerStatusDisabled は設定から外された状態。
	// 履歴参照のため行は保持し、ポーリングのみ停止する（ソフト削除）。
	SellerStatusDisabled SellerStatus = "disabled"
)

// Interval はこの出品者のポーリング間隔を返す。
// 個別指定がない場合はdefaultIntervalを返す。
func (s *Seller) Interval(defaultInterval time.Duration) time.Duration {
	if s.IntervalMinutes > 0 {
		return time.Duration(s.IntervalMinutes) * time.Minute
	}
	return defaultInterval
}

// Stats は監視全体の集計値を表す。
// 運用向けの読み取り専用情報であり、エンジン自身のロジックでは使用しない。
type Stats struct {
	TotalListings  int `json:"total_listings"`
	ActiveListings int `json:"active_listings"`
	SellerCount    int `json:"sellers_count"`
	ChangesToday   int `json:"changes_today"`
}
