package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StockUnlimited は在庫数が無制限であることを示す番兵値。
const StockUnlimited = -1

// Listing はマーケットプレイス上の1出品を表す。
// (seller, listing_id) ごとにstatus=activeの行は常に1行のみ存在する。
// 削除された出品はstatus=removedのまま保持される（トゥームストーン）。
type Listing struct {
	ListingID       string
	Seller          string
	Title           string
	Price           decimal.Decimal
	Currency        string
	Stock           int // 0以上、またはStockUnlimited
	DescriptionHash string
	URL             string
	Category        string
	Status          ListingStatus
	LastSeen        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ListingStatus は出品の状態を表す。
type ListingStatus string

const (
	// ListingStatusActive は出品中の状態。
	ListingStatusActive ListingStatus = "active"
	// ListingStatusRemoved は削除済み（トゥームストーン）の状態。
	ListingStatusRemoved ListingStatus = "removed"
)

// RawListing はCatalog Fetcherが返す正規化済みの出品データを表す。
// スクレイピング固有のパースはFetcher側の責務であり、
// エンジンはこのデータを正規化済みフィードとして扱う。
type RawListing struct {
	ListingID   string          `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Stock       int             `json:"quantity"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
	Category    string          `json:"category"`
}

// NewListingFromRaw はRawListingをListingに正規化する。
// 説明文は安価な編集検知のためSHA-256ハッシュのみ保持する。
func NewListingFromRaw(seller string, raw RawListing, now time.Time) Listing {
	return Listing{
		ListingID:       raw.ListingID,
		Seller:          seller,
		Title:           raw.Title,
		Price:           raw.Price,
		Currency:        raw.Currency,
		Stock:           raw.Stock,
		DescriptionHash: HashDescription(raw.Description),
		URL:             raw.URL,
		Category:        raw.Category,
		Status:          ListingStatusActive,
		LastSeen:        now,
	}
}

// HashDescription は説明文のSHA-256ハッシュを計算する。
// 空文字列の場合は空文字列を返す。
func HashDescription(description string) string {
	if description == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(description))
	return fmt.Sprintf("%x", hash)
}
