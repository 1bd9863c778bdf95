// Package fetcher はマーケットプレイスからの出品カタログ取得を提供する。
package fetcher

import (
	"context"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// CatalogFetcher は出品者カタログ取得のインターフェース。
// 返されるRawListingは正規化済みであり、スクレイピング固有の
// パースやページネーションは実装側の責務である。
type CatalogFetcher interface {
	// Fetch は指定出品者の全出品を取得する。
	// 失敗時は再試行可否を示すFetchErrorを返す。
	Fetch(ctx context.Context, username string) ([]model.RawListing, error)
}
