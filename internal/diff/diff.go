// Package diff はカタログスナップショットの差分検出エンジンを提供する。
// 純粋関数のみで構成され、I/Oや副作用を一切持たない。
package diff

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// Diff は前回スナップショットと今回スナップショットを比較し、
// 変更イベントの順序付きリストを返す。決定的であり、同じ入力には常に同じ出力を返す。
//
// イベントは new → price_change → edited → removed の順で、
// 各グループ内はlisting_id昇順で並ぶ。
//
// previousが空（初回観測）の場合はベースラインの初期化とみなし、
// イベントを一切生成しない。コールドスタート時に「新規N件」の通知が
// 氾濫するのを防ぐためである。
func Diff(seller string, previous, current []model.Listing, now time.Time) []model.ChangeEvent {
	if len(previous) == 0 {
		return nil
	}

	prevByID := indexByListingID(previous)
	currByID := indexByListingID(current)

	var newEvents, priceEvents, editEvents, removedEvents []model.ChangeEvent

	// currentにのみ存在するID → new
	for id, listing := range currByID {
		if _, ok := prevByID[id]; ok {
			continue
		}
		l := listing
		newEvents = append(newEvents, model.ChangeEvent{
			Seller:     seller,
			ListingID:  id,
			Kind:       model.ChangeKindNew,
			DetectedAt: now,
			Listing:    &l,
		})
	}

	// previousにのみ存在するID → removed（最後に観測された出品を添付）
	for id, listing := range prevByID {
		if _, ok := currByID[id]; ok {
			continue
		}
		l := listing
		removedEvents = append(removedEvents, model.ChangeEvent{
			Seller:     seller,
			ListingID:  id,
			Kind:       model.ChangeKindRemoved,
			DetectedAt: now,
			Listing:    &l,
		})
	}

	// 両方に存在するID → フィールド単位で比較
	for id, curr := range currByID {
		prev, ok := prevByID[id]
		if !ok {
			continue
		}

		if !PriceEqual(prev.Price, curr.Price) {
			ev := model.ChangeEvent{
				Seller:     seller,
				ListingID:  id,
				Kind:       model.ChangeKindPriceChange,
				DetectedAt: now,
				OldPrice:   prev.Price,
				NewPrice:   curr.Price,
			}
			if prev.Price.IsZero() {
				// 旧価格が0の場合、変化率は定義できない。クラッシュせず
				// 「新規価格設定」として報告する。
				ev.PriceUnbounded = true
			} else {
				ev.PercentDelta = curr.Price.Sub(prev.Price).Div(prev.Price)
			}
			priceEvents = append(priceEvents, ev)
		}

		// 価格以外の編集検知。複数フィールドが変わっていても
		// editedイベントは出品1件につき1サイクル1回のみ。
		// 価格変更と編集は排他ではなく、両方のイベントが発生しうる。
		if fields := changedFields(prev, curr); len(fields) > 0 {
			editEvents = append(editEvents, model.ChangeEvent{
				Seller:        seller,
				ListingID:     id,
				Kind:          model.ChangeKindEdited,
				DetectedAt:    now,
				ChangedFields: fields,
			})
		}
	}

	sortByListingID(newEvents)
	sortByListingID(priceEvents)
	sortByListingID(editEvents)
	sortByListingID(removedEvents)

	events := make([]model.ChangeEvent, 0, len(newEvents)+len(priceEvents)+len(editEvents)+len(removedEvents))
	events = append(events, newEvents...)
	events = append(events, priceEvents...)
	events = append(events, editEvents...)
	events = append(events, removedEvents...)

	if len(events) == 0 {
		return nil
	}
	return events
}

// PriceEqual は2つの価格が通貨丸め精度（小数第2位）で等しいかを判定する。
// 価格は量子化された通貨値であるため、浮動小数点の許容誤差ではなく
// 小数2桁に丸めた上での厳密な比較を行う。
func PriceEqual(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}

// changedFields は編集検知の対象フィールド
// （title / description / stock / category）を比較し、
// 変更されたフィールド名を固定の順序で返す。
func changedFields(prev, curr model.Listing) []string {
	var fields []string
	if prev.Title != curr.Title {
		fields = append(fields, "title")
	}
	if prev.DescriptionHash != curr.DescriptionHash {
		fields = append(fields, "description")
	}
	if prev.Stock != curr.Stock {
		fields = append(fields, "stock")
	}
	if prev.Category != curr.Category {
		fields = append(fields, "category")
	}
	return fields
}

// indexByListingID は出品リストをlisting_idで引けるマップに変換する。
func indexByListingID(listings []model.Listing) map[string]model.Listing {
	m := make(map[string]model.Listing, len(listings))
	for _, l := range listings {
		m[l.ListingID] = l
	}
	return m
}

// sortByListingID はイベント列をlisting_id昇順で安定的に並べ替える。
func sortByListingID(events []model.ChangeEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].ListingID < events[j].ListingID
	})
}
