// Package router は変更イベントの通知フィルタリングと転送を提供する。
package router

import (
	"context"
	"log/slog"

	"github.com/hitoshi/sellerwatch/internal/model"
	"github.com/hitoshi/sellerwatch/internal/notify"
)

// Router は出品者ごとの通知フィルタを適用し、
// 生き残ったイベントをNotification Sinkへ転送する。
//
// イベントは毎サイクル永続化済み状態との差分から新規に導出されるため、
// ApplySnapshotがコミット済みであれば同じ変更が二度ルーティングされることはない。
// コミット後の再実行は新しいベースラインとの差分となり、自然に空になる。
type Router struct {
	sink   notify.Sink
	logger *slog.Logger
}

// New はRouterを生成する。
func New(sink notify.Sink, logger *slog.Logger) *Router {
	return &Router{sink: sink, logger: logger}
}

// Route は出品者の通知フラグで抑制された種別を落とし、
// 残ったイベントを1サイクル1通のバッチとしてSinkへ送信する。
// 通知量を抑えるため、イベントごとではなく出品者ごとに1回の送信とする。
// 送信失敗はSendErrorとして返す。状態は既にコミット済みのためロールバックしない。
func (r *Router) Route(ctx context.Context, seller model.Seller, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	forwarded := make([]model.ChangeEvent, 0, len(events))
	suppressed := 0

	for _, ev := range events {
		if allowed(seller, ev.Kind) {
			forwarded = append(forwarded, ev)
		} else {
			suppressed++
		}
	}

	if suppressed > 0 {
		// 「変更なし」とは区別できるよう、抑制されたイベントは明示的に記録する。
		r.logger.Info("通知フラグにより抑制されたイベントがあります",
			slog.String("seller", seller.Username),
			slog.Int("suppressed", suppressed),
			slog.Int("forwarded", len(forwarded)),
		)
	}

	if len(forwarded) == 0 {
		return nil
	}

	if err := r.sink.Send(ctx, seller.DisplayName, forwarded); err != nil {
		return &model.SendError{Seller: seller.Username, Err: err}
	}

	r.logger.Info("通知を送信しました",
		slog.String("seller", seller.Username),
		slog.Int("event_count", len(forwarded)),
	)
	return nil
}

// allowed は出品者の通知フラグが当該種別の通知を許可しているかを返す。
func allowed(seller model.Seller, kind model.ChangeKind) bool {
	switch kind {
	case model.ChangeKindNew:
		return seller.NotifyNew
	case model.ChangeKindPriceChange:
		return seller.NotifyPrice
	case model.ChangeKindEdited:
		return seller.NotifyEdit
	case model.ChangeKindRemoved:
		return seller.NotifyDelete
	default:
		return false
	}
}
