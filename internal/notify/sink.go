// Package notify は変更イベントの通知送信を提供する。
package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// Sink は通知送信先のインターフェース。
// メッセージの整形と配送方法は実装側の責務であり、
// エンジンは成功の応答かエラーのみを要求する。
type Sink interface {
	// Send は1サイクル分のイベントバッチを1通の通知として送信する。
	Send(ctx context.Context, displayName string, events []model.ChangeEvent) error
}

// NopSink は通知を送信しないSink実装。
// Telegramの認証情報が未設定の場合に使用し、送信内容をログにのみ残す。
type NopSink struct {
	logger *slog.Logger
}

// NewNopSink はNopSinkを生成する。
func NewNopSink(logger *slog.Logger) *NopSink {
	return &NopSink{logger: logger}
}

// Send は送信せず、イベント件数のみをログに記録する。
func (s *NopSink) Send(ctx context.Context, displayName string, events []model.ChangeEvent) error {
	s.logger.Info("通知は無効化されています（送信スキップ）",
		slog.String("seller", displayName),
		slog.Int("event_count", len(events)),
	)
	return nil
}
