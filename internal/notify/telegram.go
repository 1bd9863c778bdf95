package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// hundred は変化率を百分率表示へ変換するための係数。
var hundred = decimal.NewFromInt(100)

const (
	// telegramAPIBase はTelegram Bot APIのベースURL。
	telegramAPIBase = "https://api.telegram.org"

	// セクションごとの表示上限。通知量を抑えるため超過分は件数のみ示す。
	maxNewInMessage     = 5
	maxPriceInMessage   = 5
	maxEditInMessage    = 3
	maxRemovedInMessage = 3
)

// TelegramSink はTelegram Bot APIへ通知を送信するSink実装。
// 1サイクル分のイベントを1通のメッセージにまとめて送信する。
type TelegramSink struct {
	client   *http.Client
	baseURL  string
	botToken string
	chatID   string
}

// NewTelegramSink はTelegramSinkを生成する。
func NewTelegramSink(botToken, chatID string, timeout time.Duration) *TelegramSink {
	return &TelegramSink{
		client:   &http.Client{Timeout: timeout},
		baseURL:  telegramAPIBase,
		botToken: botToken,
		chatID:   chatID,
	}
}

// Send はイベントバッチを整形してsendMessage APIで送信する。
func (s *TelegramSink) Send(ctx context.Context, displayName string, events []model.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	text := FormatMessage(displayName, events, time.Now())

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	form := url.Values{}
	form.Set("chat_id", s.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("通知リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("通知リクエストの送信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("Telegram APIがエラーを返しました (HTTP %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// FormatMessage はイベントバッチを通知メッセージ1通に整形する。
// 種別ごとのセクションに分け、各セクションは上限件数で打ち切る。
func FormatMessage(displayName string, events []model.ChangeEvent, now time.Time) string {
	var newEvents, priceEvents, editEvents, removedEvents []model.ChangeEvent
	for _, ev := range events {
		switch ev.Kind {
		case model.ChangeKindNew:
			newEvents = append(newEvents, ev)
		case model.ChangeKindPriceChange:
			priceEvents = append(priceEvents, ev)
		case model.ChangeKindEdited:
			editEvents = append(editEvents, ev)
		case model.ChangeKindRemoved:
			removedEvents = append(removedEvents, ev)
		}
	}

	var b strings.Builder
	b.WriteString("🔔 SELLER ACTIVITY DETECTED\n\n")
	fmt.Fprintf(&b, "👤 Seller: %s\n", displayName)
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n\n")

	if len(newEvents) > 0 {
		fmt.Fprintf(&b, "📦 NEW LISTINGS (%d)\n", len(newEvents))
		for i, ev := range newEvents {
			if i >= maxNewInMessage {
				fmt.Fprintf(&b, "\n... and %d more\n", len(newEvents)-maxNewInMessage)
				break
			}
			l := ev.Listing
			fmt.Fprintf(&b, "\n• %s\n", l.Title)
			fmt.Fprintf(&b, "  💰 %s %s\n", l.Price.StringFixed(2), l.Currency)
			fmt.Fprintf(&b, "  📊 Stock: %s\n", formatStock(l.Stock))
			fmt.Fprintf(&b, "  🔗 %s\n", l.URL)
		}
		b.WriteString("\n")
	}

	if len(priceEvents) > 0 {
		fmt.Fprintf(&b, "💰 PRICE CHANGES (%d)\n", len(priceEvents))
		for i, ev := range priceEvents {
			if i >= maxPriceInMessage {
				fmt.Fprintf(&b, "\n... and %d more\n", len(priceEvents)-maxPriceInMessage)
				break
			}
			fmt.Fprintf(&b, "\n• %s\n", ev.ListingID)
			fmt.Fprintf(&b, "  Old: %s\n", ev.OldPrice.StringFixed(2))
			fmt.Fprintf(&b, "  New: %s\n", ev.NewPrice.StringFixed(2))
			if ev.PriceUnbounded {
				b.WriteString("  Change: new pricing\n")
			} else {
				delta := ev.PercentDelta.Mul(hundred)
				emoji := "📈"
				if delta.IsNegative() {
					emoji = "📉"
				}
				fmt.Fprintf(&b, "  Change: %s%% %s\n", formatSigned(delta), emoji)
			}
		}
		b.WriteString("\n")
	}

	if len(editEvents) > 0 {
		fmt.Fprintf(&b, "✏️ LISTING EDITS (%d)\n", len(editEvents))
		for i, ev := range editEvents {
			if i >= maxEditInMessage {
				fmt.Fprintf(&b, "\n... and %d more\n", len(editEvents)-maxEditInMessage)
				break
			}
			fmt.Fprintf(&b, "\n• %s\n", ev.ListingID)
			fmt.Fprintf(&b, "  Changed: %s\n", strings.Join(ev.ChangedFields, ", "))
		}
		b.WriteString("\n")
	}

	if len(removedEvents) > 0 {
		fmt.Fprintf(&b, "🗑 REMOVED LISTINGS (%d)\n", len(removedEvents))
		for i, ev := range removedEvents {
			if i >= maxRemovedInMessage {
				fmt.Fprintf(&b, "\n... and %d more\n", len(removedEvents)-maxRemovedInMessage)
				break
			}
			l := ev.Listing
			fmt.Fprintf(&b, "\n• %s\n", l.Title)
			fmt.Fprintf(&b, "  Last price: %s %s\n", l.Price.StringFixed(2), l.Currency)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "⏰ %s\n", now.Format("2006-01-02 15:04:05"))
	return b.String()
}

// formatStock は在庫数を表示用文字列に変換する。
func formatStock(stock int) string {
	if stock == model.StockUnlimited {
		return "unlimited"
	}
	return strconv.Itoa(stock)
}

// formatSigned は正値に+符号を付けた文字列を返す。
func formatSigned(d decimal.Decimal) string {
	s := d.StringFixed(1)
	if !strings.HasPrefix(s, "-") {
		return "+" + s
	}
	return s
}
