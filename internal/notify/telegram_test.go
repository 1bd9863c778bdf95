package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/sellerwatch/internal/model"
)

var msgNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newListingEvent(id, title, price string, stock int) model.ChangeEvent {
	return model.ChangeEvent{
		Seller: "seller1", ListingID: id, Kind: model.ChangeKindNew, DetectedAt: msgNow,
		Listing: &model.Listing{
			ListingID: id, Title: title,
			Price:    decimal.RequireFromString(price),
			Currency: "IDR", Stock: stock,
			URL: "https://market.example/listings/" + id,
		},
	}
}

func TestFormatMessage_Sections(t *testing.T) {
	events := []model.ChangeEvent{
		newListingEvent("n1", "New Item", "15000", 999),
		{
			Seller: "seller1", ListingID: "p1", Kind: model.ChangeKindPriceChange,
			OldPrice:     decimal.RequireFromString("100.00"),
			NewPrice:     decimal.RequireFromString("90.00"),
			PercentDelta: decimal.RequireFromString("-0.1"),
		},
		{
			Seller: "seller1", ListingID: "e1", Kind: model.ChangeKindEdited,
			ChangedFields: []string{"title", "stock"},
		},
		{
			Seller: "seller1", ListingID: "r1", Kind: model.ChangeKindRemoved,
			Listing: &model.Listing{ListingID: "r1", Title: "Gone Item",
				Price: decimal.RequireFromString("50.00"), Currency: "IDR"},
		},
	}

	msg := FormatMessage("Competitor One", events, msgNow)

	for _, want := range []string{
		"Seller: Competitor One",
		"NEW LISTINGS (1)",
		"New Item",
		"15000.00 IDR",
		"PRICE CHANGES (1)",
		"Old: 100.00",
		"New: 90.00",
		"-10.0%",
		"LISTING EDITS (1)",
		"Changed: title, stock",
		"REMOVED LISTINGS (1)",
		"Last price: 50.00 IDR",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("メッセージに %q が含まれるべき:\n%s", want, msg)
		}
	}
}

func TestFormatMessage_UnlimitedStock(t *testing.T) {
	msg := FormatMessage("S", []model.ChangeEvent{
		newListingEvent("n1", "Item", "10.00", model.StockUnlimited),
	}, msgNow)

	if !strings.Contains(msg, "Stock: unlimited") {
		t.Errorf("無制限在庫は unlimited と表示されるべき:\n%s", msg)
	}
}

func TestFormatMessage_UnboundedPriceDelta(t *testing.T) {
	msg := FormatMessage("S", []model.ChangeEvent{
		{
			ListingID: "p1", Kind: model.ChangeKindPriceChange,
			OldPrice: decimal.Zero, NewPrice: decimal.RequireFromString("10.00"),
			PriceUnbounded: true,
		},
	}, msgNow)

	if !strings.Contains(msg, "new pricing") {
		t.Errorf("旧価格0は new pricing と表示されるべき:\n%s", msg)
	}
}

func TestFormatMessage_SectionOverflow(t *testing.T) {
	var events []model.ChangeEvent
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		events = append(events, newListingEvent(id, "Item "+id, "10.00", 1))
	}

	msg := FormatMessage("S", events, msgNow)

	if !strings.Contains(msg, "NEW LISTINGS (7)") {
		t.Errorf("セクション見出しは総数を示すべき:\n%s", msg)
	}
	if !strings.Contains(msg, "... and 2 more") {
		t.Errorf("上限超過分は件数のみ表示すべき:\n%s", msg)
	}
	if strings.Contains(msg, "Item g") {
		t.Errorf("上限を超えた出品は表示されないべき:\n%s", msg)
	}
}

func TestTelegramSink_Send(t *testing.T) {
	var gotPath string
	var gotChatID, gotText string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotChatID = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewTelegramSink("test-token", "12345", 5*time.Second)
	sink.baseURL = server.URL

	events := []model.ChangeEvent{newListingEvent("n1", "Item", "10.00", 1)}
	if err := sink.Send(context.Background(), "Seller", events); err != nil {
		t.Fatalf("Send error = %v", err)
	}

	if gotPath != "/bottest-token/sendMessage" {
		t.Errorf("path = %s", gotPath)
	}
	if gotChatID != "12345" {
		t.Errorf("chat_id = %s", gotChatID)
	}
	if !strings.Contains(gotText, "Item") {
		t.Errorf("text にイベント内容が含まれるべき: %s", gotText)
	}
}

func TestTelegramSink_SendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer server.Close()

	sink := NewTelegramSink("t", "c", 5*time.Second)
	sink.baseURL = server.URL

	err := sink.Send(context.Background(), "Seller", []model.ChangeEvent{
		newListingEvent("n1", "Item", "10.00", 1),
	})
	if err == nil {
		t.Fatal("APIエラーはSendのエラーとして返るべき")
	}
}

func TestTelegramSink_EmptyBatchIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	sink := NewTelegramSink("t", "c", 5*time.Second)
	sink.baseURL = server.URL

	if err := sink.Send(context.Background(), "Seller", nil); err != nil {
		t.Fatalf("Send error = %v", err)
	}
	if called {
		t.Error("空バッチでAPIを呼び出してはならない")
	}
}
