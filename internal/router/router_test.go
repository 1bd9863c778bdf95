package router

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// mockSink はSinkのテスト用モック。
type mockSink struct {
	sendFunc func(ctx context.Context, displayName string, events []model.ChangeEvent) error
	calls    int
}

func (m *mockSink) Send(ctx context.Context, displayName string, events []model.ChangeEvent) error {
	m.calls++
	if m.sendFunc != nil {
		return m.sendFunc(ctx, displayName, events)
	}
	return nil
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func allOnSeller() model.Seller {
	return model.Seller{
		Username: "seller1", DisplayName: "Seller One",
		NotifyNew: true, NotifyPrice: true, NotifyEdit: true, NotifyDelete: true,
	}
}

func eventOfKind(kind model.ChangeKind) model.ChangeEvent {
	return model.ChangeEvent{Seller: "seller1", ListingID: "a", Kind: kind}
}

func TestRoute_ForwardsAllWhenAllFlagsEnabled(t *testing.T) {
	var got []model.ChangeEvent
	sink := &mockSink{
		sendFunc: func(ctx context.Context, name string, events []model.ChangeEvent) error {
			got = events
			return nil
		},
	}
	r := New(sink, newTestLogger())

	events := []model.ChangeEvent{
		eventOfKind(model.ChangeKindNew),
		eventOfKind(model.ChangeKindPriceChange),
		eventOfKind(model.ChangeKindEdited),
		eventOfKind(model.ChangeKindRemoved),
	}
	if err := r.Route(context.Background(), allOnSeller(), events); err != nil {
		t.Fatalf("Route error = %v", err)
	}

	if len(got) != 4 {
		t.Errorf("転送イベント数 = %d, want 4", len(got))
	}
	if sink.calls != 1 {
		t.Errorf("Sendは1サイクル1回であるべき, got %d", sink.calls)
	}
}

func TestRoute_DropsSuppressedKinds(t *testing.T) {
	var got []model.ChangeEvent
	sink := &mockSink{
		sendFunc: func(ctx context.Context, name string, events []model.ChangeEvent) error {
			got = events
			return nil
		},
	}
	r := New(sink, newTestLogger())

	seller := allOnSeller()
	seller.NotifyEdit = false
	seller.NotifyDelete = false

	events := []model.ChangeEvent{
		eventOfKind(model.ChangeKindNew),
		eventOfKind(model.ChangeKindEdited),
		eventOfKind(model.ChangeKindRemoved),
	}
	if err := r.Route(context.Background(), seller, events); err != nil {
		t.Fatalf("Route error = %v", err)
	}

	if len(got) != 1 || got[0].Kind != model.ChangeKindNew {
		t.Errorf("editedとremovedは抑制されるべき: %+v", got)
	}
}

func TestRoute_AllSuppressedSkipsSend(t *testing.T) {
	sink := &mockSink{}
	r := New(sink, newTestLogger())

	seller := allOnSeller()
	seller.NotifyPrice = false

	events := []model.ChangeEvent{eventOfKind(model.ChangeKindPriceChange)}
	if err := r.Route(context.Background(), seller, events); err != nil {
		t.Fatalf("Route error = %v", err)
	}

	if sink.calls != 0 {
		t.Errorf("全イベント抑制時はSendを呼ばないべき, got %d", sink.calls)
	}
}

func TestRoute_EmptyEventsSkipsSend(t *testing.T) {
	sink := &mockSink{}
	r := New(sink, newTestLogger())

	if err := r.Route(context.Background(), allOnSeller(), nil); err != nil {
		t.Fatalf("Route error = %v", err)
	}
	if sink.calls != 0 {
		t.Errorf("イベントなしではSendを呼ばないべき, got %d", sink.calls)
	}
}

func TestRoute_SendFailureReturnsSendError(t *testing.T) {
	sink := &mockSink{
		sendFunc: func(ctx context.Context, name string, events []model.ChangeEvent) error {
			return errors.New("telegram down")
		},
	}
	r := New(sink, newTestLogger())

	err := r.Route(context.Background(), allOnSeller(), []model.ChangeEvent{
		eventOfKind(model.ChangeKindNew),
	})
	if err == nil {
		t.Fatal("送信失敗はエラーとして返るべき")
	}

	var sendErr *model.SendError
	if !errors.As(err, &sendErr) {
		t.Errorf("SendErrorが返るべき: %T", err)
	}
	if sendErr.Seller != "seller1" {
		t.Errorf("SendError.Seller = %s", sendErr.Seller)
	}
}
