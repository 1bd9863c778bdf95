package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// mockPinger はPingerのテスト用モック。
type mockPinger struct {
	pingFunc func(ctx context.Context) error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

// mockSellerRepo はSellerRepositoryのテスト用モック。
type mockSellerRepo struct {
	listActiveFunc     func(ctx context.Context) ([]model.Seller, error)
	findByUsernameFunc func(ctx context.Context, username string) (*model.Seller, error)
}

func (m *mockSellerRepo) SyncFromConfig(ctx context.Context, sellers []model.Seller) error {
	return nil
}

func (m *mockSellerRepo) ListActive(ctx context.Context) ([]model.Seller, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockSellerRepo) FindByUsername(ctx context.Context, username string) (*model.Seller, error) {
	if m.findByUsernameFunc != nil {
		return m.findByUsernameFunc(ctx, username)
	}
	return nil, nil
}

// mockListingRepo はListingRepositoryのテスト用モック。
type mockListingRepo struct {
	statsFunc         func(ctx context.Context) (model.Stats, error)
	recentChangesFunc func(ctx context.Context, seller string, limit int) ([]model.ChangeLogEntry, error)
	priceHistoryFunc  func(ctx context.Context, listingID string, limit int) ([]model.PriceHistoryEntry, error)
}

func (m *mockListingRepo) LoadActiveBySeller(ctx context.Context, seller string) ([]model.Listing, error) {
	return nil, nil
}

func (m *mockListingRepo) ApplySnapshot(ctx context.Context, seller string, listings []model.Listing, events []model.ChangeEvent) error {
	return nil
}

func (m *mockListingRepo) FindByID(ctx context.Context, seller, listingID string) (*model.Listing, error) {
	return nil, nil
}

func (m *mockListingRepo) PriceHistory(ctx context.Context, listingID string, limit int) ([]model.PriceHistoryEntry, error) {
	if m.priceHistoryFunc != nil {
		return m.priceHistoryFunc(ctx, listingID, limit)
	}
	return nil, nil
}

func (m *mockListingRepo) RecentChanges(ctx context.Context, seller string, limit int) ([]model.ChangeLogEntry, error) {
	if m.recentChangesFunc != nil {
		return m.recentChangesFunc(ctx, seller, limit)
	}
	return nil, nil
}

func (m *mockListingRepo) GetStats(ctx context.Context) (model.Stats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return model.Stats{}, nil
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func newTestRouter(db Pinger, sellerRepo *mockSellerRepo, listingRepo *mockListingRepo) http.Handler {
	return NewRouter(&RouterDeps{
		DB:          db,
		SellerRepo:  sellerRepo,
		ListingRepo: listingRepo,
		Logger:      newTestLogger(),
	})
}

func TestHealth_OK(t *testing.T) {
	r := newTestRouter(&mockPinger{}, &mockSellerRepo{}, &mockListingRepo{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}

func TestHealth_DBUnavailable(t *testing.T) {
	db := &mockPinger{
		pingFunc: func(ctx context.Context) error { return errors.New("connection refused") },
	}
	r := newTestRouter(db, &mockSellerRepo{}, &mockListingRepo{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	listingRepo := &mockListingRepo{
		statsFunc: func(ctx context.Context) (model.Stats, error) {
			return model.Stats{TotalListings: 120, ActiveListings: 100, SellerCount: 3, ChangesToday: 7}, nil
		},
	}
	r := newTestRouter(&mockPinger{}, &mockSellerRepo{}, listingRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats model.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if stats.TotalListings != 120 || stats.ActiveListings != 100 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestListSellers(t *testing.T) {
	sellerRepo := &mockSellerRepo{
		listActiveFunc: func(ctx context.Context) ([]model.Seller, error) {
			return []model.Seller{
				{Username: "seller1", DisplayName: "Seller One", NotifyNew: true, NotifyPrice: true},
				{Username: "seller2", DisplayName: "Seller Two", IntervalMinutes: 30},
			}, nil
		},
	}
	r := newTestRouter(&mockPinger{}, sellerRepo, &mockListingRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/sellers", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp []sellerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("出品者数 = %d, want 2", len(resp))
	}
	if resp[0].Username != "seller1" || !resp[0].NotifyNew {
		t.Errorf("resp[0] = %+v", resp[0])
	}
	if resp[1].IntervalMinutes != 30 {
		t.Errorf("resp[1].IntervalMinutes = %d, want 30", resp[1].IntervalMinutes)
	}
}

func TestListChanges(t *testing.T) {
	sellerRepo := &mockSellerRepo{
		findByUsernameFunc: func(ctx context.Context, username string) (*model.Seller, error) {
			return &model.Seller{Username: username}, nil
		},
	}
	var gotLimit int
	listingRepo := &mockListingRepo{
		recentChangesFunc: func(ctx context.Context, seller string, limit int) ([]model.ChangeLogEntry, error) {
			gotLimit = limit
			return []model.ChangeLogEntry{
				{
					ID: "e1", Seller: seller, ListingID: "a", Kind: model.ChangeKindPriceChange,
					DetectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
					Payload:    []byte(`{"old_price":"100.00","new_price":"95.00"}`),
				},
			}, nil
		},
	}
	r := newTestRouter(&mockPinger{}, sellerRepo, listingRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/sellers/seller1/changes?limit=10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}

	var resp []changeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 1 || resp[0].Kind != "price_change" || resp[0].ListingID != "a" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListChanges_UnknownSellerReturns404(t *testing.T) {
	r := newTestRouter(&mockPinger{}, &mockSellerRepo{}, &mockListingRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/sellers/ghost/changes", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListPrices(t *testing.T) {
	listingRepo := &mockListingRepo{
		priceHistoryFunc: func(ctx context.Context, listingID string, limit int) ([]model.PriceHistoryEntry, error) {
			return []model.PriceHistoryEntry{
				{
					ListingID:    listingID,
					OldPrice:     decimal.RequireFromString("100"),
					NewPrice:     decimal.RequireFromString("95"),
					PercentDelta: decimal.RequireFromString("-0.05"),
					ChangedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				},
			}, nil
		},
	}
	r := newTestRouter(&mockPinger{}, &mockSellerRepo{}, listingRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/listings/a/prices", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp []priceHistoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("履歴件数 = %d, want 1", len(resp))
	}
	if resp[0].PercentDelta == nil || !resp[0].PercentDelta.Equal(decimal.RequireFromString("-0.05")) {
		t.Errorf("PercentDelta = %v, want -0.05", resp[0].PercentDelta)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"未指定はデフォルト", "", defaultHistoryLimit},
		{"指定値を使用", "limit=10", 10},
		{"不正値はデフォルト", "limit=abc", defaultHistoryLimit},
		{"0以下はデフォルト", "limit=-1", defaultHistoryLimit},
		{"上限超過は上限に丸める", "limit=9999", maxHistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			if got := parseLimit(req); got != tt.want {
				t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
			}
		})
	}
}
