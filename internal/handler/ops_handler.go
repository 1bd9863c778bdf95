// Package handler は運用向けの読み取り専用HTTP APIを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/sellerwatch/internal/repository"
)

const (
	// defaultHistoryLimit は履歴照会の1回の取得件数（デフォルト）。
	defaultHistoryLimit = 50
	// maxHistoryLimit は履歴照会の1回の取得件数の上限。
	maxHistoryLimit = 200
)

// Pinger はヘルスチェック用のDB疎通確認インターフェース。
// *sql.DBがそのまま満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// OpsHandler は監視状態照会のHTTPハンドラー。
// 書き込み操作は持たない。状態を変更するのはワーカーのみである。
type OpsHandler struct {
	db          Pinger
	sellerRepo  repository.SellerRepository
	listingRepo repository.ListingRepository
	logger      *slog.Logger
}

// NewOpsHandler はOpsHandlerを生成する。
func NewOpsHandler(db Pinger, sellerRepo repository.SellerRepository, listingRepo repository.ListingRepository, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{
		db:          db,
		sellerRepo:  sellerRepo,
		listingRepo: listingRepo,
		logger:      logger,
	}
}

// --- レスポンス型 ---

// errorResponse はエラーレスポンスのボディ。
type errorResponse struct {
	Error string `json:"error"`
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// sellerResponse は出品者一覧のレスポンス。
type sellerResponse struct {
	Username        string `json:"username"`
	DisplayName     string `json:"display_name"`
	NotifyNew       bool   `json:"notify_new"`
	NotifyPrice     bool   `json:"notify_price"`
	NotifyEdit      bool   `json:"notify_edit"`
	NotifyDelete    bool   `json:"notify_delete"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
}

// changeResponse は変更ログ1件のレスポンス。
type changeResponse struct {
	ID         string          `json:"id"`
	ListingID  string          `json:"listing_id"`
	Kind       string          `json:"kind"`
	DetectedAt time.Time       `json:"detected_at"`
	Payload    json.RawMessage `json:"payload"`
}

// priceHistoryResponse は価格履歴1件のレスポンス。
type priceHistoryResponse struct {
	OldPrice     decimal.Decimal  `json:"old_price"`
	NewPrice     decimal.Decimal  `json:"new_price"`
	PercentDelta *decimal.Decimal `json:"percent_delta,omitempty"`
	ChangedAt    time.Time        `json:"changed_at"`
}

// Health はDB疎通を確認してサービスの状態を返す。
// GET /health
func (h *OpsHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.Error("ヘルスチェックでDB疎通に失敗しました",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// GetStats は監視全体の集計値を返す。
// GET /api/stats
func (h *OpsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.listingRepo.GetStats(r.Context())
	if err != nil {
		h.writeInternalError(w, "統計の取得に失敗しました", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListSellers は監視中の出品者一覧を返す。
// GET /api/sellers
func (h *OpsHandler) ListSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := h.sellerRepo.ListActive(r.Context())
	if err != nil {
		h.writeInternalError(w, "出品者一覧の取得に失敗しました", err)
		return
	}

	resp := make([]sellerResponse, 0, len(sellers))
	for _, s := range sellers {
		resp = append(resp, sellerResponse{
			Username:        s.Username,
			DisplayName:     s.DisplayName,
			NotifyNew:       s.NotifyNew,
			NotifyPrice:     s.NotifyPrice,
			NotifyEdit:      s.NotifyEdit,
			NotifyDelete:    s.NotifyDelete,
			IntervalMinutes: s.IntervalMinutes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListChanges は指定出品者の変更ログを新しい順に返す。
// GET /api/sellers/{username}/changes?limit=50
func (h *OpsHandler) ListChanges(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	seller, err := h.sellerRepo.FindByUsername(r.Context(), username)
	if err != nil {
		h.writeInternalError(w, "出品者の取得に失敗しました", err)
		return
	}
	if seller == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "出品者が見つかりません"})
		return
	}

	changes, err := h.listingRepo.RecentChanges(r.Context(), username, parseLimit(r))
	if err != nil {
		h.writeInternalError(w, "変更ログの取得に失敗しました", err)
		return
	}

	resp := make([]changeResponse, 0, len(changes))
	for _, c := range changes {
		resp = append(resp, changeResponse{
			ID:         c.ID,
			ListingID:  c.ListingID,
			Kind:       string(c.Kind),
			DetectedAt: c.DetectedAt,
			Payload:    json.RawMessage(c.Payload),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListPrices は指定出品の価格変更履歴を新しい順に返す。
// GET /api/listings/{id}/prices?limit=50
func (h *OpsHandler) ListPrices(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	history, err := h.listingRepo.PriceHistory(r.Context(), listingID, parseLimit(r))
	if err != nil {
		h.writeInternalError(w, "価格履歴の取得に失敗しました", err)
		return
	}

	resp := make([]priceHistoryResponse, 0, len(history))
	for _, entry := range history {
		item := priceHistoryResponse{
			OldPrice:  entry.OldPrice,
			NewPrice:  entry.NewPrice,
			ChangedAt: entry.ChangedAt,
		}
		// 旧価格0からの変更では変化率が定義できないためゼロ値は省略する
		if !entry.PercentDelta.IsZero() {
			delta := entry.PercentDelta
			item.PercentDelta = &delta
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OpsHandler) writeInternalError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: message})
}

// parseLimit はlimitクエリパラメータを読み取る。
// 不正値や未指定はデフォルト値、上限超過は上限値に丸める。
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
