package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sellerwatch/internal/metrics"
	"github.com/hitoshi/sellerwatch/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	DB          Pinger
	SellerRepo  repository.SellerRepository
	ListingRepo repository.ListingRepository
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// NewRouter は運用APIの全エンドポイントを構成したchi.Routerを返す。
// 全エンドポイントは読み取り専用であり、認証は持たない。
// 外部公開ではなく運用ネットワーク内からの利用を想定する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	h := NewOpsHandler(deps.DB, deps.SellerRepo, deps.ListingRepo, deps.Logger)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/sellers", h.ListSellers)
		r.Get("/sellers/{username}/changes", h.ListChanges)
		r.Get("/listings/{id}/prices", h.ListPrices)
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
