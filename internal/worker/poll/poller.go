// Package poll は出品者ごとの監視サイクルの実行とスケジューリングを提供する。
// 出品者1人につき1ゴルーチンのループを起動し、semaphoreパターンで
// 取得リクエストの最大並列数を制御する。
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/sellerwatch/internal/diff"
	"github.com/hitoshi/sellerwatch/internal/fetcher"
	"github.com/hitoshi/sellerwatch/internal/metrics"
	"github.com/hitoshi/sellerwatch/internal/model"
	"github.com/hitoshi/sellerwatch/internal/repository"
)

// EventRouter は検出済み変更イベントの転送インターフェース。
type EventRouter interface {
	// Route は出品者の通知フィルタを適用してイベントを転送する。
	Route(ctx context.Context, seller model.Seller, events []model.ChangeEvent) error
}

// Config はPollerの動作設定。ゼロ値のフィールドにはデフォルト値が適用される。
type Config struct {
	// DefaultInterval は出品者個別の間隔指定がない場合のポーリング間隔。
	DefaultInterval time.Duration
	// MaxConcurrent は同時に実行できるカタログ取得の最大数。
	MaxConcurrent int
	// RetryCount は1サイクル内でのカタログ取得の最大試行回数。
	RetryCount int
	// BackoffBase は取得再試行の指数バックオフの初回遅延。
	BackoffBase time.Duration
}

// Poller は出品者ごとの監視ループを管理する。
//
// 各出品者のサイクルは専用ゴルーチン上で直列に実行されるため、
// 同一出品者のサイクルが重なることはない。出品者間はsemaphoreによる
// 取得の並列制限を除いて独立しており、ある出品者の失敗が
// 他の出品者のループを止めることはない。
type Poller struct {
	sellerRepo  repository.SellerRepository
	listingRepo repository.ListingRepository
	catalog     fetcher.CatalogFetcher
	router      EventRouter
	collector   metrics.MetricsCollector
	logger      *slog.Logger

	defaultInterval time.Duration
	retryCount      int
	backoffBase     time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPoller はPollerの新しいインスタンスを生成する。
func NewPoller(
	sellerRepo repository.SellerRepository,
	listingRepo repository.ListingRepository,
	catalog fetcher.CatalogFetcher,
	router EventRouter,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Poller {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 10 * time.Minute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	return &Poller{
		sellerRepo:      sellerRepo,
		listingRepo:     listingRepo,
		catalog:         catalog,
		router:          router,
		collector:       collector,
		logger:          logger,
		defaultInterval: cfg.DefaultInterval,
		retryCount:      cfg.RetryCount,
		backoffBase:     cfg.BackoffBase,
		sem:             make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Start は監視対象の全出品者についてポーリングループを起動し、
// コンテキストがキャンセルされるまでブロックする。
// 停止時は新しいサイクルの開始をやめ、実行中の永続化・通知の完了を待つ。
func (p *Poller) Start(ctx context.Context) error {
	sellers, err := p.sellerRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("監視対象出品者の取得に失敗しました: %w", err)
	}

	if len(sellers) == 0 {
		p.logger.Warn("監視対象の出品者がいません")
	}

	p.logger.Info("監視ポーラーを開始しました",
		slog.Int("seller_count", len(sellers)),
		slog.Int("max_concurrent", cap(p.sem)),
		slog.Duration("default_interval", p.defaultInterval),
	)

	var loops sync.WaitGroup
	for _, seller := range sellers {
		loops.Add(1)
		go func(s model.Seller) {
			defer loops.Done()
			p.sellerLoop(ctx, s)
		}(seller)
	}
	loops.Wait()

	// 実行中の永続化・通知を完了させてから戻る
	p.wg.Wait()
	p.logger.Info("監視ポーラーを停止しました")
	return nil
}

// sellerLoop は1出品者のポーリングループ。起動直後に1回実行し、
// 以降は出品者固有の間隔でサイクルを繰り返す。
// サイクル実行中のティックは破棄されるため、サイクルが重なることはない。
func (p *Poller) sellerLoop(ctx context.Context, seller model.Seller) {
	interval := seller.Interval(p.defaultInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("出品者の監視を開始しました",
		slog.String("seller", seller.Username),
		slog.Duration("interval", interval),
	)

	p.cycle(ctx, seller)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("出品者の監視を停止しました",
				slog.String("seller", seller.Username),
			)
			return
		case <-ticker.C:
			p.cycle(ctx, seller)
		}
	}
}

// cycle はRunCycleを実行し、失敗をログに記録する。
// 失敗はこのループ内で完結させ、他の出品者のループへ伝播させない。
func (p *Poller) cycle(ctx context.Context, seller model.Seller) {
	p.wg.Add(1)
	defer p.wg.Done()

	if err := p.RunCycle(ctx, seller); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		p.logger.Error("監視サイクルに失敗しました",
			slog.String("seller", seller.Username),
			slog.String("error", err.Error()),
		)
	}
}

// RunCycle は1出品者の監視サイクルを1回実行する:
// カタログ取得（再試行つき）→ 差分検出 → スナップショット適用 → 通知。
// 取得はsemaphoreで並列制限される。取得成功後の永続化と通知は、
// 停止要求が来ても半端な状態を残さないよう切り離したコンテキストで完走させる。
func (p *Poller) RunCycle(ctx context.Context, seller model.Seller) error {
	start := time.Now()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	raw, err := p.fetchWithRetry(ctx, seller.Username)
	<-p.sem
	if err != nil {
		p.collector.RecordCycleFailure(seller.Username, "fetch")
		return err
	}

	dctx := context.WithoutCancel(ctx)

	previous, err := p.listingRepo.LoadActiveBySeller(dctx, seller.Username)
	if err != nil {
		p.collector.RecordCycleFailure(seller.Username, "load")
		return err
	}

	now := time.Now()
	current := make([]model.Listing, 0, len(raw))
	for _, r := range raw {
		current = append(current, model.NewListingFromRaw(seller.Username, r, now))
	}

	events := diff.Diff(seller.Username, previous, current, now)

	if err := p.listingRepo.ApplySnapshot(dctx, seller.Username, current, events); err != nil {
		// 永続化に失敗した場合は通知せずに中断する。
		// 次サイクルで同じ差分が再検出されるため、変更が失われることはない。
		p.collector.RecordCycleFailure(seller.Username, "persist")
		return err
	}
	p.collector.RecordListingsUpserted(len(current))
	p.recordEvents(events)

	if len(events) > 0 {
		p.logger.Info("変更を検出しました",
			slog.String("seller", seller.Username),
			slog.Int("event_count", len(events)),
		)
		if err := p.router.Route(dctx, seller, events); err != nil {
			// 状態はコミット済みのため通知失敗でサイクルを巻き戻さない。
			// 同じ変更は再検出されないので、この通知は失われる。
			p.logger.Error("通知の送信に失敗しました",
				slog.String("seller", seller.Username),
				slog.String("error", err.Error()),
			)
			p.collector.RecordCycleFailure(seller.Username, "notify")
			p.collector.RecordCycleDuration(time.Since(start))
			return nil
		}
	}

	p.collector.RecordCycleSuccess(seller.Username)
	p.collector.RecordCycleDuration(time.Since(start))
	return nil
}

// fetchWithRetry はカタログ取得を最大retryCount回試行する。
// 再試行不可のFetchErrorは即座に返し、再試行可能な失敗は
// 指数バックオフを挟んで試行し直す。
func (p *Poller) fetchWithRetry(ctx context.Context, username string) ([]model.RawListing, error) {
	var lastErr error

	for attempt := 0; attempt < p.retryCount; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(p.backoffBase, attempt-1)
			p.collector.RecordFetchRetry(username)
			p.logger.Warn("カタログ取得を再試行します",
				slog.String("seller", username),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		raw, err := p.catalog.Fetch(ctx, username)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var fetchErr *model.FetchError
		if errors.As(err, &fetchErr) && !fetchErr.Retryable {
			return nil, err
		}
	}

	return nil, lastErr
}

// recordEvents は検出イベント数を種別別にメトリクスへ記録する。
func (p *Poller) recordEvents(events []model.ChangeEvent) {
	counts := make(map[model.ChangeKind]int)
	for _, ev := range events {
		counts[ev.Kind]++
	}
	for kind, count := range counts {
		p.collector.RecordEvents(string(kind), count)
	}
}
