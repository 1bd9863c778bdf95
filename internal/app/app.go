// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/sellerwatch/internal/config"
	"github.com/hitoshi/sellerwatch/internal/database"
	"github.com/hitoshi/sellerwatch/internal/fetcher"
	"github.com/hitoshi/sellerwatch/internal/handler"
	"github.com/hitoshi/sellerwatch/internal/logger"
	"github.com/hitoshi/sellerwatch/internal/metrics"
	"github.com/hitoshi/sellerwatch/internal/notify"
	"github.com/hitoshi/sellerwatch/internal/repository"
	"github.com/hitoshi/sellerwatch/internal/router"
	"github.com/hitoshi/sellerwatch/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runMonitor(cfg)
	}
}

// runMonitor は監視モードで起動する。
// 出品者設定をDBへ同期し、監視ポーラーと運用APIサーバーを起動する。
// 出品者設定の不備は起動時に致命的エラーとして扱い、
// 起動後の取得・永続化・通知の失敗はログに記録するのみで停止しない。
func runMonitor(cfg *config.Config) error {
	// 出品者設定の読み込み（不正な設定ファイルでは起動しない）
	sellers, err := config.LoadSellers(cfg.SellersFile)
	if err != nil {
		return fmt.Errorf("failed to load sellers config: %w", err)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("データベースへ接続しました")

	sellerRepo := repository.NewPostgresSellerRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)

	// 設定ファイル上の出品者をDBへ同期する。
	// 設定から外れた出品者はソフト削除され、監視のみ停止する。
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sellerRepo.SyncFromConfig(ctx, sellers); err != nil {
		return fmt.Errorf("failed to sync sellers: %w", err)
	}
	slog.Info("出品者設定を同期しました", slog.Int("seller_count", len(sellers)))

	// メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// カタログフェッチャー
	catalog := fetcher.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		cfg.MarketBaseURL, cfg.FetchRateRPS, slog.Default(),
	)

	// 通知シンク（トークン未設定の場合は通知を無効化して起動する）
	var sink notify.Sink
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sink = notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID, 10*time.Second)
		slog.Info("Telegram通知を有効化しました")
	} else {
		sink = notify.NewNopSink(slog.Default())
		slog.Warn("Telegramの設定がないため通知を無効化しました")
	}

	eventRouter := router.New(sink, slog.Default())

	poller := poll.NewPoller(
		sellerRepo, listingRepo, catalog, eventRouter, collector, slog.Default(),
		poll.Config{
			DefaultInterval: cfg.PollInterval,
			MaxConcurrent:   cfg.MaxConcurrent,
			RetryCount:      cfg.FetchRetryCount,
			BackoffBase:     cfg.FetchBackoffBase,
		},
	)

	// 運用APIサーバー
	server := newOpsServer(cfg, db, sellerRepo, listingRepo, registry)
	go func() {
		slog.Info("運用APIサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("シャットダウンを開始します...")
		cancel()
	}()

	// ポーラーをメインgoroutineで実行（ブロッキング）。
	// キャンセル後は実行中の永続化・通知が完了するまで戻らない。
	if err := poller.Start(ctx); err != nil {
		return fmt.Errorf("poller failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("アプリケーションを停止しました")
	return nil
}

// runServe は運用APIサーバーのみで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("データベースへ接続しました")

	sellerRepo := repository.NewPostgresSellerRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	server := newOpsServer(cfg, db, sellerRepo, listingRepo, registry)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("運用APIサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("運用APIサーバーを停止します...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("運用APIサーバーを停止しました")
	return nil
}

// newOpsServer は運用APIのHTTPサーバーを構築する。
func newOpsServer(
	cfg *config.Config,
	db handler.Pinger,
	sellerRepo repository.SellerRepository,
	listingRepo repository.ListingRepository,
	registry *prometheus.Registry,
) *http.Server {
	mux := handler.NewRouter(&handler.RouterDeps{
		DB:          db,
		SellerRepo:  sellerRepo,
		ListingRepo: listingRepo,
		Gatherer:    registry,
		Logger:      slog.Default(),
	})

	return &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("データベースマイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("データベースマイグレーションが完了しました")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
