package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// maxBodySize はレスポンスボディの最大読み取りサイズ（10MB）。
const maxBodySize = 10 * 1024 * 1024

// Client はマーケットプレイスの出品一覧APIのクライアント。
// 全出品者で共有するグローバルレートリミッタにより、
// 監視先サイトへのリクエスト頻度を制限する。
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// rpsは1秒あたりの最大リクエスト数を指定する。
func NewClient(httpClient *http.Client, baseURL string, rps float64, logger *slog.Logger) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
		baseURL:    baseURL,
	}
}

// listingsResponse は出品一覧APIのレスポンスを表す。
type listingsResponse struct {
	Listings []model.RawListing `json:"listings"`
}

// Fetch は指定出品者の全出品を取得する。
// レートリミッタの許可を待ってからリクエストを発行する。
// HTTPステータスに応じて再試行可否の異なるFetchErrorを返す:
//   - 404: 出品者が存在しない（再試行しない）
//   - 429 / 5xx: 一時的な失敗（再試行する）
func (c *Client) Fetch(ctx context.Context, username string) ([]model.RawListing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.FetchError{Seller: username, Retryable: false, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1/users/%s/listings", c.baseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &model.FetchError{Seller: username, Retryable: false, Err: err}
	}
	req.Header.Set("User-Agent", "Sellerwatch/1.0 Catalog Monitor")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// ネットワークエラーは一時的とみなして再試行する
		return nil, &model.FetchError{Seller: username, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// 以下で処理を続行
	case resp.StatusCode == http.StatusNotFound:
		return nil, &model.FetchError{
			Seller: username, StatusCode: resp.StatusCode, Retryable: false,
			Err: fmt.Errorf("出品者が見つかりません"),
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &model.FetchError{
			Seller: username, StatusCode: resp.StatusCode, Retryable: true,
			Err: fmt.Errorf("一時的なエラーステータス"),
		}
	default:
		return nil, &model.FetchError{
			Seller: username, StatusCode: resp.StatusCode, Retryable: false,
			Err: fmt.Errorf("予期しないステータスコード"),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &model.FetchError{Seller: username, Retryable: true, Err: err}
	}

	var parsed listingsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.logger.Error("出品一覧レスポンスのパースに失敗しました",
			slog.String("seller", username),
			slog.String("error", err.Error()),
		)
		return nil, &model.FetchError{Seller: username, Retryable: false, Err: err}
	}

	// listing_idを持たない行はスナップショットの同一性判定ができないため除外する
	listings := make([]model.RawListing, 0, len(parsed.Listings))
	for _, l := range parsed.Listings {
		if l.ListingID == "" {
			c.logger.Warn("idのない出品をスキップしました",
				slog.String("seller", username),
				slog.String("title", l.Title),
			)
			continue
		}
		listings = append(listings, l)
	}

	return listings, nil
}
