package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/sellerwatch/internal/model"
)

// minSellerIntervalMinutes は出品者ごとの間隔指定の下限（分）。
const minSellerIntervalMinutes = 5

// SellerEntry は設定ファイル上の出品者1件を表す。
// 通知フラグは未指定の場合trueとして扱う。
type SellerEntry struct {
	Username          string `yaml:"username"`
	DisplayName       string `yaml:"display_name"`
	NotifyNew         *bool  `yaml:"notify_new"`
	NotifyPriceChange *bool  `yaml:"notify_price_change"`
	NotifyEdit        *bool  `yaml:"notify_edit"`
	NotifyDelete      *bool  `yaml:"notify_delete"`
	IntervalMinutes   int    `yaml:"interval_minutes"`
}

// sellersFile は出品者設定ファイル全体を表す。
type sellersFile struct {
	Sellers []SellerEntry `yaml:"sellers"`
}

// LoadSellers は出品者設定ファイルを読み込み、検証済みのSellerリストを返す。
// 不正な設定（username欠落、重複、間隔下限違反）は起動時エラーとして即座に弾く。
// 差分処理の深部で失敗させないための事前検証である。
func LoadSellers(path string) ([]model.Seller, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("出品者設定ファイルの読み込みに失敗しました: %w", err)
	}

	var file sellersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("出品者設定ファイルのパースに失敗しました: %w", err)
	}

	if len(file.Sellers) == 0 {
		return nil, fmt.Errorf("出品者設定ファイルに出品者が定義されていません: %s", path)
	}

	seen := make(map[string]struct{}, len(file.Sellers))
	sellers := make([]model.Seller, 0, len(file.Sellers))

	for i, entry := range file.Sellers {
		if entry.Username == "" {
			return nil, fmt.Errorf("sellers[%d]: username は必須です", i)
		}
		if _, dup := seen[entry.Username]; dup {
			return nil, fmt.Errorf("sellers[%d]: username %q が重複しています", i, entry.Username)
		}
		seen[entry.Username] = struct{}{}

		if entry.IntervalMinutes < 0 {
			return nil, fmt.Errorf("sellers[%d]: interval_minutes は負値にできません: %d", i, entry.IntervalMinutes)
		}
		if entry.IntervalMinutes > 0 && entry.IntervalMinutes < minSellerIntervalMinutes {
			return nil, fmt.Errorf("sellers[%d]: interval_minutes は%d分以上を指定してください: %d",
				i, minSellerIntervalMinutes, entry.IntervalMinutes)
		}

		displayName := entry.DisplayName
		if displayName == "" {
			displayName = entry.Username
		}

		sellers = append(sellers, model.Seller{
			Username:        entry.Username,
			DisplayName:     displayName,
			NotifyNew:       boolOrTrue(entry.NotifyNew),
			NotifyPrice:     boolOrTrue(entry.NotifyPriceChange),
			NotifyEdit:      boolOrTrue(entry.NotifyEdit),
			NotifyDelete:    boolOrTrue(entry.NotifyDelete),
			IntervalMinutes: entry.IntervalMinutes,
			Status:          model.SellerStatusActive,
		})
	}

	return sellers, nil
}

func boolOrTrue(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
