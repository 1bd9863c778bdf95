package poll

import "time"

const (
	// defaultBackoffBase は指数バックオフの初回遅延のデフォルト値。
	defaultBackoffBase = 2 * time.Second
	// maxBackoff はサイクル内再試行における最大遅延。
	maxBackoff = 1 * time.Minute
)

// CalculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// 初回base、2倍ずつ増加、最大1分。
func CalculateBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
