package model

import "fmt"

// FetchError はCatalog Fetcherの呼び出し失敗を表す。
// Retryableがtrueの場合、スケジューラはバックオフ付きで再試行する。
// 再試行が尽きた場合はそのサイクルを放棄するが、プロセスは継続する。
type FetchError struct {
	Seller     string
	StatusCode int // HTTP起因でない場合は0
	Retryable  bool
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("出品者 %s のカタログ取得に失敗しました (HTTP %d): %v", e.Seller, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("出品者 %s のカタログ取得に失敗しました: %v", e.Seller, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError は状態ストアへの書き込み失敗を表す。
// 部分コミットは発生せず、サイクル全体が中断される。
type PersistenceError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("永続化に失敗しました (%s): %v", e.Op, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *PersistenceError) Unwrap() error { return e.Err }

// SendError は通知送信の失敗を表す。
// 状態遷移は既にコミット済みのためロールバックされず、通知のみが失われる。
// ログ上で「変更なし」と「通知漏れ」を区別できるよう専用の型を持つ。
type SendError struct {
	Seller string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *SendError) Error() string {
	return fmt.Sprintf("出品者 %s の通知送信に失敗しました: %v", e.Seller, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *SendError) Unwrap() error { return e.Err }
