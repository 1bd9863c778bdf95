package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandMonitor は監視ワーカーと運用APIを同時に起動することを示す。
	CommandMonitor Command = "monitor"
	// CommandServe は運用APIのみで起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandMonitorを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandMonitor
	}

	switch args[0] {
	case "monitor":
		return CommandMonitor
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandMonitor
	}
}
