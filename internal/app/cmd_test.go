package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはmonitor", nil, CommandMonitor},
		{"monitor指定", []string{"monitor"}, CommandMonitor},
		{"serve指定", []string{"serve"}, CommandServe},
		{"migrate指定", []string{"migrate"}, CommandMigrate},
		{"healthcheck指定", []string{"healthcheck"}, CommandHealthcheck},
		{"サポート外はmonitor", []string{"bogus"}, CommandMonitor},
		{"後続引数は無視", []string{"serve", "extra"}, CommandServe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}
